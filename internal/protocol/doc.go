// Package protocol implements the RFC 6455 WebSocket wire format for the
// server role.
//
// The package is pure: nothing here touches a socket. It provides the
// handshake encoder, the frame encoder for server-to-client frames, the
// incremental frame decoder for client-to-server frames, the masking engine,
// close-payload helpers and the error taxonomy shared by the server.
//
// # Handshake
//
//	accept, err := protocol.Accept(req.Header.Get("Sec-WebSocket-Key"))
//	if err != nil {
//	    return err
//	}
//	conn.Write(protocol.BuildResponse(accept))
//
// # Frame Format
//
//	byte 0:  FIN | RSV1 | RSV2 | RSV3 | opcode (4 bits)
//	byte 1:  MASK | payload length indicator (7 bits)
//	         126 -> 2-byte big-endian length follows
//	         127 -> 8-byte big-endian length follows (top bit must be 0)
//	mask key: 4 bytes, present iff MASK is set
//	payload:  length bytes, XOR-masked with key[i%4] for client frames
//
// Server frames are never masked. Client frames must always be masked; an
// unmasked client frame is a protocol violation.
//
// # Decoding
//
// Decoder is a state machine with the steps
// AwaitingFrameHeader -> AwaitingExtendedLength -> AwaitingMaskKey ->
// AwaitingPayload -> FrameComplete. Each step consumes exactly Need() bytes;
// a large payload repeats AwaitingPayload in bounded chunks:
//
//	d := protocol.NewDecoder(maxPayload)
//	for {
//	    b, err := src.ReadExactly(d.Need())
//	    ...
//	    frame, err := d.Advance(b)
//	    ...
//	}
//
// # Error Handling
//
// Every failure is an *Error carrying an ErrorType (HandshakeFailure,
// ProtocolViolation, OversizedPayload, Transport), the close code to send and
// a wrapped reason such as ErrUnmaskedFrame. Use errors.Is for reasons and
// the Is* helpers for categories.
//
// # Thread Safety
//
// Encoding, masking and handshake functions are stateless and safe for
// concurrent use. A Decoder belongs to one connection.
package protocol

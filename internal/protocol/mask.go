package protocol

// MaskKeySize is the length of a client masking key
const MaskKeySize = 4

// Apply XORs data with the rolling 4-byte key and returns the result in a new
// slice: out[i] = data[i] ^ key[i%4]. Applying it twice with the same key
// yields the original bytes.
func Apply(data []byte, key [4]byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%MaskKeySize]
	}
	return out
}

// ApplyInPlace is Apply without the output allocation.
func ApplyInPlace(data []byte, key [4]byte) {
	for i := range data {
		data[i] ^= key[i%MaskKeySize]
	}
}

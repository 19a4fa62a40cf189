package server

import (
	"crypto/tls"
	"fmt"

	"github.com/muurk/rawws/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig loads a certificate pair and returns a server TLS config
// accepting TLS 1.2 and 1.3.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return NewTLSConfigFromCertificate(cert), nil
}

// NewTLSConfigFromCertificate builds the server TLS config for an already
// loaded certificate.
func NewTLSConfigFromCertificate(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		// Only consulted for TLS 1.2; TLS 1.3 suites are not configurable.
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
		// HTTP/2 would bypass the upgrade handshake
		NextProtos: []string{"http/1.1"},
	}
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	cipherNames := make([]string, 0, len(config.CipherSuites))
	for _, id := range config.CipherSuites {
		cipherNames = append(cipherNames, tls.CipherSuiteName(id))
	}

	maxVersion := "TLS 1.3"
	if config.MaxVersion != 0 {
		maxVersion = tls.VersionName(config.MaxVersion)
	}

	return map[string]interface{}{
		"min_version":   tls.VersionName(config.MinVersion),
		"max_version":   maxVersion,
		"cipher_suites": cipherNames,
		"num_certs":     len(config.Certificates),
		"alpn":          config.NextProtos,
	}
}

package assoc

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"
)

// Dial opens the transport connection for an association: a plain TCP
// connection when cfg.TLSConfig is nil, or a TLS 1.2+ connection (with
// optional mutual-TLS client certificates and certificate pinning via
// cfg.TLSConfig.VerifyPeerCertificate) otherwise. This generalizes the
// teacher's client.Connect, which only ever dials plain TCP.
func Dial(address string, cfg Config, connectTimeout time.Duration) (net.Conn, error) {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	if cfg.TLSConfig == nil {
		dialer := &net.Dialer{Timeout: connectTimeout}
		conn, err := dialer.Dial("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("assoc: dial %s: %w", address, err)
		}
		return conn, nil
	}

	tlsConfig := ensureMinimumTLSVersion(cfg.TLSConfig)
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("assoc: tls dial %s: %w", address, err)
	}
	return conn, nil
}

// Listen opens a listener for an association acceptor: plain TCP when
// cfg.TLSConfig is nil, TLS otherwise.
func Listen(address string, cfg Config) (net.Listener, error) {
	if cfg.TLSConfig == nil {
		return net.Listen("tcp", address)
	}
	tlsConfig := ensureMinimumTLSVersion(cfg.TLSConfig)
	return tls.Listen("tcp", address, tlsConfig)
}

// ensureMinimumTLSVersion returns a shallow copy of cfg with MinVersion
// raised to TLS 1.2 if the caller left it unset, per spec.md's "TLS 1.2/1.3"
// requirement — this module never negotiates down to TLS 1.0/1.1.
func ensureMinimumTLSVersion(cfg *tls.Config) *tls.Config {
	if cfg.MinVersion != 0 && cfg.MinVersion >= tls.VersionTLS12 {
		return cfg
	}
	out := cfg.Clone()
	out.MinVersion = tls.VersionTLS12
	return out
}

// PinCertificate returns a tls.Config.VerifyPeerCertificate callback that
// fails closed unless the peer's leaf certificate's SHA-256 fingerprint
// matches one of pinnedFingerprints exactly, per spec.md §4.H's certificate
// pinning requirement (no partial-chain or CA-only pinning fallback).
func PinCertificate(pinnedFingerprints map[[32]byte]bool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("assoc: no peer certificate presented")
		}
		fingerprint := sha256.Sum256(rawCerts[0])
		if !pinnedFingerprints[fingerprint] {
			return fmt.Errorf("assoc: peer certificate fingerprint not in pinned set")
		}
		return nil
	}
}

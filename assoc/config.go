package assoc

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxPDULength is the per-association cap this module applies when a
// caller doesn't set one, matching the teacher's hardcoded A-ASSOCIATE-RQ
// value.
const DefaultMaxPDULength = 16384

// DefaultARTIMTimeout is the idle timer PS3.8 Section 9.1.5 calls ARTIM:
// how long a peer may go without PDU traffic during association
// establishment or release before the connection is aborted.
const DefaultARTIMTimeout = 30 * time.Second

// Config parameterizes a Dial or Accept call. It holds no hidden defaults:
// every zero-value field is filled in explicitly by WithDefaults.
type Config struct {
	CallingAETitle   string
	CalledAETitle    string
	MaxPDULength     uint32 // this implementation's local cap
	ARTIMTimeout     time.Duration
	TLSConfig        *tls.Config // nil means a plain TCP transport
	Logger           *logrus.Logger
}

// WithDefaults returns a copy of c with zero-value fields replaced by this
// package's defaults.
func (c Config) WithDefaults() Config {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = DefaultMaxPDULength
	}
	if c.ARTIMTimeout == 0 {
		c.ARTIMTimeout = DefaultARTIMTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// NegotiateMaxPDU returns the smaller of the local cap, the peer's proposed
// maximum, and implementationCap, per spec.md's "min(local, peer,
// implementation cap)" negotiation rule. A zero peer value (peer proposed
// no limit, or the sub-item was absent) is treated as "no constraint from
// the peer".
func NegotiateMaxPDU(local, peer, implementationCap uint32) uint32 {
	result := local
	if peer != 0 && peer < result {
		result = peer
	}
	if implementationCap != 0 && implementationCap < result {
		result = implementationCap
	}
	return result
}

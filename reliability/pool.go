package reliability

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/client"
	dicomerrors "github.com/pacsway/dicomstack/errors"
)

// PoolKey identifies one destination association endpoint. Two dials with
// the same key are interchangeable and may share a pooled Association.
type PoolKey struct {
	Host          string
	Port          int
	CalledAETitle string
	CallingAETitle string
	TLSConfigHash string
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s:%d|%s->%s|tls:%s", k.Host, k.Port, k.CallingAETitle, k.CalledAETitle, k.TLSConfigHash)
}

// TLSConfigHash derives a stable PoolKey component for a *tls.Config so
// associations negotiated under different certificate/cipher policies never
// share a pooled connection. nil yields the empty string (plain TCP).
func TLSConfigHash(cfg *tls.Config) string {
	if cfg == nil {
		return ""
	}
	return fmt.Sprintf("%v|%v", cfg.MinVersion, cfg.ServerName)
}

type pooledAssociation struct {
	assoc    *client.Association
	lastUsed time.Time
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// IdleExpiry closes and evicts a pooled association that has not been
	// borrowed in this long. Zero defaults to 5 minutes. Expiry is checked
	// only by the periodic sweep that HealthCheckInterval turns on; with
	// HealthCheckInterval zero no sweep runs, and pooled associations stay
	// open until Evict or Close.
	IdleExpiry time.Duration
	// HealthCheckInterval runs a C-ECHO against every idle pooled
	// association on this cadence, evicting it on failure. Zero disables
	// health checking.
	HealthCheckInterval time.Duration
	// MaxSize caps the number of distinct PoolKeys held open at once. A
	// Get for a new key once the pool is at MaxSize fails with a
	// *dicomerrors.ResourceError (ResourceErrorPoolExhausted) rather than
	// dialing; Get for an already-pooled key always succeeds regardless.
	// Zero means unlimited.
	MaxSize int
	Logger  *logrus.Logger
}

// Pool maintains at most one live client.Association per PoolKey, dialing
// lazily on first Get and reusing the connection across callers until it
// goes idle past IdleExpiry or fails a health check. Grounded on
// client.Association's existing single-connection-per-call shape (find.go,
// store.go, get.go all dial, use, and Close a fresh Association per
// operation); Pool exists so a forwarder issuing many C-STORE calls to the
// same SCP doesn't reassociate for every instance.
type Pool struct {
	dial    func(address string, config client.Config) (*client.Association, error)
	options PoolConfig

	mu    sync.Mutex
	conns map[PoolKey]*pooledAssociation

	stopHealth chan struct{}
	stopOnce   sync.Once
}

// NewPool creates a Pool. dial is normally client.Connect; a seam for tests.
func NewPool(dial func(address string, config client.Config) (*client.Association, error), options PoolConfig) *Pool {
	if dial == nil {
		dial = client.Connect
	}
	if options.IdleExpiry <= 0 {
		options.IdleExpiry = 5 * time.Minute
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}

	p := &Pool{
		dial:       dial,
		options:    options,
		conns:      make(map[PoolKey]*pooledAssociation),
		stopHealth: make(chan struct{}),
	}
	if options.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	}
	return p
}

// Get returns a pooled association for key, dialing address with config if
// none is currently live. The returned Association must not be closed by
// the caller; call Release when done with it instead.
func (p *Pool) Get(ctx context.Context, key PoolKey, address string, config client.Config) (*client.Association, error) {
	p.mu.Lock()
	if entry, ok := p.conns[key]; ok {
		entry.lastUsed = time.Now()
		p.mu.Unlock()
		return entry.assoc, nil
	}
	if p.options.MaxSize > 0 && len(p.conns) >= p.options.MaxSize {
		p.mu.Unlock()
		return nil, dicomerrors.NewResourceError(dicomerrors.ResourceErrorPoolExhausted, key.String(),
			fmt.Sprintf("pool already holds MaxSize=%d distinct keys", p.options.MaxSize))
	}
	p.mu.Unlock()

	assocCh := make(chan *client.Association, 1)
	errCh := make(chan error, 1)
	go func() {
		a, err := p.dial(address, config)
		if err != nil {
			errCh <- err
			return
		}
		assocCh <- a
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case a := <-assocCh:
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.conns[key]; ok {
			// Lost a race with a concurrent Get for the same key; keep the
			// one already registered and close the one we just dialed.
			a.Close()
			existing.lastUsed = time.Now()
			return existing.assoc, nil
		}
		p.conns[key] = &pooledAssociation{assoc: a, lastUsed: time.Now()}
		return a, nil
	}
}

// Release marks key's pooled association as idle again. It does not close
// the connection; eviction happens via IdleExpiry or a failed health check.
func (p *Pool) Release(key PoolKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.conns[key]; ok {
		entry.lastUsed = time.Now()
	}
}

// Evict closes and removes key's pooled association, if any.
func (p *Pool) Evict(key PoolKey) {
	p.mu.Lock()
	entry, ok := p.conns[key]
	if ok {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	if ok {
		entry.assoc.Close()
	}
}

// Close evicts every pooled association and stops the health-check loop.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopHealth) })

	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[PoolKey]*pooledAssociation)
	p.mu.Unlock()

	for _, entry := range conns {
		entry.assoc.Close()
	}
}

func (p *Pool) healthCheckLoop() {
	ticker := time.NewTicker(p.options.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	now := time.Now()
	p.mu.Lock()
	var stale []PoolKey
	var toCheck []PoolKey
	for key, entry := range p.conns {
		if now.Sub(entry.lastUsed) >= p.options.IdleExpiry {
			stale = append(stale, key)
			continue
		}
		toCheck = append(toCheck, key)
	}
	p.mu.Unlock()

	for _, key := range stale {
		p.options.Logger.WithFields(logrus.Fields{"pool_key": key.String()}).Info("evicting idle pooled association")
		p.Evict(key)
	}

	for _, key := range toCheck {
		p.mu.Lock()
		entry, ok := p.conns[key]
		p.mu.Unlock()
		if !ok {
			continue
		}
		if _, err := entry.assoc.SendCEcho(0); err != nil {
			p.options.Logger.WithFields(logrus.Fields{"error": err, "pool_key": key.String()}).Warn("pooled association failed health check, evicting")
			p.Evict(key)
		}
	}
}

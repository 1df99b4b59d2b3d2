package reliability

import (
	"context"
	"crypto/tls"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/pacsway/dicomstack/client"
	dicomerrors "github.com/pacsway/dicomstack/errors"
)

func TestPoolGetReusesConnectionForSameKey(t *testing.T) {
	var dials int32
	dial := func(address string, config client.Config) (*client.Association, error) {
		atomic.AddInt32(&dials, 1)
		return &client.Association{}, nil
	}
	pool := NewPool(dial, PoolConfig{})

	key := PoolKey{Host: "pacs.example.org", Port: 104, CalledAETitle: "SCP", CallingAETitle: "SCU"}

	first, err := pool.Get(context.Background(), key, "pacs.example.org:104", client.Config{})
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	second, err := pool.Get(context.Background(), key, "pacs.example.org:104", client.Config{})
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}

	if first != second {
		t.Error("expected the same *client.Association to be returned for the same PoolKey")
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestPoolGetDialsSeparatelyForDifferentKeys(t *testing.T) {
	var dials int32
	dial := func(address string, config client.Config) (*client.Association, error) {
		atomic.AddInt32(&dials, 1)
		return &client.Association{}, nil
	}
	pool := NewPool(dial, PoolConfig{})

	keyA := PoolKey{Host: "a.example.org", Port: 104, CalledAETitle: "SCP_A", CallingAETitle: "SCU"}
	keyB := PoolKey{Host: "b.example.org", Port: 104, CalledAETitle: "SCP_B", CallingAETitle: "SCU"}

	if _, err := pool.Get(context.Background(), keyA, "a.example.org:104", client.Config{}); err != nil {
		t.Fatalf("Get(keyA) error = %v", err)
	}
	if _, err := pool.Get(context.Background(), keyB, "b.example.org:104", client.Config{}); err != nil {
		t.Fatalf("Get(keyB) error = %v", err)
	}

	if dials != 2 {
		t.Errorf("dials = %d, want 2", dials)
	}
}

func TestPoolGetPropagatesDialError(t *testing.T) {
	wantErr := &dialError{"connection refused"}
	dial := func(address string, config client.Config) (*client.Association, error) {
		return nil, wantErr
	}
	pool := NewPool(dial, PoolConfig{})

	_, err := pool.Get(context.Background(), PoolKey{Host: "x"}, "x:104", client.Config{})
	if err != wantErr {
		t.Errorf("Get() error = %v, want %v", err, wantErr)
	}
}

func TestPoolGetReturnsResourceErrorWhenMaxSizeReached(t *testing.T) {
	dial := func(address string, config client.Config) (*client.Association, error) {
		return &client.Association{}, nil
	}
	pool := NewPool(dial, PoolConfig{MaxSize: 1})

	keyA := PoolKey{Host: "a.example.org", Port: 104, CalledAETitle: "SCP_A", CallingAETitle: "SCU"}
	keyB := PoolKey{Host: "b.example.org", Port: 104, CalledAETitle: "SCP_B", CallingAETitle: "SCU"}

	if _, err := pool.Get(context.Background(), keyA, "a.example.org:104", client.Config{}); err != nil {
		t.Fatalf("Get(keyA) error = %v", err)
	}
	// Same key again should still succeed even at MaxSize.
	if _, err := pool.Get(context.Background(), keyA, "a.example.org:104", client.Config{}); err != nil {
		t.Fatalf("second Get(keyA) error = %v", err)
	}

	_, err := pool.Get(context.Background(), keyB, "b.example.org:104", client.Config{})
	if err == nil {
		t.Fatal("expected Get(keyB) to fail once the pool is at MaxSize")
	}
	var re *dicomerrors.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("expected a *dicomerrors.ResourceError, got %v", err)
	}
	if re.Kind != dicomerrors.ResourceErrorPoolExhausted {
		t.Errorf("Kind = %v, want %v", re.Kind, dicomerrors.ResourceErrorPoolExhausted)
	}
}

type dialError struct{ msg string }

func (e *dialError) Error() string { return e.msg }

func TestPoolKeyString(t *testing.T) {
	key := PoolKey{Host: "pacs.example.org", Port: 104, CalledAETitle: "SCP", CallingAETitle: "SCU", TLSConfigHash: "abc"}
	s := key.String()
	if s == "" {
		t.Error("expected a non-empty String()")
	}
}

func TestTLSConfigHashDistinguishesConfigs(t *testing.T) {
	if TLSConfigHash(nil) != "" {
		t.Error("expected empty hash for nil config")
	}
	a := TLSConfigHash(&tls.Config{ServerName: "a.example.org"})
	b := TLSConfigHash(&tls.Config{ServerName: "b.example.org"})
	if a == b {
		t.Error("expected different hashes for different ServerName values")
	}
}

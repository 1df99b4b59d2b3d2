package server

import (
	"testing"
)

func TestNewAppliesOptions(t *testing.T) {
	srv := New("MY_AE", nil, WithReadTimeout(5), WithWriteTimeout(7))
	if srv.AETitle != "MY_AE" {
		t.Errorf("AETitle = %q, want MY_AE", srv.AETitle)
	}
	if srv.ReadTimeout != 5 || srv.WriteTimeout != 7 {
		t.Errorf("timeouts = (%v, %v), want (5, 7)", srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.events == nil {
		t.Error("expected events channel to be initialized")
	}
}

func TestWithAcceptancePolicySetsPointer(t *testing.T) {
	policy := AcceptancePolicy{MaxConcurrentAssociations: 3}
	srv := New("MY_AE", nil, WithAcceptancePolicy(policy))
	if srv.AcceptPolicy == nil {
		t.Fatal("expected AcceptPolicy to be set")
	}
	if srv.AcceptPolicy.MaxConcurrentAssociations != 3 {
		t.Errorf("MaxConcurrentAssociations = %d, want 3", srv.AcceptPolicy.MaxConcurrentAssociations)
	}
}

func TestEventsPublishDoesNotBlockWhenFull(t *testing.T) {
	srv := New("MY_AE", nil)
	for i := 0; i < cap(srv.events)+5; i++ {
		srv.publish(AssociationEvent{CallingAE: "AE"})
	}
	if len(srv.events) != cap(srv.events) {
		t.Errorf("events buffer len = %d, want full buffer %d", len(srv.events), cap(srv.events))
	}
}

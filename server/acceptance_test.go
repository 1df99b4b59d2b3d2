package server

import (
	"testing"

	"github.com/pacsway/dicomstack/pdu"
)

func TestAcceptancePolicyAllowsUnlistedCallingAE(t *testing.T) {
	policy := AcceptancePolicy{}
	var slots active
	var acquired bool
	decision := policy.toAssociationPolicy(&slots, &acquired, nil)("ANY_AE", "SERVER")
	if !decision.Accept {
		t.Fatal("expected zero-value policy to accept any calling AE")
	}
	if !acquired {
		t.Error("expected the concurrency slot to be acquired")
	}
}

func TestAcceptancePolicyWhitelist(t *testing.T) {
	policy := AcceptancePolicy{AllowedCallingAETitles: []string{"TRUSTED_AE"}}
	var slots active
	var acquired bool

	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("UNKNOWN_AE", "SERVER"); d.Accept {
		t.Error("expected non-whitelisted AE to be rejected")
	}
	if acquired {
		t.Error("rejecting the whitelist check should not acquire a slot")
	}

	acquired = false
	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("TRUSTED_AE", "SERVER"); !d.Accept {
		t.Error("expected whitelisted AE to be accepted")
	}
}

func TestAcceptancePolicyBlacklist(t *testing.T) {
	policy := AcceptancePolicy{BlockedCallingAETitles: []string{"BAD_AE"}}
	var slots active
	var acquired bool

	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("BAD_AE", "SERVER"); d.Accept {
		t.Error("expected blacklisted AE to be rejected")
	}
	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("BAD_AE", "SERVER"); d.Result != pdu.RejectResultPermanent {
		t.Errorf("Result = %v, want RejectResultPermanent", d.Result)
	}
}

func TestAcceptancePolicyDelegate(t *testing.T) {
	var seenCallingAE, seenCalledAE string
	policy := AcceptancePolicy{
		Delegate: func(callingAE, calledAE string) bool {
			seenCallingAE, seenCalledAE = callingAE, calledAE
			return callingAE == "ALLOWED"
		},
	}
	var slots active
	var acquired bool

	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("DENIED", "SERVER"); d.Accept {
		t.Error("expected delegate to reject DENIED")
	}
	if seenCallingAE != "DENIED" || seenCalledAE != "SERVER" {
		t.Errorf("delegate saw (%q, %q), want (DENIED, SERVER)", seenCallingAE, seenCalledAE)
	}

	acquired = false
	if d := policy.toAssociationPolicy(&slots, &acquired, nil)("ALLOWED", "SERVER"); !d.Accept {
		t.Error("expected delegate to accept ALLOWED")
	}
}

func TestAcceptancePolicyMaxConcurrentAssociations(t *testing.T) {
	policy := AcceptancePolicy{MaxConcurrentAssociations: 1}
	var slots active

	var first bool
	if d := policy.toAssociationPolicy(&slots, &first, nil)("AE1", "SERVER"); !d.Accept {
		t.Fatal("expected first association to be accepted")
	}

	var second bool
	d := policy.toAssociationPolicy(&slots, &second, nil)("AE2", "SERVER")
	if d.Accept {
		t.Error("expected second association to be rejected once the cap is reached")
	}
	if d.Result != pdu.RejectResultTransient {
		t.Errorf("Result = %v, want RejectResultTransient (caller may retry later)", d.Result)
	}

	slots.release()
	var third bool
	if d := policy.toAssociationPolicy(&slots, &third, nil)("AE3", "SERVER"); !d.Accept {
		t.Error("expected association to be accepted after a slot frees up")
	}
}

func TestAcceptancePolicyPublishesDecision(t *testing.T) {
	policy := AcceptancePolicy{AllowedCallingAETitles: []string{"TRUSTED_AE"}}
	var slots active
	var acquired bool

	var gotCallingAE string
	var gotAccepted bool
	publish := func(callingAE, calledAE string, accepted bool) {
		gotCallingAE = callingAE
		gotAccepted = accepted
	}

	policy.toAssociationPolicy(&slots, &acquired, publish)("UNKNOWN", "SERVER")
	if gotCallingAE != "UNKNOWN" || gotAccepted {
		t.Errorf("publish callback saw (%q, accepted=%v), want (UNKNOWN, accepted=false)", gotCallingAE, gotAccepted)
	}
}

func TestMembershipFilter(t *testing.T) {
	if membershipFilter(nil) != nil {
		t.Error("expected nil filter for an empty allow-list")
	}

	filter := membershipFilter([]string{"1.2.840.10008.1.1"})
	if !filter("1.2.840.10008.1.1") {
		t.Error("expected listed UID to pass the filter")
	}
	if filter("1.2.840.10008.5.1.4.1.1.7") {
		t.Error("expected unlisted UID to fail the filter")
	}
}

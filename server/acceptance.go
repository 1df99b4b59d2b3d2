package server

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	dicomerrors "github.com/pacsway/dicomstack/errors"
	"github.com/pacsway/dicomstack/pdu"
)

// AcceptancePolicy constrains which associations a Server accepts, beyond
// the pdu.Layer defaults of "any calling AE, any storage SOP class, Implicit
// or Explicit VR Little Endian". A zero-value AcceptancePolicy imposes no
// additional restriction.
type AcceptancePolicy struct {
	// AllowedCallingAETitles, if non-empty, is a whitelist: only these
	// calling AE titles may associate. Checked before BlockedCallingAETitles.
	AllowedCallingAETitles []string

	// BlockedCallingAETitles is a blacklist checked after the whitelist;
	// a calling AE title present here is always rejected.
	BlockedCallingAETitles []string

	// AllowedSOPClasses, if non-empty, restricts presentation context
	// negotiation to exactly these abstract syntaxes instead of the
	// pdu.Layer default (Verification, Q/R, and any storage SOP class).
	AllowedSOPClasses []string

	// AllowedTransferSyntaxes, if non-empty, restricts presentation context
	// negotiation to exactly these transfer syntaxes instead of the
	// pdu.Layer default (Implicit/Explicit VR Little Endian).
	AllowedTransferSyntaxes []string

	// MaxConcurrentAssociations caps the number of associations this
	// Server will have open at once; association attempts beyond the cap
	// are rejected with a transient A-ASSOCIATE-RJ. Zero means unlimited.
	MaxConcurrentAssociations int

	// Delegate, when set, is consulted after the AE title checks pass and
	// before the concurrency check, and can reject an association for any other reason
	// (source IP allowlisting, time-of-day restrictions, and so on).
	Delegate func(callingAE, calledAE string) bool
}

func containsAETitle(titles []string, ae string) bool {
	for _, t := range titles {
		if t == ae {
			return true
		}
	}
	return false
}

func membershipFilter(allowed []string) func(string) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, uid := range allowed {
		set[uid] = true
	}
	return func(uid string) bool { return set[uid] }
}

// active tracks the Server's currently open association count so the
// policy's MaxConcurrentAssociations check can be evaluated at accept time.
type active struct {
	count int32
}

func (a *active) acquire(max int) bool {
	if max <= 0 {
		atomic.AddInt32(&a.count, 1)
		return true
	}
	for {
		cur := atomic.LoadInt32(&a.count)
		if int(cur) >= max {
			return false
		}
		if atomic.CompareAndSwapInt32(&a.count, cur, cur+1) {
			return true
		}
	}
}

func (a *active) release() {
	atomic.AddInt32(&a.count, -1)
}

// toAssociationPolicy builds the pdu.AssociationPolicy hook a Layer consults
// before sending A-ASSOCIATE-AC/RJ. acquired is set to true iff the returned
// closure acquires a concurrency slot from slots; the caller must release
// that slot exactly once, and only when acquired ends up true, once the
// connection this association belongs to finishes. publish, if non-nil, is
// called with the final accept/reject decision for event-stream reporting.
func (p AcceptancePolicy) toAssociationPolicy(slots *active, acquired *bool, publish func(callingAE, calledAE string, accepted bool)) pdu.AssociationPolicy {
	reject := func(result, source, reason byte) pdu.AssociationPolicyDecision {
		return pdu.AssociationPolicyDecision{Accept: false, Result: result, Source: source, Reason: reason}
	}
	return func(callingAE, calledAE string) pdu.AssociationPolicyDecision {
		decision := p.decide(callingAE, calledAE, slots, acquired, reject)
		if publish != nil {
			publish(callingAE, calledAE, decision.Accept)
		}
		return decision
	}
}

func (p AcceptancePolicy) decide(callingAE, calledAE string, slots *active, acquired *bool, reject func(byte, byte, byte) pdu.AssociationPolicyDecision) pdu.AssociationPolicyDecision {
	if len(p.AllowedCallingAETitles) > 0 && !containsAETitle(p.AllowedCallingAETitles, callingAE) {
		return reject(pdu.RejectResultPermanent, pdu.RejectSourceServiceUser, pdu.RejectReasonCallingAETitleNotRecognized)
	}
	if containsAETitle(p.BlockedCallingAETitles, callingAE) {
		return reject(pdu.RejectResultPermanent, pdu.RejectSourceServiceUser, pdu.RejectReasonCallingAETitleNotRecognized)
	}
	if p.Delegate != nil && !p.Delegate(callingAE, calledAE) {
		return reject(pdu.RejectResultPermanent, pdu.RejectSourceServiceUser, pdu.RejectReasonNoReasonGiven)
	}
	if !slots.acquire(p.MaxConcurrentAssociations) {
		err := dicomerrors.NewResourceError(dicomerrors.ResourceErrorTooManyAssociations, calledAE,
			"at MaxConcurrentAssociations limit")
		logrus.WithFields(logrus.Fields{"calling_ae": callingAE, "called_ae": calledAE}).
			WithError(err).Warn("rejecting association")
		return reject(pdu.RejectResultTransient, pdu.RejectSourceServiceProviderACSE, pdu.RejectReasonNoReasonGiven)
	}
	*acquired = true
	return pdu.AssociationPolicyDecision{Accept: true}
}

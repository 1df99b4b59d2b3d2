package client

import (
	"context"
	"fmt"
)

// BatchFailureMode controls whether BatchStore keeps sending instances
// after one fails.
type BatchFailureMode int

const (
	// ContinueOnFailure sends every instance regardless of earlier
	// failures; BatchResult reports the outcome of each.
	ContinueOnFailure BatchFailureMode = iota
	// FailFast stops sending as soon as one instance fails (a non-success
	// status or a transport error) and reports the remaining instances as
	// skipped.
	FailFast
)

// BatchInstance is one SOP instance to send in a BatchStore call.
type BatchInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Data           []byte
}

// BatchResult reports the outcome of sending a single BatchInstance.
type BatchResult struct {
	Instance BatchInstance
	Response *CStoreResponse
	Err      error
	// Skipped is true when FailFast stopped the batch before this
	// instance was attempted.
	Skipped bool
}

// Success reports whether the instance was accepted by the peer: no
// transport error, not skipped, and a DIMSE status in the Success class.
func (r BatchResult) Success() bool {
	if r.Skipped || r.Err != nil || r.Response == nil {
		return false
	}
	return r.Response.Status == 0x0000
}

// BatchStoreOptions configures BatchStore.
type BatchStoreOptions struct {
	FailureMode BatchFailureMode
	// MessageID is the starting Message ID; successive instances increment
	// it. Defaults to 1.
	MessageID uint16
}

// BatchStore sends every instance in items over the single association a,
// reusing its already-negotiated presentation contexts instead of opening
// one association per instance, and streams a BatchResult per instance on
// the returned channel as each C-STORE-RSP arrives.
//
// The caller is responsible for having negotiated (via Connect) a
// presentation context for every distinct SOP Class UID appearing in items;
// SendCStore's own "no presentation context" error is reported per-item
// rather than aborting the whole batch, unless opts.FailureMode is FailFast.
//
// The channel is closed once every instance has been attempted (or skipped,
// under FailFast). ctx cancellation stops the batch before its next send,
// reporting the remaining instances as skipped.
func (a *Association) BatchStore(ctx context.Context, items []BatchInstance, opts BatchStoreOptions) <-chan BatchResult {
	results := make(chan BatchResult, len(items))

	go func() {
		defer close(results)

		messageID := opts.MessageID
		if messageID == 0 {
			messageID = 1
		}

		failed := false
		for _, item := range items {
			if failed && opts.FailureMode == FailFast {
				results <- BatchResult{Instance: item, Skipped: true}
				continue
			}

			select {
			case <-ctx.Done():
				results <- BatchResult{Instance: item, Skipped: true, Err: ctx.Err()}
				failed = true
				continue
			default:
			}

			resp, err := a.SendCStore(&CStoreRequest{
				SOPClassUID:    item.SOPClassUID,
				SOPInstanceUID: item.SOPInstanceUID,
				Data:           item.Data,
				MessageID:      messageID,
			})
			messageID++

			result := BatchResult{Instance: item, Response: resp, Err: err}
			if !result.Success() {
				failed = true
			}
			results <- result
		}
	}()

	return results
}

// BatchStoreSummary is the tally of outcomes SummarizeBatchStore builds by
// draining a BatchResult channel (typically from BatchStore), for callers
// that want a single summary rather than per-item streaming.
type BatchStoreSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
}

// String renders a one-line human-readable summary.
func (s BatchStoreSummary) String() string {
	return fmt.Sprintf("%d/%d succeeded (%d failed, %d skipped)", s.Succeeded, s.Total, s.Failed, s.Skipped)
}

// SummarizeBatchStore drains results to completion and returns the tally.
// Use this instead of BatchStore directly when per-item results aren't
// needed.
func SummarizeBatchStore(results <-chan BatchResult) BatchStoreSummary {
	var summary BatchStoreSummary

	for r := range results {
		summary.Total++
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Success():
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	return summary
}

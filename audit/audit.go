// Package audit provides an append-only JSON-lines event log for the
// lifecycle of DICOM associations and the DIMSE operations carried over
// them, grounded on the same logrus-driven event style client.Association
// and server.Server already use for their own logging but kept as
// structured, replayable records rather than free-form log lines, since an
// audit trail is read back by tooling, not by a human watching stdout.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType discriminates the kind of Event recorded.
type EventType string

const (
	EventAssociationOpened  EventType = "association_opened"
	EventAssociationClosed  EventType = "association_closed"
	EventAssociationRejected EventType = "association_rejected"
	EventStoreSucceeded     EventType = "store_succeeded"
	EventStoreFailed        EventType = "store_failed"
	EventQueryIssued        EventType = "query_issued"
	EventRetrieveStarted    EventType = "retrieve_started"
	EventRetrieveProgress   EventType = "retrieve_progress"
	EventCommitmentRequested EventType = "commitment_requested"
	EventCommitmentReported  EventType = "commitment_reported"
)

// Event is one line of the audit trail. Fields beyond Type/Time/CallingAE/
// CalledAE are populated according to Type; unused fields are omitted from
// the encoded JSON via omitempty so a "store_succeeded" line doesn't carry
// empty query or retrieve fields.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	CallingAE string    `json:"calling_ae,omitempty"`
	CalledAE  string    `json:"called_ae,omitempty"`
	RemoteAddr string   `json:"remote_addr,omitempty"`

	// Association lifecycle.
	Reason string `json:"reason,omitempty"`

	// C-STORE.
	SOPClassUID    string `json:"sop_class_uid,omitempty"`
	SOPInstanceUID string `json:"sop_instance_uid,omitempty"`
	Status         uint16 `json:"status,omitempty"`

	// C-FIND/C-MOVE/C-GET.
	QueryLevel string `json:"query_level,omitempty"`
	Completed  int    `json:"completed,omitempty"`
	Remaining  int    `json:"remaining,omitempty"`
	Failed     int    `json:"failed,omitempty"`

	// Storage commitment.
	TransactionUID string `json:"transaction_uid,omitempty"`
	Outcome        string `json:"outcome,omitempty"`

	// Extra carries anything an Event* constructor didn't anticipate,
	// without forcing every caller through a type assertion to get it
	// back out; encoding/json flattens it as a nested object rather than
	// inlining, which keeps Event's own fields unambiguous.
	Extra map[string]any `json:"extra,omitempty"`
}

// Stream appends Events as newline-delimited JSON to an io.Writer. It
// serializes writes with a mutex so concurrent associations can share one
// Stream (and one underlying file) without interleaving partial lines, the
// same concern server.Server.Events() avoids by using a buffered channel
// instead; Stream favors a durable on-disk record over a draining channel
// since an audit trail should outlive the process reading it.
type Stream struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
	now func() time.Time
}

// NewStream creates a Stream writing to w. Callers typically pass an
// *os.File opened with os.O_APPEND, or any io.Writer that itself fans out
// to storage (a rotating file, a syslog writer).
func NewStream(w io.Writer) *Stream {
	return &Stream{w: w, enc: json.NewEncoder(w), now: time.Now}
}

// Record writes ev to the stream, stamping Time if the caller left it
// zero. It returns the underlying write error, if any; callers that need
// audit durability guarantees should check it (a failed audit write is not
// swallowed the way a best-effort metrics emission might be).
func (s *Stream) Record(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

// AssociationOpened records a successfully established association.
func (s *Stream) AssociationOpened(callingAE, calledAE, remoteAddr string) error {
	return s.Record(Event{Type: EventAssociationOpened, CallingAE: callingAE, CalledAE: calledAE, RemoteAddr: remoteAddr})
}

// AssociationClosed records a normal association release.
func (s *Stream) AssociationClosed(callingAE, calledAE string) error {
	return s.Record(Event{Type: EventAssociationClosed, CallingAE: callingAE, CalledAE: calledAE})
}

// AssociationRejected records a denied association attempt, along with the
// reason the acceptance policy gave for denying it.
func (s *Stream) AssociationRejected(callingAE, calledAE, reason string) error {
	return s.Record(Event{Type: EventAssociationRejected, CallingAE: callingAE, CalledAE: calledAE, Reason: reason})
}

// StoreResult records the outcome of one C-STORE operation.
func (s *Stream) StoreResult(callingAE, sopClassUID, sopInstanceUID string, status uint16) error {
	eventType := EventStoreSucceeded
	if status != 0x0000 {
		eventType = EventStoreFailed
	}
	return s.Record(Event{
		Type:           eventType,
		CallingAE:      callingAE,
		SOPClassUID:    sopClassUID,
		SOPInstanceUID: sopInstanceUID,
		Status:         status,
	})
}

// QueryIssued records a C-FIND request at the given query/retrieve level
// ("PATIENT", "STUDY", "SERIES", "IMAGE").
func (s *Stream) QueryIssued(callingAE, queryLevel string) error {
	return s.Record(Event{Type: EventQueryIssued, CallingAE: callingAE, QueryLevel: queryLevel})
}

// RetrieveStarted records the beginning of a C-MOVE/C-GET retrieval.
func (s *Stream) RetrieveStarted(callingAE, queryLevel string) error {
	return s.Record(Event{Type: EventRetrieveStarted, CallingAE: callingAE, QueryLevel: queryLevel})
}

// RetrieveProgress records an in-flight retrieval's running totals, mirroring
// the Completed/Remaining/Failed sub-operation counts a C-MOVE-RSP or
// C-GET-RSP carries at PS3.7 Section 9.1.4.
func (s *Stream) RetrieveProgress(callingAE string, completed, remaining, failed int) error {
	return s.Record(Event{Type: EventRetrieveProgress, CallingAE: callingAE, Completed: completed, Remaining: remaining, Failed: failed})
}

// CommitmentRequested records an outbound or inbound N-ACTION storage
// commitment request for the given transaction.
func (s *Stream) CommitmentRequested(callingAE, transactionUID string) error {
	return s.Record(Event{Type: EventCommitmentRequested, CallingAE: callingAE, TransactionUID: transactionUID})
}

// CommitmentReported records the N-EVENT-REPORT outcome for a previously
// requested transaction.
func (s *Stream) CommitmentReported(transactionUID, outcome string) error {
	return s.Record(Event{Type: EventCommitmentReported, TransactionUID: transactionUID, Outcome: outcome})
}

// Package commitment implements the SCP side of the Storage Commitment Push
// Model (DICOM PS3.4 Annex J): correlating an asynchronous N-EVENT-REPORT
// against the transaction that requested it.
//
// An association is single-use, but a commitment transaction is not: the
// N-EVENT-REPORT carrying the result may arrive on a later association than
// the one that sent the N-ACTION. Listener is built around a map guarded by
// its own mutex for exactly that reason, so it can outlive any one
// association.
package commitment

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/dicom"
	dicomerrors "github.com/pacsway/dicomstack/errors"
	"github.com/pacsway/dicomstack/interfaces"
	"github.com/pacsway/dicomstack/services"
	"github.com/pacsway/dicomstack/tag"
	"github.com/pacsway/dicomstack/types"
)

// SOPClass is the Storage Commitment Push Model SOP Class UID.
const SOPClass = "1.2.840.10008.1.20.1"

// SOPInstance is the well-known SOP Instance UID that identifies the single
// Storage Commitment Push Model instance an N-ACTION is addressed to.
const SOPInstance = "1.2.840.10008.1.20.1.1"

// ActionTypeIDRequest is the Action Type ID for an N-ACTION Storage
// Commitment Request (PS3.4 Annex J.3.1).
const ActionTypeIDRequest uint16 = 1

// Event Type IDs carried by N-EVENT-REPORT-RQ (PS3.4 Annex J.3.2).
const (
	EventTypeIDSuccess              uint16 = 1
	EventTypeIDCompleteWithFailures uint16 = 2
)

var (
	tagTransactionUID     = tag.New(0x0008, 0x1195)
	tagReferencedSOPSeq   = tag.New(0x0008, 0x1199)
	tagFailedSOPSeq       = tag.New(0x0008, 0x1198)
	tagReferencedSOPClass = tag.New(0x0008, 0x1150)
	tagReferencedSOPInst  = tag.New(0x0008, 0x1155)
	tagFailureReason      = tag.New(0x0008, 0x1197)
)

// Outcome classifies a completed commitment transaction.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomePartialFailure
)

// String renders the outcome for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial-failure"
	default:
		return "unknown"
	}
}

// ReferencedInstance identifies one SOP instance named in a commitment
// result, either as committed or as failed.
type ReferencedInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	// FailureReason is set only for instances in the failed list (PS3.4
	// Annex J.3.2, (0008,1197)).
	FailureReason uint16
}

// Result is the outcome of one storage commitment transaction, delivered
// when the matching N-EVENT-REPORT arrives.
type Result struct {
	TransactionUID string
	Outcome        Outcome
	Committed      []ReferencedInstance
	Failed         []ReferencedInstance
}

// Listener correlates incoming N-EVENT-REPORT-RQ messages against
// transaction UIDs registered via Await. Register it with a
// services.Registry (or any interfaces.ServiceHandler dispatcher) for
// types.NEventReportRQ.
type Listener struct {
	mu       sync.Mutex
	awaiters map[string]chan Result
}

// NewListener creates an empty Listener.
func NewListener() *Listener {
	return &Listener{awaiters: make(map[string]chan Result)}
}

// Await returns a channel that receives the Result for transactionUID once
// its N-EVENT-REPORT arrives. The channel is closed after delivering exactly
// one Result. Callers that give up waiting should call Forget to release the
// registration.
func (l *Listener) Await(transactionUID string) <-chan Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Result, 1)
	l.awaiters[transactionUID] = ch
	return ch
}

// Forget releases a registration made by Await without waiting for its
// result, for callers that time out or abandon a transaction.
func (l *Listener) Forget(transactionUID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.awaiters, transactionUID)
}

// HandleDIMSE implements interfaces.ServiceHandler for N-EVENT-REPORT-RQ. It
// parses the Transaction UID and Referenced/Failed SOP Sequences out of the
// event dataset, completes the matching awaiter if one is registered, and
// always returns a success N-EVENT-REPORT-RSP: an unmatched transaction
// (e.g. the awaiter already gave up) is not a DIMSE-level failure.
func (l *Listener) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	result := Result{Outcome: OutcomeUnknown}

	if meta.Dataset != nil {
		result.TransactionUID = meta.Dataset.GetString(tagTransactionUID)
		result.Committed = referencedInstances(meta.Dataset, tagReferencedSOPSeq)
		result.Failed = referencedInstances(meta.Dataset, tagFailedSOPSeq)
	}

	switch {
	case msg.EventTypeID == EventTypeIDSuccess:
		result.Outcome = OutcomeSuccess
	case msg.EventTypeID == EventTypeIDCompleteWithFailures || len(result.Failed) > 0:
		result.Outcome = OutcomePartialFailure
	}

	logrus.WithContext(ctx).WithFields(logrus.Fields{
		"transaction_uid": result.TransactionUID,
		"outcome":         result.Outcome,
		"committed":       len(result.Committed),
		"failed":          len(result.Failed),
	}).Info("Received storage commitment N-EVENT-REPORT")

	if err := l.deliver(result); err != nil {
		logrus.WithContext(ctx).WithError(err).Warn("storage commitment delivery failed")
	}

	return services.NewNEventReportResponse(msg, types.StatusSuccess), nil, nil
}

// deliver routes result to its registered awaiter. It returns a
// *dicomerrors.ResourceError (kind ResourceErrorCommitmentUnknown) if no
// awaiter is registered for the transaction, rather than silently
// dropping a result nobody can act on.
func (l *Listener) deliver(result Result) error {
	if result.TransactionUID == "" {
		return dicomerrors.NewResourceError(dicomerrors.ResourceErrorCommitmentUnknown, "",
			"N-EVENT-REPORT carried no transaction UID")
	}

	l.mu.Lock()
	ch, ok := l.awaiters[result.TransactionUID]
	if ok {
		delete(l.awaiters, result.TransactionUID)
	}
	l.mu.Unlock()

	if !ok {
		return dicomerrors.NewResourceError(dicomerrors.ResourceErrorCommitmentUnknown, result.TransactionUID,
			"no awaiter registered for this transaction")
	}

	ch <- result
	close(ch)
	return nil
}

// referencedInstances reads a Referenced SOP Sequence or Failed SOP
// Sequence element into ReferencedInstance values.
func referencedInstances(dataset *dicom.Dataset, seqTag dicom.Tag) []ReferencedInstance {
	items, ok := dataset.GetSequence(seqTag)
	if !ok {
		return nil
	}

	instances := make([]ReferencedInstance, 0, len(items))
	for _, item := range items {
		reason, _ := item.GetInt(tagFailureReason)
		instances = append(instances, ReferencedInstance{
			SOPClassUID:    item.GetString(tagReferencedSOPClass),
			SOPInstanceUID: item.GetString(tagReferencedSOPInst),
			FailureReason:  uint16(reason),
		})
	}
	return instances
}

// BuildRequestDataset builds the N-ACTION Storage Commitment Request
// dataset: a Transaction UID and a Referenced SOP Sequence naming the
// instances whose storage should be committed (PS3.4 Annex J.3.1).
func BuildRequestDataset(transactionUID string, instances []ReferencedInstance) *dicom.Dataset {
	dataset := dicom.NewDataset()
	dataset.Put(tagTransactionUID, tag.UI, transactionUID)

	items := make([]*dicom.Dataset, 0, len(instances))
	for _, inst := range instances {
		item := dicom.NewDataset()
		item.Put(tagReferencedSOPClass, tag.UI, inst.SOPClassUID)
		item.Put(tagReferencedSOPInst, tag.UI, inst.SOPInstanceUID)
		items = append(items, item)
	}
	dataset.Put(tagReferencedSOPSeq, tag.SQ, items)

	return dataset
}

// BuildEventReportDataset builds the N-EVENT-REPORT dataset a commitment
// provider sends back to report a transaction's outcome: the Transaction
// UID plus whichever of Referenced SOP Sequence / Failed SOP Sequence apply
// (PS3.4 Annex J.3.2).
func BuildEventReportDataset(result Result) *dicom.Dataset {
	dataset := dicom.NewDataset()
	dataset.Put(tagTransactionUID, tag.UI, result.TransactionUID)

	if len(result.Committed) > 0 {
		dataset.Put(tagReferencedSOPSeq, tag.SQ, instanceItems(result.Committed, false))
	}
	if len(result.Failed) > 0 {
		dataset.Put(tagFailedSOPSeq, tag.SQ, instanceItems(result.Failed, true))
	}

	return dataset
}

func instanceItems(instances []ReferencedInstance, withFailureReason bool) []*dicom.Dataset {
	items := make([]*dicom.Dataset, 0, len(instances))
	for _, inst := range instances {
		item := dicom.NewDataset()
		item.Put(tagReferencedSOPClass, tag.UI, inst.SOPClassUID)
		item.Put(tagReferencedSOPInst, tag.UI, inst.SOPInstanceUID)
		if withFailureReason {
			item.Put(tagFailureReason, tag.US, []uint16{inst.FailureReason})
		}
		items = append(items, item)
	}
	return items
}

package client

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/commitment"
	"github.com/pacsway/dicomstack/dicom"
	"github.com/pacsway/dicomstack/types"
)

// CommitmentRequest names the instances a SendStorageCommitmentRequest call
// asks the peer to commit to storage.
type CommitmentRequest struct {
	TransactionUID string
	Instances      []commitment.ReferencedInstance
	MessageID      uint16
}

// CommitmentResponse is the immediate N-ACTION-RSP acknowledging that the
// commitment request was accepted for processing. The actual outcome
// arrives later as an N-EVENT-REPORT, correlated out of band via a
// commitment.Listener keyed on TransactionUID.
type CommitmentResponse struct {
	Status    uint16
	MessageID uint16
}

// SendStorageCommitmentRequest sends an N-ACTION Storage Commitment Request
// (PS3.4 Annex J.3.1) over the association's negotiated Storage Commitment
// Push Model presentation context. The association must have negotiated
// commitment.SOPClass as an abstract syntax; callers that also need the
// asynchronous result should register req.TransactionUID with a
// commitment.Listener's Await before sending.
func (a *Association) SendStorageCommitmentRequest(req *CommitmentRequest) (*CommitmentResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("storage commitment request cannot be nil")
	}
	if req.TransactionUID == "" {
		return nil, fmt.Errorf("storage commitment request requires a transaction UID")
	}

	presContextID, err := a.GetPresentationContextID(commitment.SOPClass)
	if err != nil {
		return nil, fmt.Errorf("no presentation context for storage commitment push model: %w", err)
	}

	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	command := &types.Message{
		CommandField:            types.NActionRQ,
		MessageID:               messageID,
		CommandDataSetType:      0x0000, // Dataset present
		RequestedSOPClassUID:    commitment.SOPClass,
		RequestedSOPInstanceUID: commitment.SOPInstance,
		ActionTypeID:            commitment.ActionTypeIDRequest,
	}

	commandData, err := encodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("failed to encode N-ACTION command: %w", err)
	}

	dataset := commitment.BuildRequestDataset(req.TransactionUID, req.Instances)
	transferSyntax := a.negotiatedTransferSyntax(presContextID)
	datasetData, err := dicom.EncodeDatasetWithTransferSyntax(dataset, transferSyntax)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage commitment dataset: %w", err)
	}

	if err := a.sendDIMSEMessage(presContextID, commandData, datasetData); err != nil {
		return nil, fmt.Errorf("failed to send N-ACTION-RQ: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_uid": req.TransactionUID,
		"instance_count":  len(req.Instances),
	}).Debug("Sent storage commitment N-ACTION-RQ")

	msg, _, err := a.receiveDIMSEMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to receive N-ACTION-RSP: %w", err)
	}
	if msg.CommandField != types.NActionRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected N-ACTION-RSP)", msg.CommandField)
	}

	return &CommitmentResponse{Status: msg.Status, MessageID: msg.MessageIDBeingRespondedTo}, nil
}

// EventReportRequest is the commitment outcome a storage commitment
// provider pushes back to the requester as an N-EVENT-REPORT, normally over
// a new association dialed back to the requester's AE.
type EventReportRequest struct {
	Result    commitment.Result
	MessageID uint16
}

// EventReportResponse is the N-EVENT-REPORT-RSP acknowledging delivery.
type EventReportResponse struct {
	Status    uint16
	MessageID uint16
}

// SendEventReport sends an N-EVENT-REPORT-RQ reporting a storage commitment
// transaction's outcome (PS3.4 Annex J.3.2). The association must have
// negotiated commitment.SOPClass as an abstract syntax; the peer is
// expected to be running a commitment.Listener to correlate the result.
func (a *Association) SendEventReport(req *EventReportRequest) (*EventReportResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("event report request cannot be nil")
	}
	if req.Result.TransactionUID == "" {
		return nil, fmt.Errorf("event report requires a transaction UID")
	}

	presContextID, err := a.GetPresentationContextID(commitment.SOPClass)
	if err != nil {
		return nil, fmt.Errorf("no presentation context for storage commitment push model: %w", err)
	}

	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	eventTypeID := commitment.EventTypeIDSuccess
	if req.Result.Outcome == commitment.OutcomePartialFailure {
		eventTypeID = commitment.EventTypeIDCompleteWithFailures
	}

	command := &types.Message{
		CommandField:           types.NEventReportRQ,
		MessageID:              messageID,
		CommandDataSetType:     0x0000, // Dataset present
		AffectedSOPClassUID:    commitment.SOPClass,
		AffectedSOPInstanceUID: commitment.SOPInstance,
		EventTypeID:            eventTypeID,
	}

	commandData, err := encodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("failed to encode N-EVENT-REPORT command: %w", err)
	}

	dataset := commitment.BuildEventReportDataset(req.Result)
	transferSyntax := a.negotiatedTransferSyntax(presContextID)
	datasetData, err := dicom.EncodeDatasetWithTransferSyntax(dataset, transferSyntax)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event report dataset: %w", err)
	}

	if err := a.sendDIMSEMessage(presContextID, commandData, datasetData); err != nil {
		return nil, fmt.Errorf("failed to send N-EVENT-REPORT-RQ: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_uid": req.Result.TransactionUID,
		"outcome":         req.Result.Outcome,
	}).Debug("Sent storage commitment N-EVENT-REPORT-RQ")

	msg, _, err := a.receiveDIMSEMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to receive N-EVENT-REPORT-RSP: %w", err)
	}
	if msg.CommandField != types.NEventReportRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected N-EVENT-REPORT-RSP)", msg.CommandField)
	}

	return &EventReportResponse{Status: msg.Status, MessageID: msg.MessageIDBeingRespondedTo}, nil
}

// negotiatedTransferSyntax returns the transfer syntax accepted for a
// presentation context, defaulting to Implicit VR Little Endian (the
// transfer syntax every DICOM implementation must support) if the
// association didn't record one.
func (a *Association) negotiatedTransferSyntax(presContextID byte) string {
	if pc, ok := a.presentationCtxs[presContextID]; ok && pc.TransferSyntax != "" {
		return pc.TransferSyntax
	}
	return types.ImplicitVRLittleEndian
}

package dimse

import (
	"testing"

	"github.com/pacsway/dicomstack/types"
)

func TestEncodeDecodeCommandRoundTripNActionFields(t *testing.T) {
	msg := &types.Message{
		CommandField:            types.NActionRQ,
		MessageID:               7,
		AffectedSOPClassUID:     "1.2.840.10008.5.1.1.1",
		AffectedSOPInstanceUID:  "1.2.3.4.5",
		RequestedSOPInstanceUID: "1.2.3.4.6",
		ActionTypeID:            1,
		CommandDataSetType:      0x0101,
	}

	encoded, err := EncodeCommand(msg)
	if err != nil {
		t.Fatalf("EncodeCommand returned error: %v", err)
	}

	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand returned error: %v", err)
	}

	if decoded.RequestedSOPInstanceUID != msg.RequestedSOPInstanceUID {
		t.Errorf("RequestedSOPInstanceUID = %q, want %q", decoded.RequestedSOPInstanceUID, msg.RequestedSOPInstanceUID)
	}
	if decoded.ActionTypeID != msg.ActionTypeID {
		t.Errorf("ActionTypeID = %d, want %d", decoded.ActionTypeID, msg.ActionTypeID)
	}
	if decoded.AffectedSOPInstanceUID != msg.AffectedSOPInstanceUID {
		t.Errorf("AffectedSOPInstanceUID = %q, want %q", decoded.AffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	}
}

func TestEncodeDecodeCommandRoundTripNEventReportFields(t *testing.T) {
	msg := &types.Message{
		CommandField:           types.NEventReportRQ,
		MessageID:              9,
		AffectedSOPClassUID:    "1.2.840.10008.5.1.1.1",
		AffectedSOPInstanceUID: "1.2.3.4.5",
		EventTypeID:            2,
		CommandDataSetType:     0x0101,
	}

	encoded, err := EncodeCommand(msg)
	if err != nil {
		t.Fatalf("EncodeCommand returned error: %v", err)
	}

	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand returned error: %v", err)
	}

	if decoded.EventTypeID != msg.EventTypeID {
		t.Errorf("EventTypeID = %d, want %d", decoded.EventTypeID, msg.EventTypeID)
	}
	if decoded.RequestedSOPInstanceUID != "" {
		t.Errorf("RequestedSOPInstanceUID = %q, want empty when not set", decoded.RequestedSOPInstanceUID)
	}
}

func TestEncodeCommandOmitsZeroActionAndEventTypeID(t *testing.T) {
	msg := &types.Message{
		CommandField:         CStoreRQ,
		MessageID:            1,
		AffectedSOPClassUID:  "1.2.840.10008.5.1.4.1.1.7",
		CommandDataSetType:   0x0000,
	}

	encoded, err := EncodeCommand(msg)
	if err != nil {
		t.Fatalf("EncodeCommand returned error: %v", err)
	}

	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand returned error: %v", err)
	}

	if decoded.ActionTypeID != 0 {
		t.Errorf("ActionTypeID = %d, want 0", decoded.ActionTypeID)
	}
	if decoded.EventTypeID != 0 {
		t.Errorf("EventTypeID = %d, want 0", decoded.EventTypeID)
	}
	if decoded.RequestedSOPInstanceUID != "" {
		t.Errorf("RequestedSOPInstanceUID = %q, want empty", decoded.RequestedSOPInstanceUID)
	}
}

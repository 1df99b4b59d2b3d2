package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pacsway/dicomstack/interfaces"
	"github.com/pacsway/dicomstack/types"
)

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, string, []byte) error {
	return errors.New("disk full")
}

func TestStoreServiceHandleDIMSESuccess(t *testing.T) {
	backend := NewMemoryStore()
	svc := NewStoreService(backend)

	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    "1.2.840.10008.5.1.4.1.1.7",
		AffectedSOPInstanceUID: "1.2.3.4.5",
	}
	data := []byte{0x01, 0x02, 0x03}

	resp, dataset, err := svc.HandleDIMSE(context.Background(), msg, data, interfaces.MessageContext{TransferSyntaxUID: "1.2.840.10008.1.2.1"})
	if err != nil {
		t.Fatalf("HandleDIMSE() error = %v", err)
	}
	if dataset != nil {
		t.Error("expected nil response dataset for C-STORE-RSP")
	}
	if resp.Status != types.StatusSuccess {
		t.Errorf("Status = 0x%04x, want Success", resp.Status)
	}
	if resp.CommandField != types.CStoreRSP {
		t.Errorf("CommandField = 0x%04x, want CStoreRSP", resp.CommandField)
	}
	if resp.AffectedSOPInstanceUID != msg.AffectedSOPInstanceUID {
		t.Errorf("AffectedSOPInstanceUID = %q, want %q", resp.AffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	}

	stored, ts, ok := backend.Get("1.2.3.4.5")
	if !ok {
		t.Fatal("expected instance to be stored in backend")
	}
	if string(stored) != string(data) {
		t.Errorf("stored data = %v, want %v", stored, data)
	}
	if ts != "1.2.840.10008.1.2.1" {
		t.Errorf("stored transfer syntax = %q, want Explicit VR LE", ts)
	}

	select {
	case evt := <-svc.Events():
		if evt.SOPInstanceUID != "1.2.3.4.5" || evt.Err != nil {
			t.Errorf("unexpected event: %+v", evt)
		}
	default:
		t.Error("expected a StoredInstance event to be published")
	}
}

func TestStoreServiceHandleDIMSEBackendFailure(t *testing.T) {
	svc := NewStoreService(failingStore{})

	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		AffectedSOPInstanceUID: "1.2.3.4.6",
	}

	resp, _, err := svc.HandleDIMSE(context.Background(), msg, []byte{0xFF}, interfaces.MessageContext{})
	if err != nil {
		t.Fatalf("HandleDIMSE() error = %v, want nil (failure reported via status, not Go error)", err)
	}
	if resp.Status != types.StatusProcessingFailure {
		t.Errorf("Status = 0x%04x, want StatusProcessingFailure", resp.Status)
	}

	evt := <-svc.Events()
	if evt.Err == nil {
		t.Error("expected event to carry the backend error")
	}
}

func TestMemoryStoreRejectsEmptyInstanceUID(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Put(context.Background(), "class", "", "ts", nil); err == nil {
		t.Error("expected an error when storing with an empty SOP Instance UID")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

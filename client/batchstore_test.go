package client

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/dimse"
	"github.com/pacsway/dicomstack/types"
)

func newBatchStoreTestAssociation(conn *mockConn) *Association {
	return &Association{
		conn:           conn,
		callingAETitle: "TEST_SCU",
		calledAETitle:  "TEST_SCP",
		maxPDULength:   16384,
		presentationCtxs: map[byte]*PresentationContext{
			1: {
				ID:             1,
				AbstractSyntax: "1.2.840.10008.5.1.4.1.1.7",
				Accepted:       true,
			},
		},
		logger: logrus.StandardLogger(),
	}
}

func queueCStoreResponse(conn *mockConn, messageID uint16, status uint16) {
	command := buildCommandDataset(&types.Message{
		CommandField:              dimse.CStoreRSP,
		MessageIDBeingRespondedTo: messageID,
		CommandDataSetType:        0x0101,
		Status:                    status,
	})
	conn.readBuf.Write(buildPDataPDU(1, true, true, command))
}

func TestBatchStoreContinueOnFailureSendsEveryInstance(t *testing.T) {
	conn := &mockConn{readBuf: bytes.NewBuffer(nil), writeBuf: bytes.NewBuffer(nil)}
	assoc := newBatchStoreTestAssociation(conn)

	queueCStoreResponse(conn, 1, dimse.StatusSuccess)
	queueCStoreResponse(conn, 2, dimse.StatusProcessingFailure)
	queueCStoreResponse(conn, 3, dimse.StatusSuccess)

	items := []BatchInstance{
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "1", Data: []byte("a")},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "2", Data: []byte("b")},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "3", Data: []byte("c")},
	}

	results := assoc.BatchStore(context.Background(), items, BatchStoreOptions{FailureMode: ContinueOnFailure})

	var got []BatchResult
	for r := range results {
		got = append(got, r)
	}

	if len(got) != 3 {
		t.Fatalf("got %d results, want 3 (every instance attempted)", len(got))
	}
	if !got[0].Success() || got[1].Success() || !got[2].Success() {
		t.Errorf("success pattern = [%v,%v,%v], want [true,false,true]", got[0].Success(), got[1].Success(), got[2].Success())
	}
	for i, r := range got {
		if r.Skipped {
			t.Errorf("result %d: Skipped = true, want false under ContinueOnFailure", i)
		}
	}
}

func TestBatchStoreFailFastSkipsRemaining(t *testing.T) {
	conn := &mockConn{readBuf: bytes.NewBuffer(nil), writeBuf: bytes.NewBuffer(nil)}
	assoc := newBatchStoreTestAssociation(conn)

	queueCStoreResponse(conn, 1, dimse.StatusSuccess)
	queueCStoreResponse(conn, 2, dimse.StatusProcessingFailure)
	// No response queued for item 3: FailFast must never attempt it.

	items := []BatchInstance{
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "1", Data: []byte("a")},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "2", Data: []byte("b")},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "3", Data: []byte("c")},
	}

	results := assoc.BatchStore(context.Background(), items, BatchStoreOptions{FailureMode: FailFast})

	var got []BatchResult
	for r := range results {
		got = append(got, r)
	}

	if len(got) != 3 {
		t.Fatalf("got %d results, want 3 (including the skipped tail)", len(got))
	}
	if !got[0].Success() {
		t.Error("expected first instance to succeed")
	}
	if got[1].Success() || got[1].Skipped {
		t.Error("expected second instance to fail, not skip")
	}
	if !got[2].Skipped {
		t.Error("expected third instance to be skipped once the second failed under FailFast")
	}
}

func TestSummarizeBatchStore(t *testing.T) {
	results := make(chan BatchResult, 3)
	results <- BatchResult{Response: &CStoreResponse{Status: dimse.StatusSuccess}}
	results <- BatchResult{Response: &CStoreResponse{Status: dimse.StatusProcessingFailure}}
	results <- BatchResult{Skipped: true}
	close(results)

	summary := SummarizeBatchStore(results)
	if summary.Total != 3 || summary.Succeeded != 1 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %+v, want {Total:3 Succeeded:1 Failed:1 Skipped:1}", summary)
	}
}

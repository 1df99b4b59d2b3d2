package pdu

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// bufferConn is a net.Conn backed by a bytes.Buffer, used to capture the raw
// bytes a Layer writes so fragmentation can be verified without a real socket.
type bufferConn struct {
	net.Conn
	buf bytes.Buffer
}

func (b *bufferConn) Write(p []byte) (int, error)     { return b.buf.Write(p) }
func (b *bufferConn) Close() error                    { return nil }
func (b *bufferConn) LocalAddr() net.Addr             { return &net.TCPAddr{} }
func (b *bufferConn) RemoteAddr() net.Addr            { return &net.TCPAddr{} }
func (b *bufferConn) SetDeadline(t time.Time) error      { return nil }
func (b *bufferConn) SetReadDeadline(t time.Time) error  { return nil }
func (b *bufferConn) SetWriteDeadline(t time.Time) error { return nil }

// readPDUs parses consecutive P-DATA-TF PDUs from buf and returns each PDV's
// control header byte and value bytes, in wire order.
func readPDUs(t *testing.T, data []byte) (ctrlHeaders []byte, values [][]byte) {
	t.Helper()
	offset := 0
	for offset < len(data) {
		if data[offset] != TypePDataTF {
			t.Fatalf("unexpected PDU type 0x%02x at offset %d", data[offset], offset)
		}
		pduLen := binary.BigEndian.Uint32(data[offset+2 : offset+6])
		body := data[offset+6 : offset+6+int(pduLen)]

		pdvLen := binary.BigEndian.Uint32(body[0:4])
		pdv := body[4 : 4+int(pdvLen)]

		ctrlHeaders = append(ctrlHeaders, pdv[1])
		valueCopy := make([]byte, len(pdv)-2)
		copy(valueCopy, pdv[2:])
		values = append(values, valueCopy)

		offset += 6 + int(pduLen)
	}
	return ctrlHeaders, values
}

func newTestLayer(conn net.Conn, maxPDU uint32) *Layer {
	return &Layer{
		conn: conn,
		associationCtx: &AssociationContext{
			MaxPDULength:     maxPDU,
			PresentationCtxs: make(map[byte]*PresentationContext),
		},
		logger: logrus.StandardLogger(),
	}
}

func TestSendDIMSEResponseWithDatasetFitsInSinglePDV(t *testing.T) {
	conn := &bufferConn{}
	layer := newTestLayer(conn, 16384)

	command := []byte("command-bytes")
	dataset := []byte("dataset-bytes")

	if err := layer.SendDIMSEResponseWithDataset(1, command, dataset); err != nil {
		t.Fatalf("SendDIMSEResponseWithDataset() error = %v", err)
	}

	ctrlHeaders, values := readPDUs(t, conn.buf.Bytes())
	if len(ctrlHeaders) != 2 {
		t.Fatalf("expected 2 PDVs (command + dataset), got %d", len(ctrlHeaders))
	}

	if ctrlHeaders[0] != 0x03 {
		t.Errorf("command PDV control header = 0x%02x, want 0x03 (command, last fragment)", ctrlHeaders[0])
	}
	if string(values[0]) != string(command) {
		t.Errorf("command PDV value = %q, want %q", values[0], command)
	}

	if ctrlHeaders[1] != 0x02 {
		t.Errorf("dataset PDV control header = 0x%02x, want 0x02 (dataset, last fragment)", ctrlHeaders[1])
	}
	if string(values[1]) != string(dataset) {
		t.Errorf("dataset PDV value = %q, want %q", values[1], dataset)
	}
}

func TestSendDIMSEResponseWithDatasetFragmentsOversizedDataset(t *testing.T) {
	conn := &bufferConn{}
	// A tiny negotiated max-PDU forces the dataset into several PDVs.
	layer := newTestLayer(conn, minPDVFragmentSize+pduHeaderSize+4+pdvHeaderSize)

	command := []byte("cmd")
	dataset := bytes.Repeat([]byte("x"), minPDVFragmentSize*3+10)

	if err := layer.SendDIMSEResponseWithDataset(1, command, dataset); err != nil {
		t.Fatalf("SendDIMSEResponseWithDataset() error = %v", err)
	}

	ctrlHeaders, values := readPDUs(t, conn.buf.Bytes())
	if len(ctrlHeaders) < 5 { // 1 command PDV + at least 4 dataset PDVs
		t.Fatalf("expected multiple dataset PDVs, got %d total PDVs", len(ctrlHeaders))
	}

	// First PDV is the command, last-fragment bit set.
	if ctrlHeaders[0] != 0x03 {
		t.Errorf("command PDV control header = 0x%02x, want 0x03", ctrlHeaders[0])
	}

	datasetHeaders := ctrlHeaders[1:]
	datasetValues := values[1:]

	var reassembled []byte
	for i, h := range datasetHeaders {
		if h&0x01 != 0 {
			t.Errorf("dataset PDV %d control header = 0x%02x, bit 0 (command) should be clear", i, h)
		}
		isLast := i == len(datasetHeaders)-1
		wantLastBit := h&0x02 != 0
		if wantLastBit != isLast {
			t.Errorf("dataset PDV %d last-fragment bit = %v, want %v", i, wantLastBit, isLast)
		}
		reassembled = append(reassembled, datasetValues[i]...)
	}

	if string(reassembled) != string(dataset) {
		t.Errorf("reassembled dataset length = %d, want %d", len(reassembled), len(dataset))
	}
}

func TestFragmentSizeTreatsZeroMaxPDUAsUnconstrained(t *testing.T) {
	layer := newTestLayer(&bufferConn{}, 0)
	if got := layer.fragmentSize(); got < 1<<20 {
		t.Errorf("fragmentSize() with MaxPDULength=0 = %d, want a large unconstrained value", got)
	}
}

func TestFragmentSizeFloorsAtMinimum(t *testing.T) {
	layer := newTestLayer(&bufferConn{}, 1)
	if got := layer.fragmentSize(); got != minPDVFragmentSize {
		t.Errorf("fragmentSize() with tiny MaxPDULength = %d, want %d", got, minPDVFragmentSize)
	}
}

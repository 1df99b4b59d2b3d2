package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/dicom"
	"github.com/pacsway/dicomstack/interfaces"
	"github.com/pacsway/dicomstack/types"
)

// StoredInstance is a single SOP instance accepted by a StoreService,
// reported on StoreService.Events() as C-STORE requests are handled.
type StoredInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
	CallingAE      string
	Data           []byte
	Status         uint16
	Err            error
}

// Store persists a received SOP instance. Implementations decide where
// instances live (in-memory map, filesystem, object storage); StoreService
// only drives the DIMSE side of C-STORE.
type Store interface {
	Put(ctx context.Context, sopClassUID, sopInstanceUID, transferSyntaxUID string, data []byte) error
}

// StoreService handles C-STORE requests by delegating persistence to a
// Store and publishing a StoredInstance event for every request handled,
// successful or not, so a caller can drive acceptance-policy-style logging
// or storage commitment bookkeeping off the same stream.
//
// Unlike EchoService, StoreService is not stateless: every call may mutate
// the backing Store and publishes onto events (the event is dropped when the
// buffer is full), so construct it once per server and reuse it across
// connections.
type StoreService struct {
	backend Store
	events  chan StoredInstance
}

// NewStoreService creates a StoreService backed by the given Store. The
// event channel is buffered; callers that care about every stored instance
// must keep draining Events().
func NewStoreService(backend Store) *StoreService {
	return &StoreService{backend: backend, events: make(chan StoredInstance, 64)}
}

// Events returns the channel StoredInstance values are published on as
// C-STORE requests are handled.
func (s *StoreService) Events() <-chan StoredInstance {
	return s.events
}

// HandleDIMSE processes a C-STORE request: persists the dataset via the
// backing Store and returns a C-STORE-RSP reflecting the outcome.
//
// This method implements the interfaces.ServiceHandler interface.
func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	logrus.WithContext(ctx).WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"sop_class": msg.AffectedSOPClassUID,
		"sop_instance": msg.AffectedSOPInstanceUID,
		"dataset_size": len(data),
	}).Debug("Processing C-STORE request")

	status := uint16(types.StatusSuccess)
	var storeErr error
	if s.backend == nil {
		storeErr = fmt.Errorf("no store backend configured")
		status = types.StatusProcessingFailure
	} else if err := s.backend.Put(ctx, msg.AffectedSOPClassUID, msg.AffectedSOPInstanceUID, meta.TransferSyntaxUID, data); err != nil {
		storeErr = err
		status = types.StatusProcessingFailure
	}

	if storeErr != nil {
		logrus.WithContext(ctx).WithFields(logrus.Fields{
			"sop_instance": msg.AffectedSOPInstanceUID,
			"error": storeErr,
		}).Warn("C-STORE failed")
	} else {
		logrus.WithContext(ctx).WithFields(logrus.Fields{
			"sop_instance": msg.AffectedSOPInstanceUID,
		}).Info("C-STORE stored instance")
	}

	s.publish(StoredInstance{
		SOPClassUID:    msg.AffectedSOPClassUID,
		SOPInstanceUID: msg.AffectedSOPInstanceUID,
		TransferSyntax: meta.TransferSyntaxUID,
		Data:           data,
		Status:         status,
		Err:            storeErr,
	})

	response := NewCStoreResponse(msg, status)
	response.AffectedSOPInstanceUID = msg.AffectedSOPInstanceUID
	return response, nil, nil
}

func (s *StoreService) publish(evt StoredInstance) {
	select {
	case s.events <- evt:
	default:
	}
}

// MemoryStore is an in-memory Store keyed by SOP Instance UID, useful for
// sample servers and tests.
type MemoryStore struct {
	instances map[string]storedEntry
}

type storedEntry struct {
	sopClassUID    string
	transferSyntax string
	data           []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]storedEntry)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, sopClassUID, sopInstanceUID, transferSyntaxUID string, data []byte) error {
	if sopInstanceUID == "" {
		return fmt.Errorf("missing SOP Instance UID")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.instances[sopInstanceUID] = storedEntry{sopClassUID: sopClassUID, transferSyntax: transferSyntaxUID, data: buf}
	return nil
}

// Get returns a previously stored instance's dataset bytes and transfer
// syntax, and whether it was found.
func (m *MemoryStore) Get(sopInstanceUID string) (data []byte, transferSyntaxUID string, ok bool) {
	entry, ok := m.instances[sopInstanceUID]
	if !ok {
		return nil, "", false
	}
	return entry.data, entry.transferSyntax, true
}

// Len returns the number of instances currently held.
func (m *MemoryStore) Len() int {
	return len(m.instances)
}

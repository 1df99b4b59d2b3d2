package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/types"
)

// PDU types
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// PDU represents a Protocol Data Unit
type PDU struct {
	Type   byte
	Length uint32
	Data   []byte
}

// Layer handles the DICOM Upper Layer Protocol
type Layer struct {
	conn           net.Conn
	associationCtx *AssociationContext
	dimseHandler   DIMSEHandler
	serverAETitle  string
	logger         *logrus.Logger

	// policy, sopClassFilter and transferSyntaxFilter let a caller (see
	// server.AcceptancePolicy) constrain association and presentation
	// context negotiation beyond this layer's built-in defaults. A nil
	// value falls back to the unrestricted built-in behavior.
	policy               AssociationPolicy
	sopClassFilter       func(uid string) bool
	transferSyntaxFilter func(uid string) bool
}

// SetAssociationPolicy installs a hook consulted after A-ASSOCIATE-RQ
// parsing but before the accept/reject PDU is sent back.
func (p *Layer) SetAssociationPolicy(policy AssociationPolicy) {
	p.policy = policy
}

// SetSOPClassFilter restricts which abstract syntaxes this layer will accept
// in presentation context negotiation. Passing nil restores the default
// (accept the Verification SOP Class, Q/R SOP classes, and any storage SOP
// class).
func (p *Layer) SetSOPClassFilter(filter func(uid string) bool) {
	p.sopClassFilter = filter
}

// SetTransferSyntaxFilter restricts which transfer syntaxes this layer will
// select during presentation context negotiation. Passing nil restores the
// default (Implicit/Explicit VR Little Endian).
func (p *Layer) SetTransferSyntaxFilter(filter func(uid string) bool) {
	p.transferSyntaxFilter = filter
}

// AssociationPolicyDecision is returned by an AssociationPolicy to accept or
// reject a negotiated association before A-ASSOCIATE-AC/RJ is sent.
type AssociationPolicyDecision struct {
	Accept bool
	// Result, Source and Reason populate the A-ASSOCIATE-RJ PDU (PS3.8
	// Table 9-21) when Accept is false. Zero values fall back to
	// RejectResultPermanent/RejectSourceServiceUser/RejectReasonNoReasonGiven.
	Result byte
	Source byte
	Reason byte
}

// AssociationPolicy decides whether to accept a negotiated association given
// the calling/called AE titles extracted from the A-ASSOCIATE-RQ.
type AssociationPolicy func(callingAE, calledAE string) AssociationPolicyDecision

// A-ASSOCIATE-RJ result/source/reason codes (PS3.8 Table 9-21).
const (
	RejectResultPermanent byte = 0x01
	RejectResultTransient byte = 0x02

	RejectSourceServiceUser                 byte = 0x01
	RejectSourceServiceProviderACSE         byte = 0x02
	RejectSourceServiceProviderPresentation byte = 0x03

	RejectReasonNoReasonGiven                  byte = 0x01
	RejectReasonApplicationContextNotSupported byte = 0x02
	RejectReasonCallingAETitleNotRecognized    byte = 0x03
	RejectReasonCalledAETitleNotRecognized     byte = 0x07
)

// AssociationContext holds association state
type AssociationContext struct {
	CalledAETitle    string
	CallingAETitle   string
	MaxPDULength     uint32
	PresentationCtxs map[byte]*PresentationContext
	UserIdentity     *UserIdentity // set when the peer proposed User Identity Negotiation
}

// PresentationContext represents a negotiated presentation context
type PresentationContext struct {
	ID             byte
	Result         byte
	AbstractSyntax string
	TransferSyntax string
}

const (
	presentationResultAcceptance           byte = 0x00
	presentationResultRejectAbstractSyntax byte = 0x03
	presentationResultRejectTransferSyntax byte = 0x04
)

var supportedAbstractSyntaxes = map[string]bool{
	types.VerificationSOPClass:                              true, // Verification SOP Class (C-ECHO)
	types.PatientRootQueryRetrieveInformationModelFind:      true, // Patient Root Q/R - FIND
	types.StudyRootQueryRetrieveInformationModelFind:        true, // Study Root Q/R - FIND
	types.PatientStudyOnlyQueryRetrieveInformationModelFind: true, // Patient/Study Only Q/R - FIND
	types.PatientRootQueryRetrieveInformationModelMove:      true, // Patient Root Q/R - MOVE
	types.StudyRootQueryRetrieveInformationModelMove:        true, // Study Root Q/R - MOVE
	types.PatientStudyOnlyQueryRetrieveInformationModelMove: true, // Patient/Study Only Q/R - MOVE
	types.PatientRootQueryRetrieveInformationModelGet:       true, // Patient Root Q/R - GET
	types.StudyRootQueryRetrieveInformationModelGet:         true, // Study Root Q/R - GET
	types.PatientStudyOnlyQueryRetrieveInformationModelGet:  true, // Patient/Study Only Q/R - GET
}

var supportedTransferSyntaxes = map[string]bool{
	types.ImplicitVRLittleEndian: true, // Implicit VR Little Endian
	types.ExplicitVRLittleEndian: true, // Explicit VR Little Endian
}

func normalizeUID(raw []byte) string {
	value := string(raw)
	value = strings.TrimRight(value, "\x00 ")
	return value
}

func defaultSupportsAbstractSyntax(uid string) bool {
	if supportedAbstractSyntaxes[uid] {
		return true
	}
	// Accept all storage SOP classes (C-STORE)
	if types.IsStorageSOPClass(uid) {
		return true
	}
	return false
}

func defaultSupportsTransferSyntax(uid string) bool {
	return supportedTransferSyntaxes[uid]
}

// supportsAbstractSyntax defers to an installed SOP class filter, falling
// back to the built-in default set.
func (p *Layer) supportsAbstractSyntax(uid string) bool {
	if p.sopClassFilter != nil {
		return p.sopClassFilter(uid)
	}
	return defaultSupportsAbstractSyntax(uid)
}

// supportsTransferSyntax defers to an installed transfer syntax filter,
// falling back to the built-in default set.
func (p *Layer) supportsTransferSyntax(uid string) bool {
	if p.transferSyntaxFilter != nil {
		return p.transferSyntaxFilter(uid)
	}
	return defaultSupportsTransferSyntax(uid)
}

func (p *Layer) parsePresentationContext(data []byte, logger *logrus.Logger) (*PresentationContext, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d", len(data))
	}

	ctxID := data[0]
	subOffset := 4 // Skip reserved bytes
	var abstractSyntax string
	var transferSyntaxes []string

	for subOffset+4 <= len(data) {
		subItemType := data[subOffset]
		subItemLength := binary.BigEndian.Uint16(data[subOffset+2 : subOffset+4])
		valueStart := subOffset + 4
		valueEnd := valueStart + int(subItemLength)
		if valueEnd > len(data) {
			return nil, fmt.Errorf("presentation context %d sub-item exceeds length", ctxID)
		}

		value := data[valueStart:valueEnd]
		switch subItemType {
		case 0x30: // Abstract Syntax
			abstractSyntax = normalizeUID(value)
		case 0x40: // Transfer Syntax
			transferSyntaxes = append(transferSyntaxes, normalizeUID(value))
		}

		subOffset = valueEnd
	}

	if abstractSyntax == "" {
		return nil, fmt.Errorf("presentation context %d missing abstract syntax", ctxID)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"context_id": ctxID,
			"abstract_syntax": abstractSyntax,
			"proposed_transfer_syntaxes": transferSyntaxes,
			"num_proposed": len(transferSyntaxes),
		}).Debug("Parsing presentation context")
	}

	result := presentationResultRejectAbstractSyntax
	selectedTransfer := ""

	if p.supportsAbstractSyntax(abstractSyntax) {
		for _, ts := range transferSyntaxes {
			if p.supportsTransferSyntax(ts) {
				selectedTransfer = ts
				result = presentationResultAcceptance
				break
			}
		}
		if result != presentationResultAcceptance {
			result = presentationResultRejectTransferSyntax
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"context_id": ctxID,
			"abstract_syntax": abstractSyntax,
			"selected_transfer_syntax": selectedTransfer,
			"result": result,
		}).Debug("Presentation context negotiation result")
	}

	// Validation: accepted contexts MUST have a transfer syntax
	if result == presentationResultAcceptance && selectedTransfer == "" {
		// This should never happen - it means we accepted but didn't select a transfer syntax
		// Force rejection to avoid protocol violation
		result = presentationResultRejectTransferSyntax
	}

	return &PresentationContext{
		ID:             ctxID,
		Result:         result,
		AbstractSyntax: abstractSyntax,
		TransferSyntax: selectedTransfer,
	}, nil
}

// DIMSEHandler interface for handling DIMSE messages
type DIMSEHandler interface {
	HandleDIMSEMessage(presContextID byte, msgCtrlHeader byte, data []byte, pduLayer *Layer) error
}

// NewLayer creates a new PDU layer handler
func NewLayer(conn net.Conn, dimseHandler DIMSEHandler, serverAETitle string, logger *logrus.Logger) *Layer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Layer{
		conn:          conn,
		dimseHandler:  dimseHandler,
		serverAETitle: serverAETitle,
		logger:        logger,
	}
}

// HandleConnection manages the complete DICOM connection lifecycle
func (p *Layer) HandleConnection() error {
	defer p.conn.Close()
	p.logger.WithFields(logrus.Fields{
		"remote_addr": p.conn.RemoteAddr(),
	}).Info("New DICOM connection")

	// Handle association establishment
	if err := p.handleAssociationPhase(); err != nil {
		return fmt.Errorf("association failed: %v", err)
	}

	// Handle DIMSE messages
	for {
		pdu, err := p.readPDU()
		if err != nil {
			if err == io.EOF {
				p.logger.WithFields(logrus.Fields{
					"remote_addr": p.conn.RemoteAddr(),
				}).Info("Connection closed by client")
			} else {
				p.logger.WithFields(logrus.Fields{
					"error": err,
					"remote_addr": p.conn.RemoteAddr(),
				}).Warn("Error reading PDU")
			}
			break
		}

		if err := p.handlePDU(pdu); err != nil {
			if err == io.EOF {
				break // Normal termination
			}
			return fmt.Errorf("error handling PDU: %v", err)
		}
	}

	return nil
}

// readPDU reads a complete PDU from the connection, delegating to the
// connection-independent ReadPDU so test fixtures and non-net.Conn
// transports (see Component H's TLS-wrapped connections) exercise the exact
// same framing code as production traffic.
func (p *Layer) readPDU() (*PDU, error) {
	return ReadPDU(p.conn)
}

// handlePDU routes PDUs to appropriate handlers
func (p *Layer) handlePDU(pdu *PDU) error {
	p.logger.WithFields(logrus.Fields{
		"type": fmt.Sprintf("0x%02x", pdu.Type),
		"length": pdu.Length,
	}).Debug("Received PDU")

	switch pdu.Type {
	case TypePDataTF:
		return p.handlePDataTF(pdu)
	case TypeReleaseRQ:
		return p.handleReleaseRequest()
	case TypeReleaseRP:
		p.logger.Debug("Received A-RELEASE-RP")
		return io.EOF
	case TypeAbort:
		p.logger.Info("Received A-ABORT")
		return io.EOF
	default:
		p.logger.WithFields(logrus.Fields{
			"type": fmt.Sprintf("0x%02x", pdu.Type),
		}).Warn("Unhandled PDU type")
		return nil
	}
}

// handleAssociationPhase handles the association establishment
func (p *Layer) handleAssociationPhase() error {
	pdu, err := p.readPDU()
	if err != nil {
		return fmt.Errorf("failed to read association request: %v", err)
	}

	if pdu.Type != TypeAssociateRQ {
		return fmt.Errorf("expected A-ASSOCIATE-RQ, got PDU type: 0x%02x", pdu.Type)
	}

	return p.handleAssociateRequest(pdu)
}

// handleAssociateRequest processes A-ASSOCIATE-RQ and sends A-ASSOCIATE-AC
func (p *Layer) handleAssociateRequest(pdu *PDU) error {
	p.logger.Debug("Processing A-ASSOCIATE-RQ")

	// Initialize association context with default values (will be updated by parsing)
	p.associationCtx = &AssociationContext{
		CalledAETitle:    p.serverAETitle, // Use configured server AE title
		CallingAETitle:   "UNKNOWN",       // Default, will be updated from request
		MaxPDULength:     16384,
		PresentationCtxs: make(map[byte]*PresentationContext),
	}

	// Parse the incoming association request to get the presentation contexts
	if err := p.parseAssociationRequest(pdu); err != nil {
		p.logger.WithFields(logrus.Fields{
			"reason": err,
		}).Debug("Using default presentation contexts")
		// Fall back to accepting common contexts
	}

	// If no contexts were parsed, add default supported contexts
	if len(p.associationCtx.PresentationCtxs) == 0 {
		p.addDefaultPresentationContexts()
	}

	if p.policy != nil {
		decision := p.policy(p.associationCtx.CallingAETitle, p.associationCtx.CalledAETitle)
		if !decision.Accept {
			p.logger.WithFields(logrus.Fields{
				"calling_ae": p.associationCtx.CallingAETitle,
				"called_ae": p.associationCtx.CalledAETitle,
			}).Warn("Association rejected by policy")
			response := p.createAssociateReject(decision)
			if _, err := p.conn.Write(response); err != nil {
				return fmt.Errorf("failed to send A-ASSOCIATE-RJ: %v", err)
			}
			return io.EOF
		}
	}

	// Send A-ASSOCIATE-AC
	response := p.createAssociateAccept()
	if _, err := p.conn.Write(response); err != nil {
		return fmt.Errorf("failed to send A-ASSOCIATE-AC: %v", err)
	}

	p.logger.Debug("Sent A-ASSOCIATE-AC")
	return nil
}

// createAssociateReject builds an A-ASSOCIATE-RJ PDU (PS3.8 Section 9.3.4)
// from a rejecting AssociationPolicyDecision, defaulting any zero field to a
// permanent, service-user, no-reason-given rejection.
func (p *Layer) createAssociateReject(decision AssociationPolicyDecision) []byte {
	result := decision.Result
	if result == 0 {
		result = RejectResultPermanent
	}
	source := decision.Source
	if source == 0 {
		source = RejectSourceServiceUser
	}
	reason := decision.Reason
	if reason == 0 {
		reason = RejectReasonNoReasonGiven
	}

	pduData := []byte{0x00, result, source, reason}
	pduHeader := []byte{TypeAssociateRJ, 0x00, 0x00, 0x00, 0x00, 0x04}
	return append(pduHeader, pduData...)
}

// handlePDataTF processes P-DATA-TF PDUs and forwards to DIMSE layer
func (p *Layer) handlePDataTF(pdu *PDU) error {
	p.logger.Debug("Processing P-DATA-TF")

	// Extract PDV from P-DATA-TF
	if len(pdu.Data) < 6 {
		return fmt.Errorf("P-DATA-TF too short")
	}

	// Parse PDV
	pdvLength := binary.BigEndian.Uint32(pdu.Data[0:4])
	if len(pdu.Data) < int(4+pdvLength) {
		return fmt.Errorf("incomplete PDV data")
	}

	pdvData := pdu.Data[4 : 4+pdvLength]
	if len(pdvData) < 2 {
		return fmt.Errorf("PDV data too short")
	}

	presContextID := pdvData[0]
	msgCtrlHeader := pdvData[1]
	dimseData := pdvData[2:]

	p.logger.WithFields(logrus.Fields{
		"presentation_context_id": presContextID,
		"message_control_header": fmt.Sprintf("0x%02x", msgCtrlHeader),
	}).Debug("Processing DIMSE message")

	// Forward to DIMSE layer
	return p.dimseHandler.HandleDIMSEMessage(presContextID, msgCtrlHeader, dimseData, p)
}

// handleReleaseRequest processes A-RELEASE-RQ and sends A-RELEASE-RP
func (p *Layer) handleReleaseRequest() error {
	p.logger.Debug("Processing A-RELEASE-RQ")

	// Send A-RELEASE-RP
	response := []byte{0x06, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}

	if _, err := p.conn.Write(response); err != nil {
		return fmt.Errorf("failed to send A-RELEASE-RP: %v", err)
	}

	p.logger.Debug("Sent A-RELEASE-RP")
	return io.EOF
}

// SendDIMSEResponse sends a DIMSE response via P-DATA-TF
func (p *Layer) SendDIMSEResponse(presContextID byte, commandData []byte) error {
	return p.SendDIMSEResponseWithDataset(presContextID, commandData, nil)
}

// minPDVFragmentSize bounds how small fragmentSize will shrink a
// fragment, so a pathologically small negotiated max-PDU can't produce
// zero-byte PDVs.
const minPDVFragmentSize = 64

// pduHeaderSize is the 6-byte PDU type/reserved/length header that precedes
// the PDV length field in every P-DATA-TF PDU (PS3.8 Section 9.3.5).
const pduHeaderSize = 6

// pdvHeaderSize is the 2-byte presentation-context-ID/message-control-header
// pair that precedes a PDV's value bytes.
const pdvHeaderSize = 2

// fragmentSize returns the maximum number of PDV value bytes this layer may
// pack into a single P-DATA-TF PDU given the peer's negotiated max-PDU
// length: the PDU header, PDV length field, and PDV header all count against
// that budget. A zero/unset MaxPDULength is treated as unconstrained.
func (p *Layer) fragmentSize() int {
	maxPDU := p.associationCtx.MaxPDULength
	if maxPDU == 0 {
		return 1 << 30 // unconstrained: one fragment
	}
	budget := int(maxPDU) - pduHeaderSize - 4 /* PDV length field */ - pdvHeaderSize
	if budget < minPDVFragmentSize {
		budget = minPDVFragmentSize
	}
	return budget
}

// sendFragmented splits data into PDVs no larger than p.fragmentSize(),
// sending each as its own P-DATA-TF PDU. isCommand selects bit 0 of the
// message control header (PS3.8 Section 9.3.1); bit 1 marks the final
// fragment of this command or dataset.
func (p *Layer) sendFragmented(presContextID byte, data []byte, isCommand bool) error {
	fragSize := p.fragmentSize()
	if len(data) == 0 {
		data = []byte{}
	}

	for offset := 0; ; {
		end := offset + fragSize
		last := end >= len(data)
		if last {
			end = len(data)
		}
		chunk := data[offset:end]

		var ctrlHeader byte
		if isCommand {
			ctrlHeader |= 0x01
		}
		if last {
			ctrlHeader |= 0x02
		}

		pdvHeader := []byte{presContextID, ctrlHeader}
		pdvData := append(pdvHeader, chunk...)

		pdvLength := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLength, uint32(len(pdvData)))

		pduHeader := []byte{TypePDataTF, 0x00}
		pduLength := make([]byte, 4)
		binary.BigEndian.PutUint32(pduLength, uint32(len(pdvLength)+len(pdvData)))

		pdu := append(pduHeader, pduLength...)
		pdu = append(pdu, pdvLength...)
		pdu = append(pdu, pdvData...)

		if _, err := p.conn.Write(pdu); err != nil {
			return fmt.Errorf("failed to send P-DATA-TF fragment: %v", err)
		}

		if last {
			return nil
		}
		offset = end
	}
}

// SendDIMSEResponseWithDataset sends a DIMSE response with optional dataset via P-DATA-TF,
// fragmenting each into multiple PDVs when it exceeds the peer's negotiated max-PDU length.
func (p *Layer) SendDIMSEResponseWithDataset(presContextID byte, commandData []byte, datasetData []byte) error {
	if err := p.sendFragmented(presContextID, commandData, true); err != nil {
		return err
	}

	if len(datasetData) > 0 {
		if err := p.sendFragmented(presContextID, datasetData, false); err != nil {
			return err
		}
	}

	return nil
}

// GetTransferSyntax returns the negotiated transfer syntax for the given presentation context.
func (p *Layer) GetTransferSyntax(presContextID byte) (string, error) {
	if p.associationCtx == nil {
		return "", fmt.Errorf("association context not initialized")
	}

	ctx, ok := p.associationCtx.PresentationCtxs[presContextID]
	if !ok {
		return "", fmt.Errorf("presentation context %d not found", presContextID)
	}

	if ctx.TransferSyntax == "" {
		return "", fmt.Errorf("no transfer syntax negotiated for presentation context %d", presContextID)
	}

	return ctx.TransferSyntax, nil
}

// createAssociateAccept creates a proper A-ASSOCIATE-AC PDU
func (p *Layer) createAssociateAccept() []byte {
	// Fixed fields (68 bytes)
	fixedFields := make([]byte, 68)

	// Protocol version (bytes 0-1): 0x0001
	binary.BigEndian.PutUint16(fixedFields[0:2], 0x0001)

	// Use the AE titles from the association context (extracted from request)
	calledAE := p.associationCtx.CalledAETitle
	if len(calledAE) > 16 {
		calledAE = calledAE[:16]
	}
	callingAE := p.associationCtx.CallingAETitle
	if len(callingAE) > 16 {
		callingAE = callingAE[:16]
	}

	// Copy AE titles (pad with spaces to 16 bytes each)
	copy(fixedFields[4:20], fmt.Sprintf("%-16s", calledAE))   // Called AE Title
	copy(fixedFields[20:36], fmt.Sprintf("%-16s", callingAE)) // Calling AE Title

	// Application Context Item
	appContextUID := types.ApplicationContextUID
	appContextItem := []byte{0x10, 0x00} // Item type
	appContextLen := make([]byte, 2)
	binary.BigEndian.PutUint16(appContextLen, uint16(len(appContextUID)))
	appContextItem = append(appContextItem, appContextLen...)
	appContextItem = append(appContextItem, []byte(appContextUID)...)

	// Build all presentation contexts
	// Sort context IDs to ensure consistent ordering
	var contextIDs []byte
	for id := range p.associationCtx.PresentationCtxs {
		contextIDs = append(contextIDs, id)
	}
	// Simple bubble sort since we have few contexts
	for i := 0; i < len(contextIDs); i++ {
		for j := i + 1; j < len(contextIDs); j++ {
			if contextIDs[i] > contextIDs[j] {
				contextIDs[i], contextIDs[j] = contextIDs[j], contextIDs[i]
			}
		}
	}

	var allPresContextItems []byte
	for _, id := range contextIDs {
		ctx := p.associationCtx.PresentationCtxs[id]

		// WORKAROUND: Some DICOM implementations (e.g., DCMTK/Orthanc) incorrectly reject
		// A-ASSOCIATE-AC PDUs that include rejected presentation contexts, even though
		// DICOM PS3.8 Section 9.3.3.3 requires including all contexts from the RQ.
		// Skip rejected contexts to maintain compatibility.
		if ctx.Result != presentationResultAcceptance {
			p.logger.WithFields(logrus.Fields{
				"context_id": ctx.ID,
				"result": ctx.Result,
			}).Debug("Skipping rejected context (compatibility workaround)")
			continue
		}

		var presContextData []byte

		// According to DICOM Part 8, Section 9.3.3.3:
		// - For accepted contexts (Result == 0x00): include ONLY Transfer Syntax
		// - For rejected contexts (Result != 0x00): include NO sub-items
		if ctx.Result == presentationResultAcceptance {
			// CRITICAL: Accepted contexts MUST have a transfer syntax
			if ctx.TransferSyntax == "" {
				p.logger.WithFields(logrus.Fields{
					"context_id": ctx.ID,
					"abstract_syntax": ctx.AbstractSyntax,
				}).Error("Accepted presentation context missing transfer syntax")
				// This should never happen - reject the context instead
				ctx.Result = presentationResultRejectTransferSyntax
			} else {
				// Transfer Syntax only for accepted contexts
				transferSyntaxItem := []byte{0x40, 0x00} // Item type
				transferSyntaxLen := make([]byte, 2)
				binary.BigEndian.PutUint16(transferSyntaxLen, uint16(len(ctx.TransferSyntax)))
				transferSyntaxItem = append(transferSyntaxItem, transferSyntaxLen...)
				transferSyntaxItem = append(transferSyntaxItem, []byte(ctx.TransferSyntax)...)
				presContextData = transferSyntaxItem
			}
		}
		// For rejected contexts, presContextData remains empty (no sub-items)

		// Build this presentation context
		presContextItem := []byte{0x21, 0x00} // Item type (0x21 = Presentation Context Item - AC)
		presContextLen := make([]byte, 2)
		binary.BigEndian.PutUint16(presContextLen, uint16(4+len(presContextData)))
		presContextItem = append(presContextItem, presContextLen...)
		presContextItem = append(presContextItem, ctx.ID, ctx.Result, 0x00, 0x00)
		presContextItem = append(presContextItem, presContextData...)

		allPresContextItems = append(allPresContextItems, presContextItem...)
	}

	// User Information Item
	maxPDUItem := []byte{0x51, 0x00, 0x00, 0x04}
	maxPDUValue := make([]byte, 4)
	binary.BigEndian.PutUint32(maxPDUValue, 16384)
	maxPDUItem = append(maxPDUItem, maxPDUValue...)

	implClassUID := "1.2.3.4.5.6.7.8.9"
	implClassItem := []byte{0x52, 0x00}
	implClassLen := make([]byte, 2)
	binary.BigEndian.PutUint16(implClassLen, uint16(len(implClassUID)))
	implClassItem = append(implClassItem, implClassLen...)
	implClassItem = append(implClassItem, []byte(implClassUID)...)

	implVersionName := "DIMSE_GO_1.0"
	implVersionItem := []byte{0x55, 0x00}
	implVersionLen := make([]byte, 2)
	binary.BigEndian.PutUint16(implVersionLen, uint16(len(implVersionName)))
	implVersionItem = append(implVersionItem, implVersionLen...)
	implVersionItem = append(implVersionItem, []byte(implVersionName)...)

	userInfoData := append(maxPDUItem, implClassItem...)
	userInfoData = append(userInfoData, implVersionItem...)
	userInfoItem := []byte{0x50, 0x00}
	userInfoLen := make([]byte, 2)
	binary.BigEndian.PutUint16(userInfoLen, uint16(len(userInfoData)))
	userInfoItem = append(userInfoItem, userInfoLen...)
	userInfoItem = append(userInfoItem, userInfoData...)

	// Combine all
	variableItems := append(appContextItem, allPresContextItems...)
	variableItems = append(variableItems, userInfoItem...)
	pduData := append(fixedFields, variableItems...)

	// Create PDU header
	pduHeader := []byte{TypeAssociateAC, 0x00}
	pduLength := make([]byte, 4)
	binary.BigEndian.PutUint32(pduLength, uint32(len(pduData)))
	pduHeader = append(pduHeader, pduLength...)

	return append(pduHeader, pduData...)
}

// parseAssociationRequest parses an A-ASSOCIATE-RQ PDU to extract presentation contexts and AE titles
func (p *Layer) parseAssociationRequest(pdu *PDU) error {
	p.logger.WithFields(logrus.Fields{
		"pdu_length": len(pdu.Data),
	}).Debug("Parsing association request")

	if len(pdu.Data) < 68 { // Minimum size for a basic association request
		return fmt.Errorf("association request too short")
	}

	data := pdu.Data

	// Extract AE titles from fixed fields (bytes 4-36)
	// Called AE Title (bytes 4-19) - what they're calling us
	calledAEBytes := data[4:20]
	calledAE := string(calledAEBytes)
	if idx := strings.IndexByte(calledAE, 0); idx != -1 {
		calledAE = calledAE[:idx]
	}
	calledAE = strings.TrimSpace(calledAE)

	// Calling AE Title (bytes 20-35) - who is calling us
	callingAEBytes := data[20:36]
	callingAE := string(callingAEBytes)
	if idx := strings.IndexByte(callingAE, 0); idx != -1 {
		callingAE = callingAE[:idx]
	}
	callingAE = strings.TrimSpace(callingAE)

	// Update association context with extracted AE titles
	if p.associationCtx != nil {
		p.associationCtx.CalledAETitle = calledAE
		p.associationCtx.CallingAETitle = callingAE
		p.associationCtx.PresentationCtxs = make(map[byte]*PresentationContext)
	}

	p.logger.WithFields(logrus.Fields{
		"calling_ae": callingAE,
		"called_ae": calledAE,
	}).Info("Extracted AE titles from association request")

	// Parse variable items starting from offset 68
	offset := 68
	var proposedContexts int
	var acceptedContexts int

	// Parse variable items
	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}

		itemType := data[offset]
		// Skip reserved byte
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			return fmt.Errorf("association item exceeds PDU length")
		}
		itemData := data[valueStart:valueEnd]

		p.logger.WithFields(logrus.Fields{
			"type": fmt.Sprintf("0x%02x", itemType),
			"length": itemLength,
		}).Debug("Found association item")

		switch itemType {
		case 0x10: // Application Context
			p.logger.Debug("Found application context item")
		case 0x20: // Presentation Context
			p.logger.Debug("Found presentation context item")
			proposedContexts++
			ctx, err := p.parsePresentationContext(itemData, p.logger)
			if err != nil {
				p.logger.WithFields(logrus.Fields{
					"error": err,
				}).Warn("Failed to parse presentation context")
			} else if p.associationCtx != nil {
				p.associationCtx.PresentationCtxs[ctx.ID] = ctx
				if ctx.Result == presentationResultAcceptance {
					acceptedContexts++
				}
			}
		case 0x50: // User Information
			p.logger.Debug("Found user information item")
			if userInfo, err := ParseUserInformation(itemData); err != nil {
				p.logger.WithFields(logrus.Fields{
					"error": err,
				}).Warn("Failed to parse user information")
			} else if p.associationCtx != nil {
				if userInfo.MaxPDULength > 0 {
					p.associationCtx.MaxPDULength = userInfo.MaxPDULength
				}
				if userInfo.UserIdentity != nil {
					p.associationCtx.UserIdentity = userInfo.UserIdentity
					p.logger.WithFields(logrus.Fields{
						"identity_type": userInfo.UserIdentity.Type,
					}).Info("Peer proposed User Identity Negotiation")
				}
			}
		}

		offset = valueEnd
	}

	if proposedContexts == 0 {
		p.logger.Warn("No presentation contexts found in association request")
	} else {
		p.logger.WithFields(logrus.Fields{
			"proposed": proposedContexts,
			"accepted": acceptedContexts,
			"max_pdu_length": p.associationCtx.MaxPDULength,
		}).Info("Negotiated presentation contexts")
	}

	return nil
}

// addDefaultPresentationContexts adds the standard presentation contexts
func (p *Layer) addDefaultPresentationContexts() {
	p.logger.Debug("Adding default presentation contexts")

	// Verification SOP Class (C-ECHO)
	p.associationCtx.PresentationCtxs[1] = &PresentationContext{
		ID:             1,
		Result:         0,                   // Acceptance
		AbstractSyntax: "1.2.840.10008.1.1", // Verification SOP Class
		TransferSyntax: "1.2.840.10008.1.2", // Implicit VR Little Endian
	}

	// Patient Root Query/Retrieve Information Model - FIND
	p.associationCtx.PresentationCtxs[3] = &PresentationContext{
		ID:             3,
		Result:         0,                             // Acceptance
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.1.1", // Patient Root Q/R - FIND
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	// Study Root Query/Retrieve Information Model - FIND
	p.associationCtx.PresentationCtxs[5] = &PresentationContext{
		ID:             5,
		Result:         0,                             // Acceptance
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.2.1", // Study Root Q/R - FIND
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	// Patient/Study Only Query/Retrieve Information Model - FIND
	p.associationCtx.PresentationCtxs[7] = &PresentationContext{
		ID:             7,
		Result:         0,                             // Acceptance
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.3.1", // Patient/Study Only Q/R - FIND
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	// Patient Root Query/Retrieve Information Model - MOVE
	p.associationCtx.PresentationCtxs[9] = &PresentationContext{
		ID:             9,
		Result:         0,
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.1.2", // Patient Root Q/R - MOVE
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	// Study Root Query/Retrieve Information Model - MOVE
	p.associationCtx.PresentationCtxs[11] = &PresentationContext{
		ID:             11,
		Result:         0,
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.2.2", // Study Root Q/R - MOVE
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	// Patient/Study Only Query/Retrieve Information Model - MOVE
	p.associationCtx.PresentationCtxs[13] = &PresentationContext{
		ID:             13,
		Result:         0,
		AbstractSyntax: "1.2.840.10008.5.1.4.1.2.3.2", // Patient/Study Only Q/R - MOVE
		TransferSyntax: "1.2.840.10008.1.2",           // Implicit VR Little Endian
	}

	logrus.WithFields(logrus.Fields{
		"count": len(p.associationCtx.PresentationCtxs),
	}).Debug("Added presentation contexts")
}

package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/types"
)

// parseDIMSECommand parses a DIMSE command from raw bytes
func parseDIMSECommand(data []byte) (*types.Message, error) {
	msg := &types.Message{}

	// This is a simplified parser - in practice you'd need a full DICOM parser
	// For now, we'll extract key fields assuming implicit VR little endian

	if len(data) < 12 {
		return nil, fmt.Errorf("DIMSE data too short: %d bytes", len(data))
	}

	logger := logrus.StandardLogger()

	logger.WithField("size_bytes", len(data)).Debug("parsing DIMSE command data")

	readUID := func(data []byte) string {
		s := string(data)
		if idx := strings.IndexByte(s, 0); idx != -1 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	// Parse DICOM elements with proper variable-length handling
	offset := 0
	for offset < len(data)-8 {
		if offset+8 > len(data) {
			logger.WithField("offset", offset).Debug("not enough data for header")
			break
		}

		// Read tag (group, element)
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		// Sanity check length
		if length > 1000000 { // 1MB limit
			logger.WithField("length", length).Warn("element length too large, probably parsing error")
			break
		}

		// Ensure we have enough data for the value
		if offset+8+int(length) > len(data) {
			logger.WithFields(logrus.Fields{
				"have_bytes": len(data),
				"need_bytes": offset + 8 + int(length),
			}).Debug("not enough data for element value")
			break
		}

		// Only process command group elements (group 0000)
		if group == 0x0000 {
			valueStart := offset + 8
			valueEnd := valueStart + int(length)

			switch element {
			case 0x0100: // Command Field
				if length == 2 {
					msg.CommandField = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				} else {
					logger.WithField("length", length).Warn("command field has wrong length")
				}
			case 0x0110: // Message ID
				if length == 2 {
					msg.MessageID = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				} else {
					logger.WithField("length", length).Warn("message ID has wrong length")
				}
			case 0x0120: // Message ID Being Responded To
				if length == 2 {
					msg.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				}
			case 0x0700: // Priority
				if length == 2 {
					msg.Priority = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				}
			case 0x0800: // Command Data Set Type
				if length == 2 {
					msg.CommandDataSetType = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				} else {
					logger.WithField("length", length).Warn("command data set type has wrong length")
				}
			case 0x0900: // Status
				if length == 2 {
					msg.Status = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				}
			case 0x0002: // Affected SOP Class UID
				if length > 0 {
					msg.AffectedSOPClassUID = readUID(data[valueStart:valueEnd])
				}
			case 0x0003: // Requested SOP Class UID
				if length > 0 {
					msg.RequestedSOPClassUID = readUID(data[valueStart:valueEnd])
				}
			case 0x1000: // Affected SOP Instance UID
				if length > 0 {
					msg.AffectedSOPInstanceUID = readUID(data[valueStart:valueEnd])
				}
			case 0x1001: // Requested SOP Instance UID
				if length > 0 {
					msg.RequestedSOPInstanceUID = readUID(data[valueStart:valueEnd])
				}
			case 0x1002: // Event Type ID (N-EVENT-REPORT)
				if length == 2 {
					msg.EventTypeID = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				}
			case 0x1008: // Action Type ID (N-ACTION)
				if length == 2 {
					msg.ActionTypeID = binary.LittleEndian.Uint16(data[valueStart:valueEnd])
				}
			case 0x0600: // Move Destination (for C-MOVE-RQ)
				if length > 0 {
					msg.MoveDestination = readUID(data[valueStart:valueEnd])
				}
			default:
				// Skip unknown command elements silently
			}
		}

		// Move to next element
		offset += 8 + int(length)

		// Ensure even alignment (DICOM elements should be even-length)
		if length%2 == 1 {
			offset++ // Skip padding byte
		}
	}

	logger.WithFields(logrus.Fields{
		"command_field": fmt.Sprintf("0x%04x", msg.CommandField),
		"message_id":    msg.MessageID,
	}).Debug("parsed DIMSE command")
	return msg, nil
}

// createDIMSECommand creates a DIMSE command as bytes
func createDIMSECommand(msg *types.Message) []byte {
	var result []byte

	appendUint16 := func(group, element uint16, v uint16) {
		result = append(result, byte(group), byte(group>>8), byte(element), byte(element>>8))
		result = append(result, 0x02, 0x00, 0x00, 0x00)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		result = append(result, b...)
	}
	appendUID := func(group, element uint16, uid string) {
		if uid == "" {
			return
		}
		b := []byte(uid)
		if len(b)%2 == 1 {
			b = append(b, 0x00)
		}
		result = append(result, byte(group), byte(group>>8), byte(element), byte(element>>8))
		lengthBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBytes, uint32(len(b)))
		result = append(result, lengthBytes...)
		result = append(result, b...)
	}

	appendUint16(0x0000, 0x0100, msg.CommandField) // Command Field

	if msg.MessageIDBeingRespondedTo > 0 {
		appendUint16(0x0000, 0x0120, msg.MessageIDBeingRespondedTo)
	}

	appendUint16(0x0000, 0x0800, msg.CommandDataSetType) // Command Data Set Type
	appendUint16(0x0000, 0x0900, msg.Status)             // Status

	appendUID(0x0000, 0x0002, msg.AffectedSOPClassUID)
	appendUID(0x0000, 0x0003, msg.RequestedSOPClassUID)
	appendUID(0x0000, 0x1000, msg.AffectedSOPInstanceUID)
	appendUID(0x0000, 0x1001, msg.RequestedSOPInstanceUID)

	if msg.EventTypeID != 0 {
		appendUint16(0x0000, 0x1002, msg.EventTypeID)
	}
	if msg.ActionTypeID != 0 {
		appendUint16(0x0000, 0x1008, msg.ActionTypeID)
	}

	return result
}

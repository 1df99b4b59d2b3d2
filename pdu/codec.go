package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// User Information sub-item types, PS3.7 Annex D.1/D.3.3.
const (
	userInfoMaxLength          = 0x51
	userInfoImplementationUID  = 0x52
	userInfoImplementationVer  = 0x55
	userInfoIdentityRQ         = 0x58
	userInfoIdentityAC         = 0x59
)

// User Identity type values, PS3.7 Annex D.3.3.7.1.
const (
	UserIdentityUsername               = 0x01
	UserIdentityUsernameAndPasscode     = 0x02
	UserIdentityKerberos                = 0x03
	UserIdentitySAML                    = 0x04
	UserIdentityJWT                     = 0x05
)

// UserIdentity carries a parsed User Identity Negotiation sub-item (0x58),
// PS3.7 Annex D.3.3.7.
type UserIdentity struct {
	Type                      byte
	PositiveResponseRequested bool
	PrimaryField              []byte
	SecondaryField            []byte // only present when Type == UserIdentityUsernameAndPasscode
}

// UserInformation is the parsed contents of a User Information item (0x50)
// from an A-ASSOCIATE-RQ or -AC, generalizing the teacher's max-PDU-length-only
// parseUserInformation to the rest of PS3.7 D.1's sub-items this module acts on.
type UserInformation struct {
	MaxPDULength               uint32
	ImplementationClassUID     string
	ImplementationVersionName  string
	UserIdentity               *UserIdentity // nil when the peer proposed none
}

// ReadPDU reads one complete PDU (6-byte header plus its data) from r. It has
// no dependency on net.Conn, unlike the teacher's connection-bound
// Layer.readPDU, so it can address a PDU stream read from any io.Reader
// (a TLS conn, a bufio.Reader, or a test fixture).
func ReadPDU(r io.Reader) (*PDU, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	pduType := header[0]
	pduLength := binary.BigEndian.Uint32(header[2:6])

	data := make([]byte, pduLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("pdu: failed to read PDU data: %w", err)
	}

	return &PDU{Type: pduType, Length: pduLength, Data: data}, nil
}

// WritePDU writes a PDU header and body to w.
func WritePDU(w io.Writer, pduType byte, data []byte) error {
	header := make([]byte, 6)
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("pdu: failed to write PDU header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("pdu: failed to write PDU data: %w", err)
	}
	return nil
}

// ParseUserInformation decodes a User Information item's sub-items,
// generalizing the teacher's parseUserInformation (which only read the
// max-length sub-item) to also surface the implementation identification
// and User Identity Negotiation sub-items.
func ParseUserInformation(data []byte) (*UserInformation, error) {
	info := &UserInformation{}
	offset := 0

	for offset+4 <= len(data) {
		subItemType := data[offset]
		subItemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(subItemLength)
		if valueEnd > len(data) {
			return nil, fmt.Errorf("pdu: user information sub-item 0x%02x exceeds length", subItemType)
		}
		value := data[valueStart:valueEnd]

		switch subItemType {
		case userInfoMaxLength:
			if len(value) == 4 {
				info.MaxPDULength = binary.BigEndian.Uint32(value)
			}
		case userInfoImplementationUID:
			info.ImplementationClassUID = normalizeUID(value)
		case userInfoImplementationVer:
			info.ImplementationVersionName = normalizeUID(value)
		case userInfoIdentityRQ:
			identity, err := parseUserIdentity(value)
			if err != nil {
				return nil, fmt.Errorf("pdu: user identity sub-item: %w", err)
			}
			info.UserIdentity = identity
		}

		offset = valueEnd
	}

	return info, nil
}

func parseUserIdentity(value []byte) (*UserIdentity, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("empty user identity sub-item")
	}
	identityType := value[0]
	if len(value) < 2 {
		return nil, fmt.Errorf("user identity sub-item missing response-requested flag")
	}
	positiveResponseRequested := value[1] != 0

	offset := 2
	if offset+2 > len(value) {
		return nil, fmt.Errorf("user identity sub-item missing primary field length")
	}
	primaryLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	if offset+primaryLen > len(value) {
		return nil, fmt.Errorf("user identity sub-item primary field exceeds length")
	}
	primary := value[offset : offset+primaryLen]
	offset += primaryLen

	var secondary []byte
	if identityType == UserIdentityUsernameAndPasscode {
		if offset+2 > len(value) {
			return nil, fmt.Errorf("user identity sub-item missing secondary field length")
		}
		secondaryLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
		offset += 2
		if offset+secondaryLen > len(value) {
			return nil, fmt.Errorf("user identity sub-item secondary field exceeds length")
		}
		secondary = value[offset : offset+secondaryLen]
	}

	return &UserIdentity{
		Type:                      identityType,
		PositiveResponseRequested: positiveResponseRequested,
		PrimaryField:              append([]byte(nil), primary...),
		SecondaryField:            append([]byte(nil), secondary...),
	}, nil
}

// EncodeUserIdentityRequest builds a User Identity Negotiation sub-item
// (0x58) for an A-ASSOCIATE-RQ's User Information item.
func EncodeUserIdentityRequest(identity UserIdentity) []byte {
	body := make([]byte, 0, 4+len(identity.PrimaryField)+len(identity.SecondaryField))
	body = append(body, identity.Type)
	if identity.PositiveResponseRequested {
		body = append(body, 0x01)
	} else {
		body = append(body, 0x00)
	}
	primaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(primaryLen, uint16(len(identity.PrimaryField)))
	body = append(body, primaryLen...)
	body = append(body, identity.PrimaryField...)

	if identity.Type == UserIdentityUsernameAndPasscode {
		secondaryLen := make([]byte, 2)
		binary.BigEndian.PutUint16(secondaryLen, uint16(len(identity.SecondaryField)))
		body = append(body, secondaryLen...)
		body = append(body, identity.SecondaryField...)
	}

	return encodeSubItem(userInfoIdentityRQ, body)
}

// EncodeUserIdentityResponse builds a User Identity Negotiation response
// sub-item (0x59) for an A-ASSOCIATE-AC's User Information item, carrying
// the server's response token (e.g. a Kerberos/SAML/JWT server response).
func EncodeUserIdentityResponse(serverResponse []byte) []byte {
	body := make([]byte, 0, 2+len(serverResponse))
	responseLen := make([]byte, 2)
	binary.BigEndian.PutUint16(responseLen, uint16(len(serverResponse)))
	body = append(body, responseLen...)
	body = append(body, serverResponse...)
	return encodeSubItem(userInfoIdentityAC, body)
}

func encodeSubItem(itemType byte, body []byte) []byte {
	header := make([]byte, 4)
	header[0] = itemType
	header[1] = 0x00 // reserved
	binary.BigEndian.PutUint16(header[2:4], uint16(len(body)))
	return append(header, body...)
}

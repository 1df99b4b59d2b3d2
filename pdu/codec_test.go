package pdu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadPDURoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDU(&buf, TypeAssociateRQ, []byte("hello")))

	pdu, err := ReadPDU(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(TypeAssociateRQ), pdu.Type)
	assert.Equal(t, uint32(5), pdu.Length)
	assert.Equal(t, []byte("hello"), pdu.Data)
}

func TestReadPDURejectsTruncatedHeader(t *testing.T) {
	_, err := ReadPDU(bytes.NewReader([]byte{0x01, 0x00}))
	assert.Error(t, err)
}

func TestParseUserInformationMaxLengthOnly(t *testing.T) {
	data := encodeSubItem(userInfoMaxLength, []byte{0x00, 0x00, 0x40, 0x00})
	info, err := ParseUserInformation(data)
	require.NoError(t, err)
	assert.EqualValues(t, 0x4000, info.MaxPDULength)
	assert.Nil(t, info.UserIdentity)
}

func TestParseUserInformationImplementationIdentification(t *testing.T) {
	data := append(
		encodeSubItem(userInfoImplementationUID, []byte("1.2.3.4")),
		encodeSubItem(userInfoImplementationVer, []byte("DICOMSTACK_1"))...,
	)
	info, err := ParseUserInformation(data)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", info.ImplementationClassUID)
	assert.Equal(t, "DICOMSTACK_1", info.ImplementationVersionName)
}

func TestEncodeParseUserIdentityUsernameRoundTrip(t *testing.T) {
	identity := UserIdentity{
		Type:                      UserIdentityUsername,
		PositiveResponseRequested: true,
		PrimaryField:              []byte("alice"),
	}
	data := EncodeUserIdentityRequest(identity)

	info, err := ParseUserInformation(data)
	require.NoError(t, err)
	require.NotNil(t, info.UserIdentity)
	assert.Equal(t, byte(UserIdentityUsername), info.UserIdentity.Type)
	assert.True(t, info.UserIdentity.PositiveResponseRequested)
	assert.Equal(t, []byte("alice"), info.UserIdentity.PrimaryField)
	assert.Empty(t, info.UserIdentity.SecondaryField)
}

func TestEncodeParseUserIdentityUsernameAndPasscodeRoundTrip(t *testing.T) {
	identity := UserIdentity{
		Type:           UserIdentityUsernameAndPasscode,
		PrimaryField:   []byte("bob"),
		SecondaryField: []byte("s3cret"),
	}
	data := EncodeUserIdentityRequest(identity)

	info, err := ParseUserInformation(data)
	require.NoError(t, err)
	require.NotNil(t, info.UserIdentity)
	assert.Equal(t, []byte("bob"), info.UserIdentity.PrimaryField)
	assert.Equal(t, []byte("s3cret"), info.UserIdentity.SecondaryField)
}

func TestEncodeUserIdentityResponse(t *testing.T) {
	sub := EncodeUserIdentityResponse([]byte("token"))
	assert.Equal(t, byte(userInfoIdentityAC), sub[0])
}

func TestParseUserInformationRejectsTruncatedSubItem(t *testing.T) {
	_, err := ParseUserInformation([]byte{userInfoMaxLength, 0x00, 0x00, 0x10})
	assert.Error(t, err)
}

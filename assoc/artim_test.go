package assoc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestARTIMTimerArmExpiresReadDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	timer := NewARTIMTimer(server, 10*time.Millisecond)
	require.NoError(t, timer.Arm())

	buf := make([]byte, 1)
	_, err := server.Read(buf)
	require.Error(t, err)
	ne, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, ne.Timeout())
}

func TestARTIMTimerDisarmClearsDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	timer := NewARTIMTimer(server, 10*time.Millisecond)
	require.NoError(t, timer.Arm())
	require.NoError(t, timer.Disarm())

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		server.Read(buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("read returned before any data was written, disarm did not clear the deadline")
	case <-time.After(30 * time.Millisecond):
	}

	client.Write([]byte{0x01})
	<-done
}

func TestNewARTIMTimerAppliesDefaultWhenNonPositive(t *testing.T) {
	_, server := net.Pipe()
	defer server.Close()
	timer := NewARTIMTimer(server, 0)
	assert.Equal(t, DefaultARTIMTimeout, timer.timeout)
}

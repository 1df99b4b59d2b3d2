package assoc

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	c := Config{CallingAETitle: "SCU", CalledAETitle: "SCP"}.WithDefaults()
	assert.Equal(t, uint32(DefaultMaxPDULength), c.MaxPDULength)
	assert.Equal(t, DefaultARTIMTimeout, c.ARTIMTimeout)
	assert.NotNil(t, c.Logger)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	logger := logrus.New()
	c := Config{
		MaxPDULength: 65536,
		ARTIMTimeout: 5,
		Logger:       logger,
	}.WithDefaults()
	assert.Equal(t, uint32(65536), c.MaxPDULength)
	assert.EqualValues(t, 5, c.ARTIMTimeout)
	assert.Same(t, logger, c.Logger)
}

func TestNegotiateMaxPDUTakesSmallest(t *testing.T) {
	assert.Equal(t, uint32(4096), NegotiateMaxPDU(16384, 4096, 32768))
	assert.Equal(t, uint32(8192), NegotiateMaxPDU(8192, 16384, 32768))
	assert.Equal(t, uint32(1024), NegotiateMaxPDU(16384, 16384, 1024))
}

func TestNegotiateMaxPDUTreatsZeroPeerAsUnconstrained(t *testing.T) {
	assert.Equal(t, uint32(16384), NegotiateMaxPDU(16384, 0, 0))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTOMLValueBareInteger(t *testing.T) {
	d, err := fromTOMLValue(int64(5))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d.AsDuration())
}

func TestFromTOMLValueDurationString(t *testing.T) {
	d, err := fromTOMLValue("250ms")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d.AsDuration())
}

func TestFromTOMLValueNilDefaultsToZero(t *testing.T) {
	d, err := fromTOMLValue(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d.AsDuration())
}

func TestFromTOMLValueRejectsUnsupportedType(t *testing.T) {
	_, err := fromTOMLValue(3.5)
	assert.Error(t, err)
}

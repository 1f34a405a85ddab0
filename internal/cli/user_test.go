package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeFromStruggles(t *testing.T) {
	intake, err := intakeFromStruggles([]string{"doubt", "grief"})
	require.NoError(t, err)
	require.NotNil(t, intake)
	assert.Equal(t, []string{"doubt", "grief"}, intake.SpiritualStruggles)
}

func TestIntakeFromStrugglesRejectsUnknownCode(t *testing.T) {
	intake, err := intakeFromStruggles([]string{"doubt", "gardening"})
	require.Error(t, err)
	assert.Nil(t, intake)
	assert.Contains(t, err.Error(), "gardening")
	// The error lists the accepted vocabulary.
	assert.Contains(t, err.Error(), "doubt")
}

func TestIntakeFromStrugglesEmpty(t *testing.T) {
	intake, err := intakeFromStruggles(nil)
	require.NoError(t, err)
	assert.Nil(t, intake)
}

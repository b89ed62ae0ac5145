package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSport(t *testing.T) {
	for in, want := range map[string]Sport{
		"football":     Football,
		" Soccer ":     Football,
		"golf":         Golf,
		"TENNIS":       Tennis,
		"racing":       HorseRacing,
		"horse_racing": HorseRacing,
	} {
		got, err := ParseSport(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSport("curling")
	assert.ErrorIs(t, err, ErrUnknownSport)
}

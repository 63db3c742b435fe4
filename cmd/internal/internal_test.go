package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFecho(t *testing.T) {
	var buf bytes.Buffer
	Fecho(&buf, "count: %d", 3)
	Fecho(&buf, "done\n")
	assert.Equal(t, "count: 3\ndone\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "")
	require.NoError(t, err)
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String(), "Default level should be warn")
	log.Warn().Str("id", "abc").Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "id=abc")

	buf.Reset()
	log, err = NewLogger(&buf, "debug")
	require.NoError(t, err)
	log.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	_, err = NewLogger(&buf, "loud")
	assert.Error(t, err)
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := New(Config{Level: "info", Format: format})
		require.NoError(t, err)
		require.NotNil(t, log)
	}

	_, err := New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Level: "verbose", Format: "json"})
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"WARN":  zapcore.WarnLevel,
		"Error": zapcore.ErrorLevel,
	}
	for input, want := range cases {
		level, err := parseLogLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, level)
	}

	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}

func TestDerivedLoggers(t *testing.T) {
	log := Nop()
	assert.NotNil(t, log.Named("child"))
	assert.NotNil(t, log.With(String("k", "v")))
	assert.NotNil(t, log.WithError(assert.AnError))
}

package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "WARN", "error"} {
		l, err := New(Config{Level: level, Format: "json"})
		require.NoError(t, err, level)
		l.Named("test").Info("hello", String("k", "v"), Error(errors.New("boom")))
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	l := NewNop().Named("x").With(Int("n", 1))
	l.Debug("ignored")
	l.Warn("ignored", Bool("b", true))
}

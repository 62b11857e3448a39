package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetGlobalLogger(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { SetGlobalLogger(prev) })

	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	Debug().Str("set", "3").Msg("merged")
	Trace().Msg("dropped")

	require.Contains(t, buf.String(), `"set":"3"`)
	require.NotContains(t, buf.String(), "dropped")
}

func TestNewConsoleLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "warn")
	l.Info().Msg("quiet")
	l.Warn().Msg("loud")
	require.NotContains(t, buf.String(), "quiet")
	require.Contains(t, buf.String(), "loud")

	require.Equal(t, zerolog.InfoLevel, NewConsoleLogger(&buf, "bogus").GetLevel())
}

func TestCtxFallsBack(t *testing.T) {
	require.Same(t, &Logger, Ctx(context.Background()))
}

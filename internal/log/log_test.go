package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Debug("hidden", "k", 1)
	l.Info("shown", "page_id", "1-31_1_2024")
	l.Error("failed", errors.New("boom"), "page", 3)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[INFO] shown page_id=1-31_1_2024")
	require.Contains(t, out, "[ERROR] failed err=boom page=3")
}

func TestLoggerWithAppendsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, LevelDebug).With("component", "calview")
	l.Debug("bind", "index", 2)

	require.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "bind index=2 component=calview"))
}

func TestNilLoggerIsSilent(t *testing.T) {
	t.Parallel()

	var l *Logger
	require.NotPanics(t, func() {
		l.Info("x")
		l.Error("y", errors.New("z"))
		require.Nil(t, l.With("a", 1))
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{"": LevelInfo, "debug": LevelDebug, "INFO": LevelInfo, " error ": LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Defaults(t *testing.T) {
	l, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.out")
	l, err := NewLogger(LogConfig{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Debug("hidden")

	ls, ok := l.(LevelSetter)
	require.True(t, ok)
	ls.SetLevel("debug")
	l.Debug("visible")
	// Children share the parent's level handle.
	l.Named("child").Debug("child visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
	assert.Contains(t, string(data), "child visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestZapLogger_FieldsAndNames(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	l := NewLoggerFromCore(core)

	l.Named("pipeline").With(String("run_id", "r1")).Info("sample done",
		Int("doc_count", 5),
		Float64("ceil_rougel", 0.93),
		Bool("labeled", true),
	)

	entries := observed.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "sample done", e.Message)
	assert.Equal(t, "pipeline", e.LoggerName)

	fields := map[string]interface{}{}
	for _, f := range e.Context {
		switch f.Type {
		case zapcore.StringType:
			fields[f.Key] = f.String
		case zapcore.Int64Type:
			fields[f.Key] = f.Integer
		case zapcore.Float64Type:
			fields[f.Key] = f.Interface
		case zapcore.BoolType:
			fields[f.Key] = f.Integer == 1
		}
	}
	assert.Equal(t, "r1", fields["run_id"])
	assert.Equal(t, int64(5), fields["doc_count"])
	assert.Equal(t, true, fields["labeled"])
}

func TestErrField(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l := NewNopLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())

	// SetDefault(nil) must not clobber the current default.
	SetDefault(nil)
	assert.Equal(t, l, Default())
}

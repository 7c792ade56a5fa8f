package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/logger/console"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	level   string
	message string
	keyvals []any
}

type recorder struct{ entries []entry }

func (r *recorder) add(level, msg string, kv []any) {
	r.entries = append(r.entries, entry{level: level, message: msg, keyvals: kv})
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Info("network built", "nodes", 3)
	Log("plain", "k", "v")

	for _, r := range []*recorder{a, b} {
		require.Len(t, r.entries, 2)
		assert.Equal(t, entry{level: "info", message: "network built", keyvals: []any{"nodes", 3}}, r.entries[0])
		assert.Equal(t, []any{"k", "v"}, r.entries[1].keyvals)
	}
}

func TestWithPrependsFields(t *testing.T) {
	r := &recorder{}
	Init(r)
	t.Cleanup(func() { Init() })

	l := With("request_id", "abc").With("uid", "109THU00099005")
	l.Warn("slow request", "ms", 1200)

	require.Len(t, r.entries, 1)
	assert.Equal(t, []any{"request_id", "abc", "uid", "109THU00099005", "ms", 1200}, r.entries[0].keyvals)
}

func TestUninitialisedIsNoop(t *testing.T) {
	mu.Lock()
	singleton = nil
	mu.Unlock()

	assert.NotPanics(t, func() {
		Info("dropped")
		With("a", 1).Error("dropped")
	})
}

func TestConsoleJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Format: console.FormatJSON, Output: &buf}))
	t.Cleanup(func() { Init() })

	Info("listening", "port", 8777)
	Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "listening", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 8777, line["port"])
}

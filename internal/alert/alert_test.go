package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

func testAlert() types.Alert {
	return types.Alert{
		Level:     types.AlertLevelError,
		HubRunID:  "hub-42",
		Repo:      "acme/widgets",
		Message:   "run failed",
		Timestamp: time.Now(),
	}
}

func TestConsoleSink_Send(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{out: &buf}
	assert.Equal(t, "console", sink.Name())

	ctx := context.Background()
	for _, level := range []types.AlertLevel{types.AlertLevelError, types.AlertLevelWarning, types.AlertLevelInfo} {
		a := testAlert()
		a.Level = level
		require.NoError(t, sink.Send(ctx, a))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ERROR")
	assert.Contains(t, lines[1], "WARN")
	assert.Contains(t, lines[2], "INFO")
	assert.Contains(t, lines[0], "[acme/widgets] run failed")
}

func TestConsoleSink_FleetAlert(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{out: &buf}

	a := testAlert()
	a.Repo = ""
	a.Message = "fleet thresholds exceeded"
	require.NoError(t, sink.Send(context.Background(), a))
	assert.NotContains(t, buf.String(), "[]")
	assert.Contains(t, buf.String(), "fleet thresholds exceeded")
}

func TestWebhookSink_Send_Success(t *testing.T) {
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	assert.Equal(t, "webhook", sink.Name())
	alert := testAlert()

	require.NoError(t, sink.Send(context.Background(), alert))

	var got types.Alert
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, alert.Message, got.Message)
	assert.Equal(t, alert.Repo, got.Repo)
	assert.Equal(t, alert.HubRunID, got.HubRunID)
}

func TestWebhookSink_Send_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)

	err := sink.Send(context.Background(), testAlert())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookSink_Send_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWebhookSink(ts.URL).Send(ctx, testAlert())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSink_Send(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")

	sink, err := NewFileSink(path)
	require.NoError(t, err)
	assert.Equal(t, "file", sink.Name())

	first := testAlert()
	second := testAlert()
	second.Message = "threshold exceeded"
	require.NoError(t, sink.Send(context.Background(), first))
	require.NoError(t, sink.Send(context.Background(), second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var got fileRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "threshold exceeded", got.Message)
	assert.Equal(t, "hub-42", got.HubRunID)
	assert.Equal(t, "[error] acme/widgets", got.Subject)
}

func TestFileSink_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "alerts", "alerts.jsonl")

	sink, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), testAlert()))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileSink_StampsMissingTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sink, err := NewFileSink(path)
	require.NoError(t, err)
	sink.now = func() time.Time { return fixed }

	a := testAlert()
	a.Timestamp = time.Time{}
	require.NoError(t, sink.Send(context.Background(), a))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got fileRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &got))
	assert.True(t, fixed.Equal(got.Timestamp))
}

func TestFileSink_PerHubRunPath(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "alerts-"+HubRunPlaceholder+".jsonl"))
	require.NoError(t, err)

	a := testAlert()
	b := testAlert()
	b.HubRunID = "hub-43"
	c := testAlert()
	c.HubRunID = ""
	for _, alert := range []types.Alert{a, b, c} {
		require.NoError(t, sink.Send(context.Background(), alert))
	}

	for _, name := range []string{"alerts-hub-42.jsonl", "alerts-hub-43.jsonl", "alerts-unknown.jsonl"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, 1, strings.Count(string(data), "\n"), name)
	}
}

func TestFileSink_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewFileSink(filepath.Join(blocker, "alerts.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating alert dir")
}

// errSink is a test sink that always returns an error.
type errSink struct{}

func (s *errSink) Send(_ context.Context, _ types.Alert) error { return fmt.Errorf("sink error") }
func (s *errSink) Name() string                                { return "error-sink" }

// recordSink records all alerts sent to it.
type recordSink struct {
	alerts []types.Alert
}

func (s *recordSink) Send(_ context.Context, a types.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}
func (s *recordSink) Name() string { return "record-sink" }

func TestDispatcher_MultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	d := &Dispatcher{sinks: []Sink{s1, s2}, logger: slog.Default()}

	alert := testAlert()
	d.Dispatch(context.Background(), alert)

	assert.Len(t, s1.alerts, 1)
	assert.Len(t, s2.alerts, 1)
	assert.Equal(t, alert.Message, s1.alerts[0].Message)
}

func TestDispatcher_SinkError_ContinuesOthers(t *testing.T) {
	var logs bytes.Buffer
	failing := &errSink{}
	recording := &recordSink{}
	d := &Dispatcher{
		sinks:  []Sink{failing, recording},
		logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}

	d.Dispatch(context.Background(), testAlert())

	assert.Len(t, recording.alerts, 1)
	assert.Contains(t, logs.String(), "alert delivery failed")
	assert.Contains(t, logs.String(), "error-sink")
}

func TestDispatcher_AlertFunc(t *testing.T) {
	rec := &recordSink{}
	d, err := NewDispatcher(context.Background(), nil, nil)
	require.NoError(t, err)
	d.AddSink(rec)
	assert.Equal(t, 1, d.Len())

	fn := d.AlertFunc()
	fn(context.Background(), testAlert())
	assert.Len(t, rec.alerts, 1)
}

func TestNewDispatcher_FromConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	d, err := NewDispatcher(context.Background(), []types.AlertConfig{
		{Type: types.AlertConsole},
		{Type: types.AlertFile, Path: path},
		{Type: types.AlertWebhook, URL: "http://localhost:9/hook"},
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
}

func TestNewDispatcher_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.AlertConfig
		want string
	}{
		{name: "webhook without url", cfg: types.AlertConfig{Type: types.AlertWebhook}, want: "webhook URL required"},
		{name: "file without path", cfg: types.AlertConfig{Type: types.AlertFile}, want: "file path required"},
		{name: "sns without topic", cfg: types.AlertConfig{Type: types.AlertSNS}, want: "topic ARN required"},
		{name: "sqs without queue", cfg: types.AlertConfig{Type: types.AlertSQS}, want: "queue URL required"},
		{name: "s3 without bucket", cfg: types.AlertConfig{Type: types.AlertS3}, want: "bucket name required"},
		{name: "unknown type", cfg: types.AlertConfig{Type: "pager"}, want: `unknown alert type "pager"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(context.Background(), []types.AlertConfig{tt.cfg}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSubject(t *testing.T) {
	a := testAlert()
	assert.Equal(t, "[error] acme/widgets", subject(a))

	a.Repo = ""
	assert.Equal(t, "[error] hub-42", subject(a))

	a.HubRunID = ""
	assert.Equal(t, "[error] fleet", subject(a))
}

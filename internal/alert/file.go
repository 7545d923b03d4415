package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// HubRunPlaceholder in a file sink path is replaced by the alert's hub run id,
// giving each fleet run its own alert log.
const HubRunPlaceholder = "{hubRunId}"

// FileSink appends alerts as JSON lines to a file. Missing parent directories
// are created, so the path can point into a CI artifact directory.
type FileSink struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// fileRecord is one line of the alert log.
type fileRecord struct {
	Subject string `json:"subject"`
	types.Alert
}

// NewFileSink creates a file alert sink. A path without the hub run
// placeholder is opened once so an unwritable location fails early.
func NewFileSink(path string) (*FileSink, error) {
	s := &FileSink{path: path, now: time.Now}
	if strings.Contains(path, HubRunPlaceholder) {
		return s, nil
	}
	f, err := s.open(path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return s, nil
}

// Name returns the sink identifier.
func (s *FileSink) Name() string { return "file" }

// Send appends the alert as a JSON line. A zero timestamp is stamped with the
// current time.
func (s *FileSink) Send(_ context.Context, alert types.Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(fileRecord{Subject: subject(alert), Alert: alert})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(s.pathFor(alert))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(append(data, '\n'))
	return err
}

func (s *FileSink) pathFor(alert types.Alert) string {
	id := alert.HubRunID
	if id == "" {
		id = "unknown"
	}
	return strings.ReplaceAll(s.path, HubRunPlaceholder, id)
}

func (s *FileSink) open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating alert dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening alert file: %w", err)
	}
	return f, nil
}

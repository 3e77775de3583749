package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// TranscriptConfig controls the per-session NDJSON transcript.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// TranscriptEvent is one line of a session transcript.
type TranscriptEvent struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Story     string `json:"story_id,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
}

// TranscriptLogger records completed turns.
type TranscriptLogger interface {
	Log(event TranscriptEvent)
	Close() error
}

type noopTranscript struct{}

func (noopTranscript) Log(TranscriptEvent) {}
func (noopTranscript) Close() error        { return nil }

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// fileTranscript appends events to <dir>/<session>.ndjson from a single
// background goroutine. Events are dropped when the queue is full.
type fileTranscript struct {
	dir    string
	queue  chan TranscriptEvent
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTranscriptLogger returns a file-backed logger, or a no-op one when
// disabled.
func NewTranscriptLogger(cfg TranscriptConfig, logger *slog.Logger) (TranscriptLogger, error) {
	if !cfg.Enabled {
		return noopTranscript{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	t := &fileTranscript{
		dir:    cfg.Dir,
		queue:  make(chan TranscriptEvent, cfg.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go t.run()
	logger.Info("Conversation transcripts enabled", "dir", cfg.Dir)
	return t, nil
}

func (t *fileTranscript) Log(event TranscriptEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case t.queue <- event:
	default:
		t.logger.Warn("Transcript queue full, dropping event", "session_id", event.SessionID)
	}
}

// Close flushes queued events and stops the writer.
func (t *fileTranscript) Close() error {
	t.closeOnce.Do(func() { close(t.queue) })
	<-t.done
	return nil
}

func (t *fileTranscript) run() {
	defer close(t.done)
	for event := range t.queue {
		if err := t.write(event); err != nil {
			t.logger.Warn("Failed to write transcript", "session_id", event.SessionID, "error", err)
		}
	}
}

func (t *fileTranscript) write(event TranscriptEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	path := filepath.Join(t.dir, transcriptFileName(event.SessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func transcriptFileName(sessionID string) string {
	name := unsafeFileChars.ReplaceAllString(sessionID, "_")
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name + ".ndjson"
}

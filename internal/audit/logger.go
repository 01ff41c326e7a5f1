package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is one audit trail record.
type Event struct {
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Keys whose values are redacted anywhere in the payload tree.
var sensitiveKeys = []string{"api_key", "apikey", "token", "password", "authorization", "secret"}

// Logger appends audit events to date-partitioned JSONL files, one object
// per line. Writes are serialized; a disabled logger is a no-op.
type Logger struct {
	dir     string
	enabled bool
	mu      sync.Mutex
	log     *logrus.Logger
}

// NewLogger creates the audit logger, ensuring the directory exists.
func NewLogger(dir string, enabled bool, log *logrus.Logger) (*Logger, error) {
	if log == nil {
		log = logrus.New()
	}
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		log.WithField("dir", dir).Info("Audit logging enabled")
	}
	return &Logger{dir: dir, enabled: enabled, log: log}, nil
}

// Record writes one event. The payload is deep-copied with credential-like
// keys redacted before serialization.
func (l *Logger) Record(eventType, requestID string, payload map[string]interface{}) error {
	if !l.enabled {
		return nil
	}

	event := Event{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		EventType: eventType,
		Payload:   redactMap(payload),
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.currentFile(event.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// currentFile returns the log path for the event's date. One file per day,
// named audit-YYYY-MM-DD.log, each line a JSON object.
func (l *Logger) currentFile(ts time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", ts.Format("2006-01-02")))
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redactMap copies a payload, replacing sensitive values at any depth.
func redactMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = redactMap(val)
		case []interface{}:
			items := make([]interface{}, len(val))
			for i, item := range val {
				if nested, ok := item.(map[string]interface{}); ok {
					items[i] = redactMap(nested)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

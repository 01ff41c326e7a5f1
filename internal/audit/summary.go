package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Summary aggregates one day's audit file for the diagnostics surface.
type Summary struct {
	Date   string         `json:"date"`
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	Failed int            `json:"failed"`
}

// Summarize reads the JSONL file for the given date and counts events.
// A missing file yields an empty summary, not an error.
func (l *Logger) Summarize(date time.Time) (*Summary, error) {
	summary := &Summary{
		Date:   date.UTC().Format("2006-01-02"),
		ByType: make(map[string]int),
	}
	if !l.enabled {
		return summary, nil
	}

	f, err := os.Open(l.currentFile(date.UTC()))
	if os.IsNotExist(err) {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			l.log.WithError(err).Warn("Skipping malformed audit line")
			continue
		}
		summary.Total++
		summary.ByType[event.EventType]++
		if status, ok := event.Payload["status"].(string); ok && status == "failed" {
			summary.Failed++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return summary, nil
}

package progress

import (
	"strings"
	"sync"
)

const clientLogCapacity = 100

// Severity classifies a logged event for client-side display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one classified, retained event.
type LogEntry struct {
	Event    Event    `json:"event"`
	Severity Severity `json:"severity"`
}

// ClientLog retains the last clientLogCapacity events per workflow,
// classified by severity so a client reconnecting after a dropped SSE
// connection can replay recent history instead of losing it.
type ClientLog struct {
	mu      sync.Mutex
	entries map[string][]LogEntry
}

// NewClientLog constructs an empty ring-buffer log.
func NewClientLog() *ClientLog {
	return &ClientLog{entries: make(map[string][]LogEntry)}
}

// Append classifies ev and appends it to workflowID's buffer, evicting
// the oldest entry once the buffer exceeds clientLogCapacity.
func (c *ClientLog) Append(workflowID string, ev Event) {
	entry := LogEntry{Event: ev, Severity: classify(ev)}

	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.entries[workflowID]
	buf = append(buf, entry)
	if len(buf) > clientLogCapacity {
		buf = buf[len(buf)-clientLogCapacity:]
	}
	c.entries[workflowID] = buf
}

// Recent returns a copy of workflowID's retained log entries, oldest
// first.
func (c *ClientLog) Recent(workflowID string) []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.entries[workflowID]
	out := make([]LogEntry, len(buf))
	copy(out, buf)
	return out
}

func classify(ev Event) Severity {
	if ev.Topic == TopicError || ev.Error != "" {
		return SeverityError
	}
	lower := strings.ToLower(ev.Message)
	if strings.Contains(lower, "retry") || strings.Contains(lower, "stalled") || strings.Contains(lower, "fallback") {
		return SeverityWarning
	}
	return SeverityInfo
}

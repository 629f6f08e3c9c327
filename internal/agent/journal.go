package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JournalEventType classifies an entry in a turn journal.
type JournalEventType string

const (
	JournalSessionStart JournalEventType = "session_start"
	JournalSessionEnd   JournalEventType = "session_end"
	JournalUserMessage  JournalEventType = "user_message"
	JournalReply        JournalEventType = "reply"
	JournalToolCall     JournalEventType = "tool_call"
	JournalToolResult   JournalEventType = "tool_result"
	JournalContextReset JournalEventType = "context_reset"
	JournalSuggestions  JournalEventType = "suggestions"
	JournalEnding       JournalEventType = "ending"
	JournalError        JournalEventType = "error"
)

// JournalEvent is one JSONL line.
type JournalEvent struct {
	Type      JournalEventType `json:"type"`
	Timestamp time.Time        `json:"ts"`
	SessionID string           `json:"session_id"`
	Data      any              `json:"data,omitempty"`
}

// Journal appends structured events for one session to
// {dir}/{session_id}.jsonl. A nil *Journal discards everything.
type Journal struct {
	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	sessionID string
	path      string
}

// OpenJournal opens (or continues) the journal for sessionID in dir.
func OpenJournal(dir, sessionID string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
	}
	path := JournalPath(dir, sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{file: f, enc: json.NewEncoder(f), sessionID: sessionID, path: path}, nil
}

// JournalPath returns where the journal for sessionID lives.
func JournalPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".jsonl")
}

// Log writes an event.
func (j *Journal) Log(typ JournalEventType, data any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc == nil {
		return
	}
	_ = j.enc.Encode(JournalEvent{
		Type:      typ,
		Timestamp: time.Now(),
		SessionID: j.sessionID,
		Data:      data,
	})
}

// Close closes the file. Later Log calls are dropped.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		_ = j.file.Close()
		j.file = nil
		j.enc = nil
	}
}

// ReadJournal reads the last n events from path (all when n <= 0).
func ReadJournal(path string, n int) ([]JournalEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var events []JournalEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt JournalEvent
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// FormatJournal formats events for display.
func FormatJournal(events []JournalEvent, title string) string {
	if len(events) == 0 {
		return "No events recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d events):\n", title, len(events))
	for _, evt := range events {
		ts := evt.Timestamp.Local().Format("15:04:05")
		dataStr := ""
		switch d := evt.Data.(type) {
		case nil:
		case string:
			dataStr = truncate(d, 80)
		case map[string]any:
			if name, ok := d["action"].(string); ok {
				dataStr = name
				if res, ok := d["result"].(string); ok {
					dataStr += " " + truncate(res, 60)
				}
			} else if text, ok := d["text"].(string); ok {
				dataStr = truncate(text, 80)
			} else {
				raw, _ := json.Marshal(d)
				dataStr = truncate(string(raw), 80)
			}
		default:
			raw, _ := json.Marshal(d)
			dataStr = truncate(string(raw), 80)
		}
		if dataStr != "" {
			fmt.Fprintf(&sb, "  %s  %-14s  %s\n", ts, evt.Type, dataStr)
		} else {
			fmt.Fprintf(&sb, "  %s  %s\n", ts, evt.Type)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Package transcript reads the append-only JSONL logs that agent providers
// write for each coding session and reduces them into a compact live view:
// who the session is, what it has consumed, and whether it is waiting on the
// user. Parsing tolerates malformed lines because the logs are written by an
// external process that may be interrupted mid-line.
package transcript

import (
	"encoding/json"
	"time"
)

// EntryType discriminates transcript records. Lines carrying any other type
// tag are dropped at parse time rather than probed field-by-field downstream.
type EntryType string

const (
	EntrySystem    EntryType = "system"
	EntryUser      EntryType = "user"
	EntryAssistant EntryType = "assistant"
)

// Content block types within a structured message body.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of a structured message body. Only the fields
// relevant to its Type are populated.
type ContentBlock struct {
	Type      string
	Text      string // text blocks
	ID        string // tool_use id
	Name      string // tool_use tool name
	ToolUseID string // tool_result back-reference
}

// Usage carries the token counters an assistant entry reports.
type Usage struct {
	InputTokens          int64
	OutputTokens         int64
	CacheReadInputTokens int64
}

// Message is the message payload of a user or assistant entry. Content is
// either plain text (Text set, Blocks nil) or an ordered block sequence.
type Message struct {
	Role       string
	Text       string
	Blocks     []ContentBlock
	Model      string
	StopReason string
	Usage      *Usage
}

// Entry is one parsed transcript record. Immutable once parsed.
type Entry struct {
	Type      EntryType
	SessionID string
	Slug      string
	Cwd       string
	GitBranch string
	Version   string
	Timestamp time.Time
	Message   *Message
}

// HasToolUse reports whether the entry's message contains at least one
// tool invocation block.
func (e Entry) HasToolUse() bool {
	if e.Message == nil {
		return false
	}
	for _, b := range e.Message.Blocks {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// UserText extracts the human-readable text of a user entry: the plain
// string content, or the first text block of a structured body. Returns ""
// for tool-result-only entries.
func (e Entry) UserText() string {
	if e.Message == nil {
		return ""
	}
	if e.Message.Text != "" {
		return e.Message.Text
	}
	for _, b := range e.Message.Blocks {
		if b.Type == BlockText {
			return b.Text
		}
	}
	return ""
}

type rawEntry struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Slug      string      `json:"slug"`
	Cwd       string      `json:"cwd"`
	GitBranch string      `json:"gitBranch"`
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Content    json.RawMessage `json:"content"`
	Usage      *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens          int64 `json:"input_tokens"`
	OutputTokens         int64 `json:"output_tokens"`
	CacheReadInputTokens int64 `json:"cache_read_input_tokens"`
}

type rawBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	ToolUseID string `json:"tool_use_id"`
}

// ParseEntry parses one transcript line. ok is false for malformed JSON and
// for records whose type is not system, user, or assistant.
func ParseEntry(line []byte) (Entry, bool) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}

	var typ EntryType
	switch raw.Type {
	case "system":
		typ = EntrySystem
	case "user":
		typ = EntryUser
	case "assistant":
		typ = EntryAssistant
	default:
		return Entry{}, false
	}

	entry := Entry{
		Type:      typ,
		SessionID: raw.SessionID,
		Slug:      raw.Slug,
		Cwd:       raw.Cwd,
		GitBranch: raw.GitBranch,
		Version:   raw.Version,
	}
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			entry.Timestamp = ts
		}
	}
	if raw.Message != nil {
		entry.Message = parseMessage(raw.Message)
	}
	return entry, true
}

func parseMessage(raw *rawMessage) *Message {
	msg := &Message{
		Role:       raw.Role,
		Model:      raw.Model,
		StopReason: raw.StopReason,
	}
	if raw.Usage != nil {
		msg.Usage = &Usage{
			InputTokens:          raw.Usage.InputTokens,
			OutputTokens:         raw.Usage.OutputTokens,
			CacheReadInputTokens: raw.Usage.CacheReadInputTokens,
		}
	}

	// Content is either a plain string or an ordered array of blocks.
	if len(raw.Content) > 0 {
		var text string
		if err := json.Unmarshal(raw.Content, &text); err == nil {
			msg.Text = text
			return msg
		}
		var blocks []rawBlock
		if err := json.Unmarshal(raw.Content, &blocks); err == nil {
			for _, b := range blocks {
				msg.Blocks = append(msg.Blocks, ContentBlock{
					Type:      b.Type,
					Text:      b.Text,
					ID:        b.ID,
					Name:      b.Name,
					ToolUseID: b.ToolUseID,
				})
			}
		}
	}
	return msg
}

package transcript

import (
	"time"

	"github.com/agentsight/agentsight/internal/util"
)

// LastUserMessageLimit caps the preview text kept for the most recent user
// prompt.
const LastUserMessageLimit = 100

// WaitReason says why a session is blocked on the user, if it is.
type WaitReason string

const (
	WaitNone         WaitReason = ""
	WaitUserQuestion WaitReason = "user_question"
	WaitPermission   WaitReason = "permission"
)

// askUserQuestionTool is the tool providers use to pose an explicit question
// back to the user; a pending invocation of it outranks a plain permission
// wait.
const askUserQuestionTool = "AskUserQuestion"

// TokenCounts accumulates usage across a session's assistant entries.
type TokenCounts struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	CacheRead int64 `json:"cacheRead"`
}

// Total returns the sum of all counters.
func (t TokenCounts) Total() int64 {
	return t.Input + t.Output + t.CacheRead
}

// Add accumulates other into t.
func (t *TokenCounts) Add(other TokenCounts) {
	t.Input += other.Input
	t.Output += other.Output
	t.CacheRead += other.CacheRead
}

// Info is the aggregate a single reduction pass produces for one session.
// Summary fields with nothing to report are empty, never null: consumers
// render them directly.
type Info struct {
	SessionID       string      `json:"sessionId,omitempty"`
	Slug            string      `json:"slug,omitempty"`
	Cwd             string      `json:"cwd,omitempty"`
	GitBranch       string      `json:"gitBranch,omitempty"`
	Version         string      `json:"version,omitempty"`
	Model           string      `json:"model,omitempty"`
	TurnCount       int         `json:"turnCount"`
	LastUserMessage string      `json:"lastUserMessage"`
	CurrentTools    []string    `json:"currentTools"`
	Tokens          TokenCounts `json:"tokens"`
	StartedAt       time.Time   `json:"startedAt"`
	LastActivity    time.Time   `json:"lastActivity"`
	WaitReason      WaitReason  `json:"waitReason,omitempty"`
	WaitToolNames   []string    `json:"waitToolNames,omitempty"`
	LastStopReason  string      `json:"lastStopReason,omitempty"`
}

// Reduce folds an ordered entry sequence into an Info. One forward pass
// accumulates identity, usage, and progress; a bounded backward pass derives
// the pending-tool wait state. now anchors the timestamp bounds when the
// entries carry none.
func Reduce(entries []Entry, now time.Time) Info {
	info := Info{
		CurrentTools: []string{},
		StartedAt:    now,
		LastActivity: now,
	}

	var minTS, maxTS time.Time
	for _, e := range entries {
		if e.SessionID != "" {
			info.SessionID = e.SessionID
		}
		if e.Slug != "" {
			info.Slug = e.Slug
		}
		if e.Cwd != "" {
			info.Cwd = e.Cwd
		}
		if e.GitBranch != "" {
			info.GitBranch = e.GitBranch
		}
		if e.Version != "" {
			info.Version = e.Version
		}
		if !e.Timestamp.IsZero() {
			if minTS.IsZero() || e.Timestamp.Before(minTS) {
				minTS = e.Timestamp
			}
			if maxTS.IsZero() || e.Timestamp.After(maxTS) {
				maxTS = e.Timestamp
			}
		}

		switch e.Type {
		case EntryUser:
			info.TurnCount++
			if text := e.UserText(); text != "" {
				info.LastUserMessage = util.TruncateRunes(text, LastUserMessageLimit)
			}
		case EntryAssistant:
			if e.Message == nil {
				continue
			}
			if e.Message.Model != "" {
				info.Model = e.Message.Model
			}
			info.LastStopReason = e.Message.StopReason
			if e.Message.Usage != nil {
				info.Tokens.Input += e.Message.Usage.InputTokens
				info.Tokens.Output += e.Message.Usage.OutputTokens
				info.Tokens.CacheRead += e.Message.Usage.CacheReadInputTokens
			}
			if tools := toolUseNames(e); len(tools) > 0 {
				// Replaced, not merged: only the latest tool burst matters.
				info.CurrentTools = tools
			}
		}
	}

	if !minTS.IsZero() {
		info.StartedAt = minTS
	}
	if !maxTS.IsZero() {
		info.LastActivity = maxTS
	}

	info.WaitReason, info.WaitToolNames = pendingToolWait(entries)
	return info
}

func toolUseNames(e Entry) []string {
	if e.Message == nil {
		return nil
	}
	var names []string
	for _, b := range e.Message.Blocks {
		if b.Type == BlockToolUse {
			names = append(names, b.Name)
		}
	}
	return names
}

// pendingToolWait scans backward for the most recent tool-invoking assistant
// entry and checks which of its invocations have a matching tool result in a
// later user entry. The scan stops at that entry regardless of outcome:
// earlier tool bursts are already answered or abandoned. Linear in the tail
// window, which is bounded, so this stays cheap per refresh.
func pendingToolWait(entries []Entry) (WaitReason, []string) {
	anchor := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == EntryAssistant && entries[i].HasToolUse() {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return WaitNone, nil
	}

	resolved := make(map[string]bool)
	for _, e := range entries[anchor+1:] {
		if e.Type != EntryUser || e.Message == nil {
			continue
		}
		for _, b := range e.Message.Blocks {
			if b.Type == BlockToolResult && b.ToolUseID != "" {
				resolved[b.ToolUseID] = true
			}
		}
	}

	var pending []string
	askUser := false
	for _, b := range entries[anchor].Message.Blocks {
		if b.Type != BlockToolUse || resolved[b.ID] {
			continue
		}
		pending = append(pending, b.Name)
		if b.Name == askUserQuestionTool {
			askUser = true
		}
	}

	switch {
	case askUser:
		return WaitUserQuestion, pending
	case len(pending) > 0:
		return WaitPermission, pending
	default:
		return WaitNone, nil
	}
}

package transcript

import (
	"strings"
	"testing"
	"time"
)

func ts(minute int) time.Time {
	return time.Date(2026, 1, 2, 10, minute, 0, 0, time.UTC)
}

func userEntry(text string, at time.Time) Entry {
	return Entry{
		Type:      EntryUser,
		Timestamp: at,
		Message:   &Message{Role: "user", Text: text},
	}
}

func toolResultEntry(at time.Time, toolUseIDs ...string) Entry {
	var blocks []ContentBlock
	for _, id := range toolUseIDs {
		blocks = append(blocks, ContentBlock{Type: BlockToolResult, ToolUseID: id})
	}
	return Entry{
		Type:      EntryUser,
		Timestamp: at,
		Message:   &Message{Role: "user", Blocks: blocks},
	}
}

func assistantEntry(at time.Time, msg *Message) Entry {
	if msg == nil {
		msg = &Message{Role: "assistant"}
	}
	msg.Role = "assistant"
	return Entry{Type: EntryAssistant, Timestamp: at, Message: msg}
}

func toolUseBlock(id, name string) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name}
}

func TestReduceIdentityFields(t *testing.T) {
	entries := []Entry{
		{Type: EntrySystem, SessionID: "s1", Cwd: "/old", GitBranch: "main", Version: "1.0"},
		{Type: EntryUser, SessionID: "s1", Cwd: "/new", Message: &Message{Role: "user", Text: "hi"}},
		{Type: EntrySystem, Slug: "fix-the-bug"},
	}

	info := Reduce(entries, ts(0))
	if info.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", info.SessionID)
	}
	if info.Cwd != "/new" {
		t.Errorf("Cwd = %q, want /new (last non-empty wins)", info.Cwd)
	}
	if info.GitBranch != "main" || info.Version != "1.0" || info.Slug != "fix-the-bug" {
		t.Errorf("identity fields = %+v", info)
	}
}

func TestReduceTimestampBounds(t *testing.T) {
	t.Run("min and max across entries", func(t *testing.T) {
		entries := []Entry{
			userEntry("a", ts(5)),
			userEntry("b", ts(1)),
			userEntry("c", ts(9)),
		}
		info := Reduce(entries, ts(30))
		if !info.StartedAt.Equal(ts(1)) {
			t.Errorf("StartedAt = %v, want %v", info.StartedAt, ts(1))
		}
		if !info.LastActivity.Equal(ts(9)) {
			t.Errorf("LastActivity = %v, want %v", info.LastActivity, ts(9))
		}
	})

	t.Run("falls back to now when no timestamps", func(t *testing.T) {
		now := ts(42)
		info := Reduce([]Entry{{Type: EntryUser, Message: &Message{Role: "user", Text: "x"}}}, now)
		if !info.StartedAt.Equal(now) || !info.LastActivity.Equal(now) {
			t.Errorf("bounds = %v/%v, want both %v", info.StartedAt, info.LastActivity, now)
		}
	})
}

func TestReduceTurnCountAndLastUserMessage(t *testing.T) {
	t.Run("counts user entries including tool results", func(t *testing.T) {
		entries := []Entry{
			userEntry("question", ts(0)),
			assistantEntry(ts(1), &Message{Blocks: []ContentBlock{toolUseBlock("tu_1", "Bash")}}),
			toolResultEntry(ts(2), "tu_1"),
		}
		info := Reduce(entries, ts(10))
		if info.TurnCount != 2 {
			t.Errorf("TurnCount = %d, want 2", info.TurnCount)
		}
	})

	t.Run("keeps latest textual user message", func(t *testing.T) {
		entries := []Entry{
			userEntry("first prompt", ts(0)),
			userEntry("second prompt", ts(1)),
			toolResultEntry(ts(2), "tu_9"),
		}
		info := Reduce(entries, ts(10))
		if info.LastUserMessage != "second prompt" {
			t.Errorf("LastUserMessage = %q, want %q", info.LastUserMessage, "second prompt")
		}
	})

	t.Run("extracts first text block from structured content", func(t *testing.T) {
		entries := []Entry{{
			Type:      EntryUser,
			Timestamp: ts(0),
			Message: &Message{Role: "user", Blocks: []ContentBlock{
				{Type: BlockToolResult, ToolUseID: "tu_1"},
				{Type: BlockText, Text: "structured prompt"},
				{Type: BlockText, Text: "ignored second block"},
			}},
		}}
		info := Reduce(entries, ts(10))
		if info.LastUserMessage != "structured prompt" {
			t.Errorf("LastUserMessage = %q, want %q", info.LastUserMessage, "structured prompt")
		}
	})

	t.Run("truncates long messages with ellipsis", func(t *testing.T) {
		long := strings.Repeat("x", 150)
		info := Reduce([]Entry{userEntry(long, ts(0))}, ts(10))
		want := strings.Repeat("x", 100) + "..."
		if info.LastUserMessage != want {
			t.Errorf("LastUserMessage length = %d, want %d", len(info.LastUserMessage), len(want))
		}
	})

	t.Run("empty when no user text anywhere", func(t *testing.T) {
		info := Reduce([]Entry{toolResultEntry(ts(0), "tu_1")}, ts(10))
		if info.LastUserMessage != "" {
			t.Errorf("LastUserMessage = %q, want empty", info.LastUserMessage)
		}
		if info.CurrentTools == nil || len(info.CurrentTools) != 0 {
			t.Errorf("CurrentTools = %#v, want empty non-nil slice", info.CurrentTools)
		}
	})
}

func TestReduceModelAndTokens(t *testing.T) {
	entries := []Entry{
		assistantEntry(ts(0), &Message{
			Model: "sonnet-4-5",
			Usage: &Usage{InputTokens: 100, OutputTokens: 20, CacheReadInputTokens: 1000},
		}),
		assistantEntry(ts(1), &Message{
			Usage: &Usage{InputTokens: 50, OutputTokens: 30, CacheReadInputTokens: 500},
		}),
		assistantEntry(ts(2), &Message{Model: "opus-4-1"}),
	}

	info := Reduce(entries, ts(10))
	if info.Model != "opus-4-1" {
		t.Errorf("Model = %q, want opus-4-1 (most recent setter)", info.Model)
	}
	want := TokenCounts{Input: 150, Output: 50, CacheRead: 1500}
	if info.Tokens != want {
		t.Errorf("Tokens = %+v, want %+v", info.Tokens, want)
	}
}

func TestReduceCurrentToolsReplaced(t *testing.T) {
	entries := []Entry{
		assistantEntry(ts(0), &Message{Blocks: []ContentBlock{
			toolUseBlock("tu_1", "Read"),
			toolUseBlock("tu_2", "Grep"),
		}}),
		toolResultEntry(ts(1), "tu_1", "tu_2"),
		assistantEntry(ts(2), &Message{Blocks: []ContentBlock{
			toolUseBlock("tu_3", "Bash"),
		}}),
	}

	info := Reduce(entries, ts(10))
	if len(info.CurrentTools) != 1 || info.CurrentTools[0] != "Bash" {
		t.Errorf("CurrentTools = %v, want [Bash] (replaced, not merged)", info.CurrentTools)
	}
}

func TestReducePendingToolWait(t *testing.T) {
	tests := []struct {
		name        string
		entries     []Entry
		wantReason  WaitReason
		wantPending []string
	}{
		{
			name: "all tools resolved",
			entries: []Entry{
				assistantEntry(ts(0), &Message{Blocks: []ContentBlock{toolUseBlock("tu_1", "Bash")}}),
				toolResultEntry(ts(1), "tu_1"),
			},
			wantReason: WaitNone,
		},
		{
			name: "pending tool means permission wait",
			entries: []Entry{
				assistantEntry(ts(0), &Message{Blocks: []ContentBlock{toolUseBlock("tu_1", "Bash")}}),
			},
			wantReason:  WaitPermission,
			wantPending: []string{"Bash"},
		},
		{
			name: "pending AskUserQuestion outranks permission",
			entries: []Entry{
				assistantEntry(ts(0), &Message{Blocks: []ContentBlock{
					toolUseBlock("tu_1", "Bash"),
					toolUseBlock("tu_2", "AskUserQuestion"),
				}}),
				toolResultEntry(ts(1), "tu_1"),
			},
			wantReason:  WaitUserQuestion,
			wantPending: []string{"AskUserQuestion"},
		},
		{
			name: "partial results leave the rest pending",
			entries: []Entry{
				assistantEntry(ts(0), &Message{Blocks: []ContentBlock{
					toolUseBlock("tu_1", "Read"),
					toolUseBlock("tu_2", "Write"),
				}}),
				toolResultEntry(ts(1), "tu_1"),
			},
			wantReason:  WaitPermission,
			wantPending: []string{"Write"},
		},
		{
			name: "scan stops at most recent tool burst",
			entries: []Entry{
				// Old burst never answered; newer burst fully resolved.
				assistantEntry(ts(0), &Message{Blocks: []ContentBlock{toolUseBlock("tu_1", "Bash")}}),
				assistantEntry(ts(1), &Message{Blocks: []ContentBlock{toolUseBlock("tu_2", "Read")}}),
				toolResultEntry(ts(2), "tu_2"),
			},
			wantReason: WaitNone,
		},
		{
			name: "results before the burst do not count",
			entries: []Entry{
				toolResultEntry(ts(0), "tu_1"),
				assistantEntry(ts(1), &Message{Blocks: []ContentBlock{toolUseBlock("tu_1", "Bash")}}),
			},
			wantReason:  WaitPermission,
			wantPending: []string{"Bash"},
		},
		{
			name: "no tool-invoking assistant entry",
			entries: []Entry{
				userEntry("hi", ts(0)),
				assistantEntry(ts(1), &Message{Text: "hello", StopReason: "end_turn"}),
			},
			wantReason: WaitNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Reduce(tt.entries, ts(30))
			if info.WaitReason != tt.wantReason {
				t.Errorf("WaitReason = %q, want %q", info.WaitReason, tt.wantReason)
			}
			if len(info.WaitToolNames) != len(tt.wantPending) {
				t.Fatalf("WaitToolNames = %v, want %v", info.WaitToolNames, tt.wantPending)
			}
			for i := range tt.wantPending {
				if info.WaitToolNames[i] != tt.wantPending[i] {
					t.Errorf("WaitToolNames[%d] = %q, want %q", i, info.WaitToolNames[i], tt.wantPending[i])
				}
			}
		})
	}
}

func TestReduceEmptyEntries(t *testing.T) {
	now := ts(7)
	info := Reduce(nil, now)
	if info.TurnCount != 0 || info.LastUserMessage != "" || info.WaitReason != WaitNone {
		t.Errorf("unexpected zero-state: %+v", info)
	}
	if !info.StartedAt.Equal(now) || !info.LastActivity.Equal(now) {
		t.Errorf("bounds = %v/%v, want both %v", info.StartedAt, info.LastActivity, now)
	}
}

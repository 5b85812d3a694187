package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the state of one operation family (verify or mutate).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Role identifies the author of a chat transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of the fault-target chat transcript.
// Entries are never edited or reordered once appended.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NoticeVariant selects how a notice is rendered.
type NoticeVariant string

const (
	NoticeDefault     NoticeVariant = "default"
	NoticeDestructive NoticeVariant = "destructive"
)

// Notice is a short operator-facing message produced by an operation attempt.
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Variant     NoticeVariant `json:"variant"`
}

// Session is the state of one panel view. It is owned by a single
// controller; every other component works on copies.
type Session struct {
	ID      uuid.UUID `json:"id"`
	Version uint64    `json:"version"`

	AgentID    string `json:"agent_id"`
	TargetFile string `json:"target_file"`
	// TargetLine holds the line number as the operator typed it. It is
	// parsed into a positive integer when an operation runs.
	TargetLine         string `json:"target_line"`
	VerifiedContent    string `json:"verified_content"`
	ReplacementContent string `json:"replacement_content"`

	VerifyState   Status `json:"verify_state"`
	VerifyMessage string `json:"verify_message,omitempty"`
	MutateState   Status `json:"mutate_state"`
	MutateMessage string `json:"mutate_message,omitempty"`

	ChatQuery   string        `json:"chat_query"`
	ChatLoading bool          `json:"chat_loading"`
	Transcript  []ChatMessage `json:"transcript"`

	LastNotice *Notice `json:"last_notice,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session with both status machines idle.
func NewSession(id uuid.UUID, now time.Time) Session {
	return Session{
		ID:          id,
		VerifyState: StatusIdle,
		MutateState: StatusIdle,
		Transcript:  []ChatMessage{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s Session) Clone() Session {
	out := s
	out.Transcript = slices.Clone(s.Transcript)
	if out.Transcript == nil {
		out.Transcript = []ChatMessage{}
	}
	if s.LastNotice != nil {
		n := *s.LastNotice
		out.LastNotice = &n
	}
	return out
}

// Triggers reports which operation controls are currently enabled.
type Triggers struct {
	CanVerify bool `json:"can_verify"`
	CanMutate bool `json:"can_mutate"`
	CanChat   bool `json:"can_chat"`
}

// Triggers derives the enabled state of the verify, mutate and chat controls.
// Mutation requires a successful verify for the current target.
func (s Session) Triggers() Triggers {
	return Triggers{
		CanVerify: s.VerifyState != StatusLoading,
		CanMutate: s.MutateState != StatusLoading && s.VerifiedContent != "",
		CanChat:   !s.ChatLoading && strings.TrimSpace(s.AgentID) != "" && strings.TrimSpace(s.ChatQuery) != "",
	}
}

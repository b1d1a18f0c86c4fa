// Package context stores per-session conversation turns and serves
// token-budgeted views of them.
package context

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Stats summarizes one session.
type Stats struct {
	TotalTurns  int `json:"total_turns"`
	TotalTokens int `json:"total_tokens"`
}

type session struct {
	mu          sync.RWMutex
	turns       []types.ConversationTurn
	totalTokens int
	createdAt   time.Time
}

// Manager owns all sessions. Sessions are isolated: the map is guarded by
// one lock and each session by its own.
type Manager struct {
	sessions map[string]*session
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*session),
	}
}

// CreateSession starts a session under a fresh random id.
func (m *Manager) CreateSession() string {
	for {
		id := uuid.NewString()
		if err := m.CreateSessionWithID(id); err == nil {
			return id
		}
	}
}

// CreateSessionWithID starts a session under a caller-chosen id.
func (m *Manager) CreateSessionWithID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrSessionNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = &session{createdAt: time.Now()}
	return nil
}

// HasSession reports whether id exists.
func (m *Manager) HasSession(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Sessions returns all session ids, sorted.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := slices.Collect(maps.Keys(m.sessions))
	sort.Strings(ids)
	return ids
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// AddUserTurn appends a user turn. tokens is a caller-supplied cost.
func (m *Manager) AddUserTurn(id, text string, tokens int) (types.ConversationTurn, error) {
	return m.add(id, types.ConversationTurn{
		Role:      types.RoleUser,
		Content:   text,
		Tokens:    tokens,
		Timestamp: time.Now(),
	})
}

// AddAssistantTurn appends an assistant turn with the tools it used.
func (m *Manager) AddAssistantTurn(id, text string, tokens int, toolsUsed []string, toolResults map[string]any) (types.ConversationTurn, error) {
	return m.add(id, types.ConversationTurn{
		Role:        types.RoleAssistant,
		Content:     text,
		Tokens:      tokens,
		ToolsUsed:   dedupe(toolsUsed),
		ToolResults: maps.Clone(toolResults),
		Timestamp:   time.Now(),
	})
}

func (m *Manager) add(id string, turn types.ConversationTurn) (types.ConversationTurn, error) {
	s, err := m.get(id)
	if err != nil {
		return types.ConversationTurn{}, err
	}
	if turn.Tokens < 0 {
		turn.Tokens = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	s.totalTokens += turn.Tokens
	return turn, nil
}

// Restore appends previously stored turns to an existing session, keeping
// their timestamps.
func (m *Manager) Restore(id string, turns []types.ConversationTurn) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range turns {
		s.turns = append(s.turns, t)
		s.totalTokens += t.Tokens
	}
	return nil
}

// Turns returns a copy of the session's turns, oldest first.
func (m *Manager) Turns(id string) ([]types.ConversationTurn, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// ConversationContext serializes every turn as role-prefixed lines, oldest first.
func (m *Manager) ConversationContext(id string) (string, error) {
	turns, err := m.Turns(id)
	if err != nil {
		return "", err
	}
	return FormatTurns(turns), nil
}

// TrimToWindow returns the most recent turns that fit in maxTokens, walking
// from newest to oldest and stopping at the first turn that would overflow.
// The newest minTurnsToKeep turns are always included, even over budget.
// Stored history is never modified.
func (m *Manager) TrimToWindow(id string, maxTokens, minTurnsToKeep int) (string, error) {
	turns, err := m.WindowTurns(id, maxTokens, minTurnsToKeep)
	if err != nil {
		return "", err
	}
	return FormatTurns(turns), nil
}

// WindowTurns is TrimToWindow returning the selected turns.
func (m *Manager) WindowTurns(id string, maxTokens, minTurnsToKeep int) ([]types.ConversationTurn, error) {
	turns, err := m.Turns(id)
	if err != nil {
		return nil, err
	}

	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		kept := len(turns) - i
		cost := turns[i].Tokens
		if kept > minTurnsToKeep && used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}
	return turns[start:], nil
}

// Stats returns turn and token totals for a session.
func (m *Manager) Stats(id string) (Stats, error) {
	s, err := m.get(id)
	if err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{TotalTurns: len(s.turns), TotalTokens: s.totalTokens}, nil
}

// FormatTurns renders turns as "User: ..." / "Assistant: ..." lines.
func FormatTurns(turns []types.ConversationTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Label(), t.Content)
		if len(t.ToolsUsed) > 0 {
			fmt.Fprintf(&sb, "  [tools: %s]\n", strings.Join(t.ToolsUsed, ", "))
		}
	}
	return sb.String()
}

// EstimateTokens is a word-count cost estimate for callers without a
// tokenizer.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	sort.Strings(out)
	return slices.Compact(out)
}

// Package cache tracks which conversation turns have already been sent to
// the model under a given system prompt, so later prompts can reference
// them instead of repeating them.
package cache

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	ctxmgr "github.com/ashutoshrp06/friday/internal/context"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/zeebo/blake3"
)

// Entry is the cached state of one session.
type Entry struct {
	SessionID   string
	PromptHash  string
	Turns       []types.ConversationTurn
	TotalTokens int
	LastUpdated time.Time
}

// Stats aggregates over all sessions.
type Stats struct {
	SessionsTracked   int `json:"sessions_tracked"`
	TurnsCached       int `json:"turns_cached"`
	TokensMarkedSaved int `json:"tokens_marked_saved"`
}

type turnKey struct {
	role    types.Role
	content string
	at      int64
}

func keyOf(t types.ConversationTurn) turnKey {
	return turnKey{role: t.Role, content: t.Content, at: t.Timestamp.UnixNano()}
}

// Manager keeps one Entry per session and reads history from the context
// manager.
type Manager struct {
	history *ctxmgr.Manager

	mu      sync.Mutex
	entries map[string]*Entry
	saved   int
}

func NewManager(history *ctxmgr.Manager) *Manager {
	return &Manager{
		history: history,
		entries: make(map[string]*Entry),
	}
}

// HashPrompt returns the hex BLAKE3-256 digest of a system prompt.
func HashPrompt(systemPrompt string) string {
	sum := blake3.Sum256([]byte(systemPrompt))
	return hex.EncodeToString(sum[:])
}

// CacheSystemPrompt returns the hash identifying this system prompt version.
func (m *Manager) CacheSystemPrompt(systemPrompt string) string {
	return HashPrompt(systemPrompt)
}

// UpdateConversationCache appends turn to the session's entry. An entry
// stored under a different prompt hash is discarded first.
func (m *Manager) UpdateConversationCache(sessionID, promptHash string, turn types.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok || entry.PromptHash != promptHash {
		entry = &Entry{SessionID: sessionID, PromptHash: promptHash}
		m.entries[sessionID] = entry
	}
	entry.Turns = append(entry.Turns, turn)
	entry.TotalTokens += turn.Tokens
	entry.LastUpdated = time.Now()
}

// CachedConversation returns a copy of the session's entry.
func (m *Manager) CachedConversation(sessionID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	out := *entry
	out.Turns = append([]types.ConversationTurn(nil), entry.Turns...)
	return out, true
}

// BuildIncrementalPrompt assembles the system prompt, a one-line reference
// to the cached turns, the full text of every history turn not in the
// cache, and the new user input. Without an entry under this prompt's hash
// the whole history is included.
func (m *Manager) BuildIncrementalPrompt(sessionID, systemPrompt, userInput string) (string, error) {
	turns, err := m.history.Turns(sessionID)
	if err != nil {
		return "", err
	}
	hash := HashPrompt(systemPrompt)

	cached := make(map[turnKey]bool)
	cachedTokens := 0
	m.mu.Lock()
	if entry, ok := m.entries[sessionID]; ok && entry.PromptHash == hash {
		for _, t := range entry.Turns {
			cached[keyOf(t)] = true
		}
	}
	m.mu.Unlock()

	var fresh []types.ConversationTurn
	hits := 0
	for _, t := range turns {
		if cached[keyOf(t)] {
			hits++
			cachedTokens += t.Tokens
			continue
		}
		fresh = append(fresh, t)
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	if hits > 0 {
		fmt.Fprintf(&sb, "[cached context: %d turns, ~%d tokens, prompt %s]\n", hits, cachedTokens, hash[:8])
		m.mu.Lock()
		m.saved += cachedTokens
		m.mu.Unlock()
	}
	sb.WriteString(ctxmgr.FormatTurns(fresh))
	fmt.Fprintf(&sb, "User: %s\n", userInput)
	return sb.String(), nil
}

// Invalidate drops a session's entry.
func (m *Manager) Invalidate(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
}

// Stats returns totals over all entries.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{TokensMarkedSaved: m.saved}
	for _, e := range m.entries {
		s.SessionsTracked++
		s.TurnsCached += len(e.Turns)
	}
	return s
}

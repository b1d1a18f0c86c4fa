package cache

import (
	"strings"
	"sync"
	"testing"

	ctxmgr "github.com/ashutoshrp06/friday/internal/context"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManagers(t *testing.T) (*ctxmgr.Manager, *Manager, string) {
	t.Helper()
	history := ctxmgr.NewManager()
	return history, NewManager(history), history.CreateSession()
}

func addPair(t *testing.T, history *ctxmgr.Manager, id, q, a string) (types.ConversationTurn, types.ConversationTurn) {
	t.Helper()
	u, err := history.AddUserTurn(id, q, ctxmgr.EstimateTokens(q))
	require.NoError(t, err)
	r, err := history.AddAssistantTurn(id, a, ctxmgr.EstimateTokens(a), nil, nil)
	require.NoError(t, err)
	return u, r
}

func TestHashPrompt(t *testing.T) {
	a := HashPrompt("you are friday")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashPrompt("you are friday"))
	assert.NotEqual(t, a, HashPrompt("you are friday!"))

	_, m, _ := newTestManagers(t)
	assert.Equal(t, a, m.CacheSystemPrompt("you are friday"))
}

func TestUpdateConversationCache_Appends(t *testing.T) {
	history, m, id := newTestManagers(t)
	hash := m.CacheSystemPrompt("sys")

	_, ok := m.CachedConversation(id)
	assert.False(t, ok)

	u, r := addPair(t, history, id, "one two", "three")
	m.UpdateConversationCache(id, hash, u)
	m.UpdateConversationCache(id, hash, r)

	entry, ok := m.CachedConversation(id)
	require.True(t, ok)
	assert.Equal(t, hash, entry.PromptHash)
	assert.Len(t, entry.Turns, 2)
	assert.Equal(t, 3, entry.TotalTokens)
}

func TestUpdateConversationCache_PromptChangeResets(t *testing.T) {
	history, m, id := newTestManagers(t)
	oldHash := m.CacheSystemPrompt("v1")
	newHash := m.CacheSystemPrompt("v2")

	u1, r1 := addPair(t, history, id, "a", "b")
	m.UpdateConversationCache(id, oldHash, u1)
	m.UpdateConversationCache(id, oldHash, r1)

	u2, _ := addPair(t, history, id, "c", "d")
	m.UpdateConversationCache(id, newHash, u2)

	entry, ok := m.CachedConversation(id)
	require.True(t, ok)
	assert.Equal(t, newHash, entry.PromptHash)
	require.Len(t, entry.Turns, 1)
	assert.Equal(t, "c", entry.Turns[0].Content)
	assert.Equal(t, 1, entry.TotalTokens)
}

func TestCachedConversation_ReturnsCopy(t *testing.T) {
	history, m, id := newTestManagers(t)
	u, _ := addPair(t, history, id, "a", "b")
	m.UpdateConversationCache(id, "h", u)

	entry, _ := m.CachedConversation(id)
	entry.Turns[0].Content = "mutated"

	again, _ := m.CachedConversation(id)
	assert.Equal(t, "a", again.Turns[0].Content)
}

func TestBuildIncrementalPrompt(t *testing.T) {
	history, m, id := newTestManagers(t)
	const sys = "SYSTEM"
	hash := m.CacheSystemPrompt(sys)

	t.Run("cold session sends full history", func(t *testing.T) {
		addPair(t, history, id, "first question", "first answer")

		prompt, err := m.BuildIncrementalPrompt(id, sys, "next")
		require.NoError(t, err)
		assert.Equal(t,
			"SYSTEM\n\nUser: first question\nAssistant: first answer\nUser: next\n",
			prompt)
		assert.Zero(t, m.Stats().TokensMarkedSaved)
	})

	turns, err := history.Turns(id)
	require.NoError(t, err)
	for _, turn := range turns {
		m.UpdateConversationCache(id, hash, turn)
	}

	t.Run("warm session references cached turns", func(t *testing.T) {
		addPair(t, history, id, "second question", "second answer")

		prompt, err := m.BuildIncrementalPrompt(id, sys, "third")
		require.NoError(t, err)
		assert.Equal(t,
			"SYSTEM\n\n"+
				"[cached context: 2 turns, ~4 tokens, prompt "+hash[:8]+"]\n"+
				"User: second question\nAssistant: second answer\n"+
				"User: third\n",
			prompt)
		assert.NotContains(t, prompt, "first question")
		assert.Equal(t, 4, m.Stats().TokensMarkedSaved)
	})

	t.Run("stale hash sends full history", func(t *testing.T) {
		prompt, err := m.BuildIncrementalPrompt(id, "OTHER SYSTEM", "x")
		require.NoError(t, err)
		assert.NotContains(t, prompt, "[cached context")
		assert.Contains(t, prompt, "User: first question")
	})
}

func TestBuildIncrementalPrompt_GrowsWithNewContentOnly(t *testing.T) {
	history, m, id := newTestManagers(t)
	const sys = "S"
	hash := m.CacheSystemPrompt(sys)

	var sizes []int
	for range 5 {
		u, r := addPair(t, history, id, strings.Repeat("word ", 20), strings.Repeat("reply ", 20))
		m.UpdateConversationCache(id, hash, u)
		m.UpdateConversationCache(id, hash, r)

		prompt, err := m.BuildIncrementalPrompt(id, sys, "q")
		require.NoError(t, err)
		sizes = append(sizes, len(prompt))
	}

	// Only the digit counts in the reference line change between turns.
	for i := 1; i < len(sizes); i++ {
		assert.InDelta(t, sizes[0], sizes[i], 4)
	}
}

func TestBuildIncrementalPrompt_UnknownSession(t *testing.T) {
	_, m, _ := newTestManagers(t)
	_, err := m.BuildIncrementalPrompt("ghost", "s", "q")
	assert.ErrorIs(t, err, ctxmgr.ErrSessionNotFound)
}

func TestStatsAndInvalidate(t *testing.T) {
	history, m, id := newTestManagers(t)
	other := history.CreateSession()

	u, r := addPair(t, history, id, "a", "b")
	m.UpdateConversationCache(id, "h", u)
	m.UpdateConversationCache(id, "h", r)
	u2, _ := addPair(t, history, other, "c", "d")
	m.UpdateConversationCache(other, "h", u2)

	assert.Equal(t, Stats{SessionsTracked: 2, TurnsCached: 3}, m.Stats())

	m.Invalidate(id)
	_, ok := m.CachedConversation(id)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Stats().SessionsTracked)
}

func TestConcurrentSessions(t *testing.T) {
	history, m, _ := newTestManagers(t)
	hash := m.CacheSystemPrompt("sys")

	var wg sync.WaitGroup
	for range 8 {
		id := history.CreateSession()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				turn, err := history.AddUserTurn(id, "q", 1)
				if err != nil {
					return
				}
				m.UpdateConversationCache(id, hash, turn)
				_, _ = m.BuildIncrementalPrompt(id, "sys", "q")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Stats{SessionsTracked: 8, TurnsCached: 160, TokensMarkedSaved: m.Stats().TokensMarkedSaved}, m.Stats())
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Streamer) (string, *Usage, error) {
	t.Helper()
	chunks := make(chan string)
	var (
		usage *Usage
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(chunks)
		usage, err = s.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, chunks)
	}()

	var sb strings.Builder
	for c := range chunks {
		sb.WriteString(c)
	}
	<-done
	return sb.String(), usage, err
}

func TestOpenAIStreamer(t *testing.T) {
	type request struct {
		Model  string    `json:"model"`
		Stream bool      `json:"stream"`
		Msgs   []Message `json:"messages"`
	}
	requests := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests <- req
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"<thinking>", "hola", "</thinking>"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":4,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s := NewOpenAIStreamer(Config{Endpoint: srv.URL + "/v1", Model: "test-model", APIKey: "k"})
	text, usage, err := collect(t, s)
	require.NoError(t, err)

	assert.Equal(t, "<thinking>hola</thinking>", text)
	require.NotNil(t, usage)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, *usage)
	got := <-requests
	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.Stream)
	assert.Len(t, got.Msgs, 1)
	assert.Equal(t, "test-model", s.Model())
}

func TestOpenAIStreamer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewOpenAIStreamer(Config{Endpoint: srv.URL, Model: "m"})
	_, _, err := collect(t, s)
	assert.Error(t, err)
}

func ollamaServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Stream {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
}

func TestOllamaStreamer(t *testing.T) {
	srv := ollamaServer(t,
		`{"model":"m","message":{"role":"assistant","content":"<present_answer>"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"ok"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"</present_answer>"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":5,"eval_count":3}`,
	)
	defer srv.Close()

	s := NewOllamaStreamer(Config{Endpoint: srv.URL, Model: "m"})
	text, usage, err := collect(t, s)
	require.NoError(t, err)

	assert.Equal(t, "<present_answer>ok</present_answer>", text)
	require.NotNil(t, usage)
	assert.Equal(t, 8, usage.TotalTokens)
}

func TestOllamaStreamer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"error object", []string{`{"error":"model not found"}`}, "model not found"},
		{"truncated stream", []string{`{"message":{"content":"a"},"done":false}`}, "ended before done"},
		{"garbage", []string{`not json`}, "decode chunk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ollamaServer(t, tt.lines...)
			defer srv.Close()

			_, _, err := collect(t, NewOllamaStreamer(Config{Endpoint: srv.URL}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOllamaStreamer_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := collect(t, NewOllamaStreamer(Config{Endpoint: srv.URL}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestStream_ContextCancelled(t *testing.T) {
	srv := ollamaServer(t,
		`{"message":{"content":"a"},"done":false}`,
		`{"message":{"content":"b"},"done":false}`,
		`{"message":{"content":""},"done":true}`,
	)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan string)
	errc := make(chan error, 1)
	go func() {
		_, err := NewOllamaStreamer(Config{Endpoint: srv.URL}).Stream(ctx, nil, chunks)
		errc <- err
	}()

	assert.Equal(t, "a", <-chunks)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestNewStreamer(t *testing.T) {
	s, err := NewStreamer(Config{Provider: ProviderOllama, Model: "q"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaStreamer{}, s)

	s, err = NewStreamer(Config{Model: "gpt"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIStreamer{}, s)

	_, err = NewStreamer(Config{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("default template", func(t *testing.T) {
		p := BuildSystemPrompt("", "### tool_x")
		assert.Contains(t, p, "### tool_x")
		assert.Contains(t, p, "<present_answer>")
		assert.NotContains(t, p, toolRegistryVar)
	})

	t.Run("file template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		require.NoError(t, os.WriteFile(path, []byte("Tools:\n{{TOOL_REGISTRY}}\nEnd"), 0o644))
		assert.Equal(t, "Tools:\nREG\nEnd", BuildSystemPrompt(path, "REG"))
	})

	t.Run("missing file falls back", func(t *testing.T) {
		p := BuildSystemPrompt(filepath.Join(t.TempDir(), "nope.txt"), "REG")
		assert.Equal(t, BuildSystemPrompt("", "REG"), p)
	})
}

func TestPromptMessages(t *testing.T) {
	msgs := PromptMessages("SYS", "SYS\n\nUser: hi\n")
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: "system", Content: "SYS"}, msgs[0])
	assert.Equal(t, Message{Role: "user", Content: "User: hi\n"}, msgs[1])
}

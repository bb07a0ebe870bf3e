package semantic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/dictionary"
	"kswitchd/internal/spelling"
)

func newChecker() *spelling.Checker {
	s := dictionary.NewSet()
	s.Register(dictionary.English, dictionary.NewWordList(dictionary.English, []string{"hello", "world", "how", "are", "you"}))
	s.Register(dictionary.Russian, dictionary.NewWordList(dictionary.Russian, []string{"привет", "как", "дела", "выключил"}))
	return spelling.NewChecker(s, []dictionary.Language{dictionary.English, dictionary.Russian})
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"local": KindLocal, "tinyllm": KindLocal, "": KindLocal, "remote": KindRemote, "api": KindRemote} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("gpt")
	assert.Error(t, err)
}

func TestLocalCorrect(t *testing.T) {
	l := NewLocal(newChecker())
	ctx := context.Background()

	tests := []struct {
		name, in, want string
		ok             bool
	}{
		{"valid word", "hello", "", false},
		{"layout swap", "Ghbdtn", "Привет", true},
		{"mixed", "выклюchил", "выключил", true},
		{"spelling", "wrold", "world", true},
		{"phrase swap", "rfr ltkf", "как дела", true},
		{"phrase per word", "hello wrold", "hello world", true},
		{"caps", "GHBDTN", "", false},
		{"blank", "  ", "", false},
		{"unknown", "zzzzzzzzzz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := l.Correct(ctx, tt.in, "")
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := NewLocal(newChecker()).Correct(ctx, "wrold", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteRaw(t *testing.T) {
	var got rawRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"output":"<OUTPUT>привет</OUTPUT>"}`)
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{URL: srv.URL + "/v1/correct", APIKey: "secret", Model: "m1"})
	require.NoError(t, err)

	out, ok, err := r.Correct(context.Background(), "ghbdtn", "say")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "привет", out)
	assert.Equal(t, "ghbdtn", got.Text)
	assert.Equal(t, "say", got.Context)
	assert.Equal(t, 12, got.MaxTokens)
	assert.Equal(t, "m1", got.Model)
	assert.Contains(t, got.Prompt, "<RAW_INPUT>\nghbdtn\n</RAW_INPUT>")
}

func TestRemoteUnchangedAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/same":
			io.WriteString(w, `{"text":"hello"}`)
		case "/garbage":
			io.WriteString(w, `not json`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	r, err := NewRemote(RemoteConfig{URL: srv.URL + "/same"})
	require.NoError(t, err)
	_, ok, err := r.Correct(ctx, "hello", "")
	assert.NoError(t, err)
	assert.False(t, ok)

	r, err = NewRemote(RemoteConfig{URL: srv.URL + "/garbage"})
	require.NoError(t, err)
	_, ok, err = r.Correct(ctx, "hello", "")
	assert.NoError(t, err)
	assert.False(t, ok)

	r, err = NewRemote(RemoteConfig{URL: srv.URL + "/fail"})
	require.NoError(t, err)
	_, ok, err = r.Correct(ctx, "hello", "")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRemoteRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"fixed"}`)
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{URL: srv.URL, RatePerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	_, ok, err := r.Correct(context.Background(), "a", "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = r.Correct(context.Background(), "a", "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRemoteOpenAIMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"<OUTPUT>как дела</OUTPUT>"},"finish_reason":"stop"}]}`)
		case "/v1/models":
			io.WriteString(w, `{"object":"list","data":[{"id":"tiny","object":"model"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{URL: srv.URL + "/v1/correct", Mode: ModeOpenAI, Model: "tiny"})
	require.NoError(t, err)

	out, ok, err := r.Correct(context.Background(), "rfr ltkf", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "как дела", out)

	models, err := r.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny"}, models)
}

func TestNewRemoteValidation(t *testing.T) {
	_, err := NewRemote(RemoteConfig{})
	assert.Error(t, err)
	_, err = NewRemote(RemoteConfig{URL: "http://x", Mode: "grpc"})
	assert.Error(t, err)
}

func TestExtractResult(t *testing.T) {
	tests := []struct {
		body, want string
		ok         bool
	}{
		{`"plain"`, "plain", true},
		{`{"output":"a"}`, "a", true},
		{`{"result":" b "}`, "b", true},
		{`{"corrected":"c"}`, "c", true},
		{`{"choices":[{"text":"d"}]}`, "d", true},
		{`{"choices":[{"message":{"content":"<OUTPUT> e </OUTPUT>"}}]}`, "e", true},
		{`{"choices":[{"content":"f"}]}`, "f", true},
		{`{"output":42}`, "", false},
		{`{"unknown":"x"}`, "", false},
		{`[}`, "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractResult([]byte(tt.body))
		assert.Equal(t, tt.ok, ok, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080/v1/correct":     "http://localhost:8080",
		"http://localhost:8080/correct/":       "http://localhost:8080",
		"http://localhost:8080/v1/completions": "http://localhost:8080",
		"http://localhost:8080/completions":    "http://localhost:8080",
		"http://localhost:8080/api/fix":        "http://localhost:8080/api",
		"http://localhost:8080":                "http://localhost:8080",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseURL(in), in)
	}
}

func TestParseModels(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseModels([]byte(`{"data":[{"id":"a"},{"id":"b"},{"x":1}]}`)))
	assert.Equal(t, []string{"a"}, ParseModels([]byte(`[{"id":"a"},"skip"]`)))
	assert.Equal(t, []string{"a", "b", "c"}, ParseModels([]byte(`{"models":["a",{"id":"b"},{"name":"c"}]}`)))
	assert.Empty(t, ParseModels([]byte(`{"other":true}`)))
	assert.Empty(t, ParseModels([]byte(`nope`)))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		io.WriteString(w, `{"models":["qwen"]}`)
	}))
	defer srv.Close()

	ids, err := ListModels(context.Background(), srv.Client(), srv.URL+"/v1/correct")
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen"}, ids)
}

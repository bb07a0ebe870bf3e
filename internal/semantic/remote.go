package semantic

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

//go:embed prompt.md
var promptTemplate string

// Mode selects the remote wire format.
type Mode string

const (
	// ModeRaw posts a small JSON document to the endpoint and accepts a
	// range of response shapes.
	ModeRaw Mode = "raw"
	// ModeOpenAI talks to an OpenAI-compatible chat completions API.
	ModeOpenAI Mode = "openai"
)

// RemoteConfig configures a Remote provider.
type RemoteConfig struct {
	URL           string
	Model         string
	APIKey        string
	Mode          Mode
	RatePerSecond float64
	Burst         int
	// HTTPClient is used for raw mode and model listing. Defaults to a
	// client with a 3s timeout; per-call deadlines come from ctx.
	HTTPClient *http.Client
}

// Remote asks a network service for corrections.
type Remote struct {
	cfg     RemoteConfig
	http    *http.Client
	chat    *openai.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRemote returns a remote provider. The URL is required.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("semantic: remote url is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRaw
	}
	if cfg.Mode != ModeRaw && cfg.Mode != ModeOpenAI {
		return nil, fmt.Errorf("semantic: unknown remote mode %q", cfg.Mode)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 3 * time.Second}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	r := &Remote{
		cfg:     cfg,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default().With("component", "semantic"),
	}
	if cfg.Mode == ModeOpenAI {
		oc := openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = BaseURL(cfg.URL) + "/v1"
		oc.HTTPClient = cfg.HTTPClient
		r.chat = openai.NewClientWithConfig(oc)
	}
	return r, nil
}

// Name implements Provider.
func (r *Remote) Name() string { return string(KindRemote) }

// Correct implements Provider. Empty, unchanged or unparseable answers are
// reported as no correction.
func (r *Remote) Correct(ctx context.Context, text, surrounding string) (string, bool, error) {
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	if !r.limiter.Allow() {
		return "", false, ErrRateLimited
	}

	var (
		out string
		err error
	)
	if r.cfg.Mode == ModeOpenAI {
		out, err = r.correctChat(ctx, text, surrounding)
	} else {
		out, err = r.correctRaw(ctx, text, surrounding)
	}
	if err != nil {
		return "", false, err
	}
	out = strings.TrimSpace(out)
	if out == "" || out == text {
		return "", false, nil
	}
	return out, true, nil
}

type rawRequest struct {
	Prompt      string  `json:"prompt"`
	Text        string  `json:"text"`
	Context     string  `json:"context"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Model       string  `json:"model,omitempty"`
}

func (r *Remote) correctRaw(ctx context.Context, text, surrounding string) (string, error) {
	body, err := json.Marshal(rawRequest{
		Prompt:      promptTemplate + "\n<RAW_INPUT>\n" + text + "\n</RAW_INPUT>\n",
		Text:        text,
		Context:     surrounding,
		MaxTokens:   len([]rune(text)) * 2,
		Temperature: 0,
		Model:       r.cfg.Model,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", r.cfg.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("post %s: status %d", r.cfg.URL, resp.StatusCode)
	}

	out, ok := ExtractResult(data)
	if !ok {
		r.logger.Debug("unrecognized response shape", "bytes", len(data))
		return "", nil
	}
	return out, nil
}

func (r *Remote) correctChat(ctx context.Context, text, surrounding string) (string, error) {
	user := text
	if surrounding != "" {
		user = "Context: " + surrounding + "\n<RAW_INPUT>\n" + text + "\n</RAW_INPUT>"
	}
	resp, err := r.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: promptTemplate},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   len([]rune(text)) * 2,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return extractOutputTags(resp.Choices[0].Message.Content), nil
}

// ExtractResult pulls the corrected text out of a raw-mode response. Known
// shapes are a bare JSON string, a top-level output/text/result/completion/
// corrected field, and an OpenAI-like choices array.
func ExtractResult(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	root := gjson.ParseBytes(data)
	if root.Type == gjson.String {
		return extractOutputTags(root.String()), true
	}

	for _, key := range []string{"output", "text", "result", "completion", "corrected"} {
		if v := root.Get(key); v.Type == gjson.String {
			return extractOutputTags(v.String()), true
		}
	}

	var out string
	found := false
	root.Get("choices").ForEach(func(_, choice gjson.Result) bool {
		for _, path := range []string{"text", "message.content", "content"} {
			if v := choice.Get(path); v.Type == gjson.String {
				out, found = extractOutputTags(v.String()), true
				return false
			}
		}
		return true
	})
	return out, found
}

func extractOutputTags(s string) string {
	start := strings.Index(s, "<OUTPUT>")
	end := strings.Index(s, "</OUTPUT>")
	if start >= 0 && end > start {
		return strings.TrimSpace(s[start+len("<OUTPUT>") : end])
	}
	return strings.TrimSpace(s)
}

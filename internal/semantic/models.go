package semantic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var endpointSuffixes = []string{"/v1/correct", "/correct", "/v1/completions", "/completions"}

// BaseURL derives the service root from a correction endpoint URL, e.g.
// http://localhost:8080/v1/correct becomes http://localhost:8080.
func BaseURL(endpoint string) string {
	u := strings.TrimRight(endpoint, "/")
	for _, suffix := range endpointSuffixes {
		if strings.HasSuffix(u, suffix) {
			return strings.TrimSuffix(u, suffix)
		}
	}
	if i := strings.LastIndex(u, "/"); i > 0 && !strings.HasSuffix(u[:i], "/") {
		return u[:i]
	}
	return u
}

// ListModels queries GET {base}/v1/models on the service behind endpoint
// and returns the model IDs it advertises.
func ListModels(ctx context.Context, client *http.Client, endpoint string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	url := BaseURL(endpoint) + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	return ParseModels(data), nil
}

// ParseModels accepts {"data":[{"id":..}]}, a bare array of {"id":..}, and
// {"models":[...]} whose entries are strings or objects with id or name.
func ParseModels(data []byte) []string {
	if !gjson.ValidBytes(data) {
		return nil
	}
	root := gjson.ParseBytes(data)

	var ids []string
	collect := func(list gjson.Result, allowName bool) {
		list.ForEach(func(_, m gjson.Result) bool {
			switch {
			case m.Type == gjson.String && allowName:
				ids = append(ids, m.String())
			case m.Get("id").Exists():
				ids = append(ids, m.Get("id").String())
			case allowName && m.Get("name").Exists():
				ids = append(ids, m.Get("name").String())
			}
			return true
		})
	}

	switch {
	case root.IsArray():
		collect(root, false)
	case root.Get("data").IsArray():
		collect(root.Get("data"), false)
	case root.Get("models").IsArray():
		collect(root.Get("models"), true)
	}
	return ids
}

// Models lists models through the OpenAI client when the provider runs in
// openai mode, and through ListModels otherwise.
func (r *Remote) Models(ctx context.Context) ([]string, error) {
	if r.chat == nil {
		return ListModels(ctx, r.http, r.cfg.URL)
	}
	list, err := r.chat.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

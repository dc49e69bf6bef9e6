package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Model is a resolved hosted model version.
type Model struct {
	Workspace string
	Project   string
	Version   int
	ID        string
	Endpoint  string
}

// modelResolver looks up the model once and reuses it for the process lifetime.
// A failed lookup is not cached, so the next request tries again.
type modelResolver struct {
	client       *Client
	workspace    string
	project      string
	version      int
	inferenceURL string

	mu    sync.Mutex
	model *Model
}

func (r *modelResolver) get(ctx context.Context) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.model != nil {
		return r.model, nil
	}

	m, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	r.model = m
	r.client.logger.Info("📦 Roboflow model resolved: %s (%s)", m.ID, m.Endpoint)
	return m, nil
}

func (r *modelResolver) resolve(ctx context.Context) (*Model, error) {
	workspace := r.workspace
	if workspace == "" {
		var root struct {
			Workspace string `json:"workspace"`
		}
		if err := r.client.getJSON(ctx, "resolve workspace", "/", &root); err != nil {
			return nil, err
		}
		if root.Workspace == "" {
			return nil, serviceError("resolve workspace", 0, errors.New("API key has no default workspace"))
		}
		workspace = root.Workspace
	}

	var info struct {
		Version struct {
			ID    string `json:"id"`
			Model *struct {
				ID       string `json:"id"`
				Endpoint string `json:"endpoint"`
			} `json:"model"`
		} `json:"version"`
	}
	path := "/" + url.PathEscape(workspace) + "/" + url.PathEscape(r.project) + "/" + strconv.Itoa(r.version)
	if err := r.client.getJSON(ctx, "resolve model", path, &info); err != nil {
		return nil, err
	}
	if info.Version.Model == nil {
		return nil, serviceError("resolve model", 0, fmt.Errorf("version %s/%s/%d has no trained model", workspace, r.project, r.version))
	}

	m := &Model{
		Workspace: workspace,
		Project:   r.project,
		Version:   r.version,
		ID:        info.Version.Model.ID,
		Endpoint:  info.Version.Model.Endpoint,
	}
	if m.ID == "" {
		m.ID = r.project + "/" + strconv.Itoa(r.version)
	}
	if m.Endpoint == "" {
		m.Endpoint = strings.TrimRight(r.inferenceURL, "/") + "/" + m.ID
	}
	return m, nil
}

// getJSON issues an authenticated GET against the management API.
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	u, err := url.Parse(c.apiURL + path)
	if err != nil {
		return serviceError(op, 0, err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return serviceError(op, 0, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return serviceError(op, 0, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(op, resp.StatusCode, errors.New(readSnippet(resp.Body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return serviceError(op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// readSnippet returns the start of an error response body for diagnostics.
func readSnippet(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 512))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response body"
	}
	return s
}

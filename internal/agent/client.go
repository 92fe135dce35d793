// Package agent is the HTTP client for the suggestion/embedding backend.
// Transport failures degrade availability checks to false instead of
// propagating; task failure states are returned as data.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the backend over HTTP.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the backend answers its liveness probe. Any
// transport error means unavailable, never an error.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("agent unavailable", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Health runs the backend's deep health check with the given per-service
// timeout.
func (c *Client) Health(ctx context.Context, timeout time.Duration) (*HealthReport, error) {
	body := map[string]float64{"timeout": timeout.Seconds()}
	var report HealthReport
	if err := c.post(ctx, "/health", body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// TaskStatus polls the status of a task.
func (c *Client) TaskStatus(ctx context.Context, class TaskClass, taskID string) (*TaskStatusResponse, error) {
	var status TaskStatusResponse
	if err := c.get(ctx, fmt.Sprintf("/%s/status/%s", class, taskID), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SubmitNoteEmbeddings queues a batch of notes for embedding and returns
// the backend task id to poll.
func (c *Client) SubmitNoteEmbeddings(ctx context.Context, req NoteEmbedRequest) (string, error) {
	return c.submit(ctx, ClassNotes, req)
}

// SubmitEssayEmbeddings queues a document for chunked embedding.
func (c *Client) SubmitEssayEmbeddings(ctx context.Context, req EssayEmbedRequest) (string, error) {
	return c.submit(ctx, ClassEssays, req)
}

// GetNoteEmbeddings fetches the vectors of a successfully completed notes
// task.
func (c *Client) GetNoteEmbeddings(ctx context.Context, taskID string) ([]NoteEmbedding, error) {
	var out struct {
		Embeddings []NoteEmbedding `json:"embeddings"`
	}
	if err := c.get(ctx, fmt.Sprintf("/%s/get/%s", ClassNotes, taskID), &out); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

// GetEssayEmbeddings fetches the chunk vectors of a successfully completed
// essays task.
func (c *Client) GetEssayEmbeddings(ctx context.Context, taskID string) ([]EssayEmbedding, error) {
	var out struct {
		Embeddings []EssayEmbedding `json:"embeddings"`
	}
	if err := c.get(ctx, fmt.Sprintf("/%s/get/%s", ClassEssays, taskID), &out); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

// Suggest generates suggestions in a single round trip.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	var out SuggestResponse
	if err := c.post(ctx, "/suggests", req, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SuggestStream generates suggestions over NDJSON, invoking fn for every
// event. Streaming stops on the first fn error, on a malformed line, or
// when the backend sends its done event.
func (c *Client) SuggestStream(ctx context.Context, req SuggestRequest, fn func(StreamEvent) error) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("agent: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/suggests", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("agent: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("agent: suggest stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("agent: decode stream event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Type == EventDone {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("agent: read stream: %w", err)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, class TaskClass, body any) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, fmt.Sprintf("/%s/submit", class), body, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("agent: submit %s: empty task id", class)
	}
	return out.TaskID, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("agent: new request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("agent: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("agent: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent: decode response: %w", err)
	}
	return nil
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("agent: %s %s: status %d: %s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}

package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxIDsPerBatch is the app server's per-request limit for batch gets.
// Larger requests are split client-side and fetched concurrently.
const maxIDsPerBatch = 99

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger for the client.
func WithLogger(l logr.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client talks to the OpenHands app server's conversation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logr.Logger
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeConversationID parses a conversation ID in dashed or dashless UUID
// form and returns the canonical dashed representation.
func NormalizeConversationID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	return u.String(), nil
}

// StartConversation asks the app server to bring up a new conversation and
// returns the handle of the start task tracking it.
func (c *Client) StartConversation(ctx context.Context, req StartConversationRequest) (*StartTask, error) {
	body, status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/app-conversations", req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusAccepted:
		// success, parse below
	case http.StatusNotFound:
		return nil, fmt.Errorf("parent conversation %s not found", req.ParentConversationID)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var task StartTask
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("decoding start task: %w", err)
	}
	c.logger.V(1).Info("started conversation task", "task", task.ID, "status", task.Status)
	return &task, nil
}

// GetStartTask retrieves the current snapshot of a start task.
func (c *Client) GetStartTask(ctx context.Context, taskID string) (*StartTask, error) {
	body, status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/app-conversations/start-tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		// success, parse below
	case http.StatusNotFound:
		return nil, fmt.Errorf("start task %s not found", taskID)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var task StartTask
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("decoding start task: %w", err)
	}
	return &task, nil
}

// DeleteConversation removes a conversation. The clear flow calls this
// best-effort on the replaced conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	body, status, err := c.doJSON(ctx, http.MethodDelete, "/api/v1/app-conversations/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("conversation %s not found", conversationID)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, string(body))
	}
}

// ClearConversation invokes the single-call clear endpoint. The response must
// carry both conversation IDs; anything less is treated as a server bug.
func (c *Client) ClearConversation(ctx context.Context, conversationID string) (*ClearConversationResult, error) {
	body, status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/app-conversations/"+url.PathEscape(conversationID)+"/clear", nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		// success, parse below
	case http.StatusNotFound:
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var res ClearConversationResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding clear response: %w", err)
	}
	if res.NewConversationID == "" || res.ParentConversationID == "" {
		return nil, fmt.Errorf("invalid response from server: missing required fields")
	}
	return &res, nil
}

// BatchGetConversations fetches conversations by ID, preserving input order.
// Missing conversations come back as nil entries. IDs are normalized before
// the request; requests above the server's batch limit are split into chunks
// fetched concurrently.
func (c *Client) BatchGetConversations(ctx context.Context, ids []string) ([]*AppConversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	normalized := make([]string, len(ids))
	for i, id := range ids {
		n, err := NormalizeConversationID(id)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	results := make([]*AppConversation, len(normalized))
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(normalized); start += maxIDsPerBatch {
		end := min(start+maxIDsPerBatch, len(normalized))
		g.Go(func() error {
			chunk, err := c.batchGet(ctx, normalized[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) batchGet(ctx context.Context, ids []string) ([]*AppConversation, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	body, status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/app-conversations?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var convs []*AppConversation
	if err := json.Unmarshal(body, &convs); err != nil {
		return nil, fmt.Errorf("decoding conversations: %w", err)
	}
	if len(convs) != len(ids) {
		return nil, fmt.Errorf("server returned %d conversations for %d ids", len(convs), len(ids))
	}
	return convs, nil
}

// SearchRepositories lists repositories reachable through the app server's
// git integration, filtered by an optional substring query.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]Repository, error) {
	path := "/api/v1/git/repositories"
	if query != "" {
		path += "?query=" + url.QueryEscape(query)
	}
	body, status, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var repos []Repository
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("decoding repositories: %w", err)
	}
	return repos, nil
}

// GetRepositoryBranches lists the branches of a repository.
func (c *Client) GetRepositoryBranches(ctx context.Context, repoID string) ([]Branch, error) {
	body, status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/git/repositories/"+url.PathEscape(repoID)+"/branches", nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		// success, parse below
	case http.StatusNotFound:
		return nil, fmt.Errorf("repository %s not found", repoID)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", status, string(body))
	}

	var branches []Branch
	if err := json.Unmarshal(body, &branches); err != nil {
		return nil, fmt.Errorf("decoding branches: %w", err)
	}
	return branches, nil
}

// Health checks whether the app server is reachable and serving.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls the health endpoint with exponential backoff until the
// server answers, maxElapsed is spent, or the context is cancelled.
func (c *Client) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		if err := c.Health(ctx); err != nil {
			c.logger.V(1).Info("app server not ready yet", "error", err.Error())
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// doJSON issues a request with an optional JSON body and returns the response
// body and status code. Transport errors are returned as-is for callers to
// propagate.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

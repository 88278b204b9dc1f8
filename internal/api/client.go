package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"lectern/internal/services"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("lectern API unavailable")

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// LogQuery filters a /api/logs request.
type LogQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	Component string
	JobID     string
}

// NewClient builds a client for bind, which may be host:port or a URL.
// An empty bind yields a nil client whose calls fail with ErrUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: log follow and uploads are bounded by the caller's context.
		http: &http.Client{},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Queue lists pending jobs followed by recent terminal ones.
func (c *Client) Queue(ctx context.Context) ([]Job, error) {
	var out QueueListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/queue", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Progress reports the active job's stage progress.
func (c *Client) Progress(ctx context.Context) (Progress, error) {
	var out Progress
	err := c.doJSON(ctx, http.MethodGet, "/api/progress", nil, &out)
	return out, err
}

// UploadFile streams a local PDF to the daemon as a multipart upload.
func (c *Client) UploadFile(ctx context.Context, path string, force bool) (Job, error) {
	file, err := os.Open(path)
	if err != nil {
		return Job{}, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.WriteField("force", strconv.FormatBool(force))
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	var out JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue/upload", pr, form.FormDataContentType(), &out); err != nil {
		return Job{}, err
	}
	return out.Job, nil
}

// AddPath queues a PDF the daemon can read directly.
func (c *Client) AddPath(ctx context.Context, req UploadRequest) (Job, error) {
	var out JobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/queue/upload", req, &out); err != nil {
		return Job{}, err
	}
	return out.Job, nil
}

// Scan asks the daemon to reconcile its data directory now.
func (c *Client) Scan(ctx context.Context) (ScanResponse, error) {
	var out ScanResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/queue/scan", nil, &out)
	return out, err
}

// Pause stops the active job and holds the queue.
func (c *Client) Pause(ctx context.Context) (WorkflowStatus, error) {
	var out WorkflowStatus
	err := c.doJSON(ctx, http.MethodPost, "/api/queue/pause", nil, &out)
	return out, err
}

// Resume releases a paused queue.
func (c *Client) Resume(ctx context.Context) (WorkflowStatus, error) {
	var out WorkflowStatus
	err := c.doJSON(ctx, http.MethodPost, "/api/queue/resume", nil, &out)
	return out, err
}

// Retry re-queues a failed job.
func (c *Client) Retry(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/queue/retry", RetryRequest{ID: id}, &out); err != nil {
		return Job{}, err
	}
	return out.Job, nil
}

// Remove drops a pending job.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/queue/"+url.PathEscape(id), nil, nil)
}

// History returns journaled outcomes, optionally for one job.
func (c *Client) History(ctx context.Context, jobID string, limit int) ([]Outcome, error) {
	values := url.Values{}
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		values.Set("job", jobID)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/history", values), nil, &out); err != nil {
		return nil, err
	}
	return out.Outcomes, nil
}

// Papers lists the library index.
func (c *Client) Papers(ctx context.Context) ([]Paper, error) {
	var out PaperListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/papers", nil, &out); err != nil {
		return nil, err
	}
	return out.Papers, nil
}

// Paper loads one paper with both articles.
func (c *Client) Paper(ctx context.Context, id string) (PaperResponse, error) {
	var out PaperResponse
	err := c.doJSON(ctx, http.MethodGet, paperPath(id), nil, &out)
	return out, err
}

// Tree returns the stored rag tree JSON.
func (c *Client) Tree(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, paperPath(id)+"/tree", nil, &out)
	return out, err
}

// Match looks up the counterpart of a fragment in a paper.
func (c *Client) Match(ctx context.Context, id string, req MatchRequest) (MatchResponse, error) {
	var out MatchResponse
	err := c.doJSON(ctx, http.MethodPost, paperPath(id)+"/match", req, &out)
	return out, err
}

// SaveArtifact replaces one editable artifact of a paper.
func (c *Client) SaveArtifact(ctx context.Context, id, name string, data []byte) error {
	return c.do(ctx, http.MethodPut, paperPath(id)+"/artifacts/"+url.PathEscape(name), bytes.NewReader(data), "application/octet-stream", nil)
}

// DeletePaper removes a paper's artifacts and index row.
func (c *Client) DeletePaper(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, paperPath(id), nil, nil)
}

// Dedupe drops index rows whose paper directory vanished.
func (c *Client) Dedupe(ctx context.Context) (DedupeResponse, error) {
	var out DedupeResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/papers/dedupe", nil, &out)
	return out, err
}

// Logs fetches a page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if strings.TrimSpace(q.Component) != "" {
		values.Set("component", q.Component)
	}
	if strings.TrimSpace(q.JobID) != "" {
		values.Set("job", q.JobID)
	}
	var out LogStreamResponse
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/logs", values), nil, &out)
	return out, err
}

// Events subscribes to the orchestrator event stream. The channel closes when
// ctx ends or the daemon drops the connection.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	endpoint := *c.base
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = "/api/events"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, services.Wrap(services.ErrConfiguration, "api", "subscribe", "daemon rejected the api token", err)
		}
		return nil, err
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, reader, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint, err := c.base.Parse(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(method, path string, resp *http.Response) error {
	var payload ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	if payload.Error == "" {
		payload.Error = http.StatusText(resp.StatusCode)
	}
	op := method + " " + path
	switch resp.StatusCode {
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "api", op, payload.Error, nil)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "api", op, payload.Error, nil)
	case http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "api", op, "daemon rejected the api token", nil)
	default:
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, payload.Error)
	}
}

func paperPath(id string) string {
	return "/api/papers/" + url.PathEscape(id)
}

func withQuery(path string, values url.Values) string {
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}

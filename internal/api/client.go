package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ripcast/internal/history"
	"ripcast/internal/jobs"
)

// ErrAPIUnavailable marks connection-level failures to the daemon API.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client is the CLI's HTTP client for the daemon API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the configured bind address. An empty bind
// yields a nil client.
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
		// No overall timeout: event streaming blocks until caller cancels.
		http: &http.Client{},
	}, nil
}

// CreateJob submits a new extraction job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	var resp CreateJobResponse
	if err := c.postJSON(ctx, "/api/jobs", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// CreateBatch submits a batch of extraction jobs sharing one format.
func (c *Client) CreateBatch(ctx context.Context, req CreateBatchRequest) ([]string, error) {
	var resp CreateBatchResponse
	if err := c.postJSON(ctx, "/api/jobs/batch", req, &resp); err != nil {
		return nil, err
	}
	return resp.JobIDs, nil
}

// Job fetches a single job snapshot.
func (c *Client) Job(ctx context.Context, id string) (jobs.Snapshot, error) {
	var resp JobResponse
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return jobs.Snapshot{}, err
	}
	return resp.Job, nil
}

// Jobs fetches all live job snapshots.
func (c *Client) Jobs(ctx context.Context) ([]jobs.Snapshot, error) {
	var resp JobListResponse
	if err := c.getJSON(ctx, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.getJSON(ctx, "/api/status", nil, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

// History fetches archived terminal jobs.
func (c *Client) History(ctx context.Context, limit int) ([]history.Record, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var resp HistoryResponse
	if err := c.getJSON(ctx, "/api/history", values, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// FollowEvents attaches to a job's event stream and invokes onFrame for every
// frame until the stream closes or ctx ends.
func (c *Client) FollowEvents(ctx context.Context, id string, onFrame func(jobs.Frame)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/jobs/"+url.PathEscape(id)+"/events", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var frame jobs.Frame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		if onFrame != nil {
			onFrame(frame)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) endpoint(path string, values url.Values) string {
	target := *c.base
	target.Path = path
	if len(values) > 0 {
		target.RawQuery = values.Encode()
	}
	return target.String()
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, values), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
}

package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/jobs"
)

// Client は API サーバーのエージェント作成エンドポイントを呼び出します。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient は Client を作成します。timeout が0以下なら30秒です。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Success  bool         `json:"success"`
	JobID    string       `json:"jobId"`
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Progress *jobs.Status `json:"progress"`
}

// Create はエージェント作成を依頼してジョブIDを返します。
func (c *Client) Create(ctx context.Context, cfg agent.Config) (string, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	resp, status, err := c.do(ctx, http.MethodPost, "/api/agent/create", body)
	if err != nil {
		return "", err
	}
	if status/100 != 2 || !resp.Success {
		return "", fmt.Errorf("create agent: %s", describe(status, resp))
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("create agent: response has no jobId")
	}
	return resp.JobID, nil
}

// Status はジョブの現在状態を返します。
// サーバーが 404 を返した場合は jobs.ErrNotFound を返します。
func (c *Client) Status(ctx context.Context, jobID string) (*jobs.Status, error) {
	resp, status, err := c.do(ctx, http.MethodGet, "/api/agent/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	case status != http.StatusOK || resp.Progress == nil:
		return nil, fmt.Errorf("job status: %s", describe(status, resp))
	}
	st := resp.Progress
	st.JobID = jobID
	return st, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*apiResponse, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read response: %w", err)
	}
	var out apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, res.StatusCode, fmt.Errorf("server error: %s - %s", res.Status, string(raw))
		}
	}
	return &out, res.StatusCode, nil
}

func describe(status int, resp *apiResponse) string {
	if resp.Code != "" {
		return fmt.Sprintf("%d %s: %s", status, resp.Code, resp.Message)
	}
	if resp.Message != "" {
		return fmt.Sprintf("%d: %s", status, resp.Message)
	}
	return fmt.Sprintf("unexpected status %d", status)
}

package sandbox

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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"judgecore/internal/judge/metrics"
	"judgecore/pkg/utils/logger"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	maxErrorBody          = 4 << 10
)

// ClientConfig holds sandbox endpoint settings.
type ClientConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPClient talks to the sandbox REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

type runRequest struct {
	RequestID string `json:"requestId"`
	Cmd       []Cmd  `json:"cmd"`
}

type runResult struct {
	Status     string            `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Error      string            `json:"error,omitempty"`
	Time       uint64            `json:"time"`
	Memory     uint64            `json:"memory"`
	RunTime    uint64            `json:"runTime"`
	Files      map[string]string `json:"files,omitempty"`
	FileIDs    map[string]string `json:"fileIds,omitempty"`
}

// NewHTTPClient creates a client for the sandbox at cfg.BaseURL.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("sandbox baseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid sandbox baseURL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Execute runs a single command and waits for its result.
func (c *HTTPClient) Execute(ctx context.Context, cmd Cmd) (Result, error) {
	body, err := json.Marshal(runRequest{RequestID: uuid.NewString(), Cmd: []Cmd{cmd}})
	if err != nil {
		return Result{}, fmt.Errorf("encode run request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build run request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SandboxCall("transport_error")
		return Result{}, fmt.Errorf("%w: run request failed: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.SandboxCall("transport_error")
		return Result{}, fmt.Errorf("%w: run request returned %d: %s", ErrTransport, resp.StatusCode, readSnippet(resp.Body))
	}

	var results []runResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		metrics.SandboxCall("transport_error")
		return Result{}, fmt.Errorf("%w: decode run response failed: %v", ErrTransport, err)
	}
	if len(results) != 1 {
		metrics.SandboxCall("transport_error")
		return Result{}, fmt.Errorf("%w: expected 1 result, got %d", ErrTransport, len(results))
	}

	raw := results[0]
	metrics.SandboxCall(raw.Status)
	res := Result{
		Status:      MapStatus(raw.Status),
		RawStatus:   raw.Status,
		ExitStatus:  raw.ExitStatus,
		Error:       raw.Error,
		TimeNs:      raw.Time,
		RunTimeNs:   raw.RunTime,
		MemoryBytes: raw.Memory,
		Stdout:      raw.Files[StdoutName],
		Stderr:      raw.Files[StderrName],
		Files:       raw.Files,
		FileIDs:     raw.FileIDs,
	}
	if res.Status == StatusOtherFailure {
		logger.Warn(ctx, "sandbox reported failure",
			zap.String("status", raw.Status),
			zap.String("error", raw.Error),
		)
	}
	return res, nil
}

// Release deletes a cached file. A file that is already gone counts as released.
func (c *HTTPClient) Release(ctx context.Context, fileID string) error {
	if fileID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/file/"+url.PathEscape(fileID), nil)
	if err != nil {
		return fmt.Errorf("build release request failed: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: release request failed: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	default:
		return fmt.Errorf("%w: release returned %d: %s", ErrTransport, resp.StatusCode, readSnippet(resp.Body))
	}
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}

var _ Executor = (*HTTPClient)(nil)

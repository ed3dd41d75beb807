// Package sandboxhttp is the reference sandbox client: it drives a
// sandbox's HTTP control surface over /api/v1/shell and /api/v1/file,
// grounded directly on the original ai-manus project's DockerSandbox
// (infrastructure/external/sandbox/docker_sandbox.py) and shaped to
// satisfy internal/sandboxpool.Provisioner and
// internal/taskrunner.SandboxClient.
package sandboxhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowstack/sessioncore/internal/sandboxpool"
)

// Config names the backend a Provisioner reaches. In production this
// points at an already-running sandbox fleet behind AddressTemplate;
// provisioning a sandbox from scratch (container/microVM lifecycle)
// is external to this module, matching spec.md's scope.
type Config struct {
	// AddressTemplate is formatted with a newly generated sandbox id to
	// produce the sandbox's base URL, e.g. "http://sandbox-%s:8080".
	AddressTemplate string
	Timeout         time.Duration
}

// Provisioner implements sandboxpool.Provisioner by handing out a
// Client bound to a freshly generated sandbox id's base URL.
type Provisioner struct {
	cfg    Config
	client *http.Client
}

// NewProvisioner returns a Provisioner for cfg.
func NewProvisioner(cfg Config) *Provisioner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Provisioner{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (p *Provisioner) Provision(ctx context.Context, sessionID string) (*sandboxpool.Handle, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	return &sandboxpool.Handle{ID: id, SessionID: sessionID, CreatedAt: now}, nil
}

func (p *Provisioner) Destroy(ctx context.Context, handle *sandboxpool.Handle) error {
	client := p.clientFor(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/api/v1/shell/kill", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil
	}
	resp.Body.Close()
	return nil
}

// ClientFor returns the HTTP-backed SandboxClient for a pool handle,
// used by the task runner to enrich tool events.
func (p *Provisioner) ClientFor(handle *sandboxpool.Handle) *Client {
	return p.clientFor(handle)
}

func (p *Provisioner) clientFor(handle *sandboxpool.Handle) *Client {
	return &Client{
		baseURL: fmt.Sprintf(p.cfg.AddressTemplate, handle.ID),
		http:    p.client,
	}
}

// Client drives one sandbox instance's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client pointed directly at baseURL, for callers
// that already know the sandbox's address.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type toolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*toolResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sandboxhttp: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sandboxhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandboxhttp: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sandboxhttp: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandboxhttp: %s returned status %d", path, resp.StatusCode)
	}

	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("sandboxhttp: decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("sandboxhttp: %s failed: %s", path, result.Error)
	}
	return &result, nil
}

// ExecShell runs a command in the named shell session, grounded on
// DockerSandbox.exec_command.
func (c *Client) ExecShell(ctx context.Context, id, execDir, command string) (string, error) {
	result, err := c.post(ctx, "/api/v1/shell/exec", map[string]any{"id": id, "exec_dir": execDir, "command": command})
	if err != nil {
		return "", err
	}
	return result.Message, nil
}

// ViewShell returns the named shell session's console snapshot,
// grounded on DockerSandbox.view_shell.
func (c *Client) ViewShell(ctx context.Context, id string) (string, error) {
	result, err := c.post(ctx, "/api/v1/shell/view", map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	return result.Message, nil
}

// FileRead returns the contents of path, grounded on
// DockerSandbox.file_read.
func (c *Client) FileRead(ctx context.Context, path string) (string, error) {
	result, err := c.post(ctx, "/api/v1/file/read", map[string]any{"file": path})
	if err != nil {
		return "", err
	}
	return result.Message, nil
}

// FileWrite writes content to path, grounded on DockerSandbox.file_write.
func (c *Client) FileWrite(ctx context.Context, path, content string, appendContent bool) error {
	_, err := c.post(ctx, "/api/v1/file/write", map[string]any{"file": path, "content": content, "append": appendContent})
	return err
}

// Package browser pools Playwright browser instances for the browser
// tool, grounded on the teacher's internal/tools/browser/pool.go:
// instance creation, acquisition, release, and cleanup with a
// configurable pool size and user-agent rotation, adapted to back a
// sandboxed session's single shared browsing surface rather than the
// teacher's standalone Discord/Slack agent tool.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Instance wraps a Playwright browser, context, and page bound to one
// pool slot.
type Instance struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
	ID      string
}

// Pool manages a bounded set of browser instances for reuse across a
// session's successive browser tool calls.
type Pool struct {
	config    PoolConfig
	instances chan *Instance
	mu        sync.Mutex
	closed    bool
	pw        *playwright.Playwright
	userAgent int
	created   int
}

// PoolConfig configures pool sizing and launch behavior.
type PoolConfig struct {
	MaxInstances   int
	Timeout        time.Duration
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// RemoteURL points at a sandbox-hosted Playwright server instead of
	// launching a local browser, for the containerized sandbox runtime.
	RemoteURL string
}

// NewPool starts (or connects to) Playwright and returns an empty
// pool ready to serve Acquire calls.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.MaxInstances == 0 {
		config.MaxInstances = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1280
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 800
	}

	if strings.TrimSpace(config.RemoteURL) == "" {
		if err := playwright.Install(&playwright.RunOptions{Verbose: false}); err != nil {
			return &Pool{
				config:    config,
				instances: make(chan *Instance, config.MaxInstances),
			}, nil
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	return &Pool{
		config:    config,
		instances: make(chan *Instance, config.MaxInstances),
		pw:        pw,
	}, nil
}

// Acquire returns a pooled instance, creating one up to MaxInstances,
// or blocks until one is released or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("browser pool is closed")
		}
		select {
		case instance := <-p.instances:
			p.mu.Unlock()
			return instance, nil
		default:
		}
		if p.created < p.config.MaxInstances {
			p.created++
			p.mu.Unlock()
			instance, err := p.createInstance()
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, err
			}
			return instance, nil
		}
		p.mu.Unlock()

		select {
		case instance := <-p.instances:
			return instance, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns an instance to the pool, or tears it down if the
// pool is closed or at capacity.
func (p *Pool) Release(instance *Instance) {
	if instance == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		instance.cleanup()
		p.created--
		return
	}
	select {
	case p.instances <- instance:
	default:
		instance.cleanup()
		p.created--
	}
}

// Close tears down every pooled instance and stops Playwright.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	close(p.instances)
	for instance := range p.instances {
		instance.cleanup()
	}
	p.created = 0

	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("stop playwright: %w", err)
		}
	}
	return nil
}

func (p *Pool) createInstance() (*Instance, error) {
	if p.pw == nil {
		return nil, fmt.Errorf("playwright not initialized")
	}

	var b playwright.Browser
	remote := normalizeRemoteURL(p.config.RemoteURL)
	if remote != "" {
		var err error
		b, err = p.pw.Chromium.Connect(remote)
		if err != nil {
			return nil, fmt.Errorf("connect to sandbox browser: %w", err)
		}
	} else {
		var err error
		b, err = p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(p.config.Headless),
			Timeout:  playwright.Float(float64(p.config.Timeout.Milliseconds())),
		})
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(p.nextUserAgent()),
		Viewport: &playwright.Size{
			Width:  p.config.ViewportWidth,
			Height: p.config.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(p.config.Timeout.Milliseconds()))

	return &Instance{
		Browser: b,
		Context: bctx,
		Page:    page,
		ID:      fmt.Sprintf("browser-%d", len(p.instances)+p.created),
	}, nil
}

func normalizeRemoteURL(raw string) string {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return ""
	case strings.HasPrefix(value, "http://"):
		return "ws://" + strings.TrimPrefix(value, "http://")
	case strings.HasPrefix(value, "https://"):
		return "wss://" + strings.TrimPrefix(value, "https://")
	default:
		return value
	}
}

func (p *Pool) nextUserAgent() string {
	agents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := agents[p.userAgent%len(agents)]
	p.userAgent++
	return ua
}

func (i *Instance) cleanup() {
	if i.Page != nil {
		i.Page.Close()
	}
	if i.Context != nil {
		i.Context.Close()
	}
	if i.Browser != nil {
		i.Browser.Close()
	}
}

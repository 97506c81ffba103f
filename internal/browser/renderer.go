package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	scrollHeightScript = "() => document.body.scrollHeight"
	scrollToEndScript  = "() => window.scrollTo(0, document.body.scrollHeight)"
)

// Renderer returns fully loaded page markup. The underlying browser is
// launched on first use and belongs to exactly one session.
type Renderer struct {
	opts    *Options
	launch  func(*Options) (*Browser, error)
	mu      sync.Mutex
	browser *Browser
	closed  bool
	logger  *slog.Logger
}

func NewRenderer(opts *Options) *Renderer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Renderer{
		opts:   opts,
		launch: New,
		logger: slog.Default().With("component", "renderer"),
	}
}

// Render loads url once and returns its markup without scrolling.
func (r *Renderer) Render(ctx context.Context, url string) ([]byte, error) {
	return r.render(ctx, url, false)
}

// RenderFull loads url and keeps scrolling until the document stops growing.
func (r *Renderer) RenderFull(ctx context.Context, url string) ([]byte, error) {
	return r.render(ctx, url, true)
}

func (r *Renderer) render(ctx context.Context, url string, full bool) ([]byte, error) {
	b, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := b.NavigateWithRetry(ctx, page, url, r.opts.MaxRetries); err != nil {
		return nil, err
	}

	if full {
		attempts, err := ScrollUntilStable(ctx, page, r.opts.ScrollPause, r.opts.MaxScrollAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to load incremental content: %w", err)
		}
		r.logger.Debug("page fully loaded", "url", url, "scrolls", attempts)
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return []byte(content), nil
}

func (r *Renderer) ensureBrowser() (*Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	b, err := r.launch(r.opts)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("browser launched")
	r.browser = b
	return b, nil
}

// Close releases the browser if one was launched. Calling it again is a no-op.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// Evaluator is the subset of playwright.Page the scroll loop needs.
type Evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

var _ Evaluator = (playwright.Page)(nil)

// ScrollUntilStable scrolls to the bottom, pauses and repeats until the
// document height stops changing or maxAttempts scrolls were made. It returns
// the number of scrolls performed.
func ScrollUntilStable(ctx context.Context, page Evaluator, pause time.Duration, maxAttempts int) (int, error) {
	last, err := scrollHeight(page)
	if err != nil {
		return 0, err
	}

	attempts := 0
	for attempts < maxAttempts {
		if _, err := page.Evaluate(scrollToEndScript); err != nil {
			return attempts, fmt.Errorf("failed to scroll: %w", err)
		}
		attempts++

		if err := sleep(ctx, pause); err != nil {
			return attempts, err
		}

		height, err := scrollHeight(page)
		if err != nil {
			return attempts, err
		}
		if height == last {
			break
		}
		last = height
	}
	return attempts, nil
}

func scrollHeight(page Evaluator) (float64, error) {
	v, err := page.Evaluate(scrollHeightScript)
	if err != nil {
		return 0, fmt.Errorf("failed to read scroll height: %w", err)
	}
	switch h := v.(type) {
	case int:
		return float64(h), nil
	case int64:
		return float64(h), nil
	case float64:
		return h, nil
	default:
		return 0, fmt.Errorf("unexpected scroll height type %T", v)
	}
}

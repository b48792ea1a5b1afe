// internal/browser/session/manager.go
package session

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/autofill"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	livenessTimeout     = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultViewportSize = "1920,1080"
)

// Manager owns the browser process. Every page it opens is a tab derived from
// the same allocator, and Shutdown waits for open pages before killing Chrome.
type Manager struct {
	logger  *zap.Logger
	browser config.BrowserConfig
	network config.NetworkConfig

	// allocatorCtx manages the browser process. All tab contexts derive from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
	mu sync.Mutex
	// closed rejects new sessions once shutdown has begun.
	closed bool
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		browser: cfg.Browser(),
		network: cfg.Network(),
	}
	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.browser.Headless))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(m.browser)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	testCtx, cancelTest := context.WithTimeout(allocCtx, livenessTimeout)
	defer cancelTest()
	testCtx, cancelTab := chromedp.NewContext(testCtx)
	defer cancelTab()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// AllocatorOptions assembles the Chrome flags for the configured browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	size := defaultViewportSize
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		size = fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}

	opts = append(opts,
		// A false bool flag is omitted from the command line, which removes
		// the default enable-automation switch.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("window-size", size),
		chromedp.UserAgent(ua),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// NewSession opens a fresh tab. The caller must Close it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	var opts []chromedp.ContextOption
	if m.browser.Debug {
		opts = append(opts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx, opts...)

	s := newSession(tabCtx, cancel, m.network, m.logger)
	s.onClose = m.wg.Done

	// The first Run attaches the tab; fail fast if Chrome went away.
	startCtx, cancelStart := context.WithTimeout(ctx, livenessTimeout)
	defer cancelStart()
	if err := s.runActions(startCtx, chromedp.Navigate("about:blank")); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}
	if err := s.runActions(startCtx, PersonaFor(m.browser).Tasks(s.logger)); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to apply browser persona: %w", err)
	}

	s.logger.Info("Browser session opened.")
	return s, nil
}

// Open satisfies autofill.BrowserOpener.
func (m *Manager) Open(ctx context.Context) (autofill.Page, error) {
	s, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Shutdown waits for open sessions, bounded by ctx, then terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"coupon-clipper/internal/observability"
)

// LaunchMode определяет, как получить браузер.
type LaunchMode string

const (
	// ModeDefault: Chrome с профилем пользователя (сохранённые логины).
	ModeDefault LaunchMode = "default"
	// ModeClean: Chrome с отдельным чистым профилем.
	ModeClean LaunchMode = "clean"
	// ModeAttach: только подключение к уже запущенному Chrome.
	ModeAttach LaunchMode = "attach"
)

// ParseLaunchMode принимает default|clean|attach.
func ParseLaunchMode(s string) (LaunchMode, error) {
	switch LaunchMode(s) {
	case ModeDefault, ModeClean, ModeAttach:
		return LaunchMode(s), nil
	}
	return "", fmt.Errorf("unknown launch mode %q (want default, clean or attach)", s)
}

type Options struct {
	Mode        LaunchMode
	ChromePath  string
	UserDataDir string
	ProfileDir  string
	// DebugAddress в виде host:port
	DebugAddress        string
	DebugPort           int
	LaunchWait          time.Duration
	PageTimeout         time.Duration
	MaxRecoveryAttempts int
	// ReconnectDelay: пауза перед повторным подключением
	ReconnectDelay time.Duration
}

// Manager владеет соединением с Chrome и текущей вкладкой.
type Manager struct {
	opts   Options
	logger *observability.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	page     *rod.Page
	cancel   context.CancelFunc
	attempts int

	// заменяются в тестах
	probe  func(ctx context.Context, addr string) (*VersionInfo, error)
	inUse  func(ctx context.Context, userDataDir string) (bool, error)
	launch func(opts Options) (string, error)
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewManager(opts Options, logger *observability.Logger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.MaxRecoveryAttempts <= 0 {
		opts.MaxRecoveryAttempts = 3
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		probe:  ProbeDebugger,
		inUse:  ProfileInUse,
		launch: launchChrome,
		sleep:  sleepCtx,
	}
}

// Connect подключается к Chrome, при необходимости запуская его.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wsURL, err := m.resolveControlURL(ctx)
	if err != nil {
		return err
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(wsURL).Context(bctx)
	if err := b.Connect(); err != nil {
		cancel()
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}

	page, err := firstPage(b)
	if err != nil {
		cancel()
		return err
	}

	m.detachLocked()
	m.browser, m.page, m.cancel = b, page, cancel
	m.attempts = 0
	m.logger.Info("connected to chrome", "debugger", m.opts.DebugAddress)
	return nil
}

func (m *Manager) resolveControlURL(ctx context.Context) (string, error) {
	info, probeErr := m.probe(ctx, m.opts.DebugAddress)
	if probeErr == nil {
		return info.WebSocketDebuggerURL, nil
	}

	if m.opts.Mode == ModeAttach {
		return "", fmt.Errorf("no chrome with remote debugging on %s, start it with --remote-debugging-port=%d: %w",
			m.opts.DebugAddress, m.opts.DebugPort, probeErr)
	}

	running, err := m.inUse(ctx, m.opts.UserDataDir)
	if err != nil {
		m.logger.Warn("could not check running chrome processes", "error", err)
	}
	if running {
		// Второй экземпляр с тем же профилем откроет окно в первом, без отладочного порта
		m.logger.Warn("chrome is already running with this profile", "user_data_dir", m.opts.UserDataDir)
		return "", fmt.Errorf("chrome is already running with profile %s without remote debugging, close it and retry", m.opts.UserDataDir)
	}

	m.logger.Info("launching chrome with remote debugging",
		"port", m.opts.DebugPort, "user_data_dir", m.opts.UserDataDir, "profile", m.opts.ProfileDir)
	wsURL, err := m.launch(m.opts)
	if err != nil {
		return "", fmt.Errorf("launch chrome: %w", err)
	}
	if err := m.sleep(ctx, m.opts.LaunchWait); err != nil {
		return "", err
	}
	return wsURL, nil
}

func launchChrome(opts Options) (string, error) {
	l := launcher.New().
		Headless(false).
		Leakless(false).
		UserDataDir(opts.UserDataDir).
		KeepUserDataDir().
		RemoteDebuggingPort(opts.DebugPort).
		Set("no-first-run").
		Set("no-default-browser-check")

	if opts.ChromePath != "" {
		l = l.Bin(opts.ChromePath)
	}
	if opts.ProfileDir != "" && opts.ProfileDir != "Default" {
		l = l.ProfileDir(opts.ProfileDir)
	}
	return l.Launch()
}

func firstPage(b *rod.Browser) (*rod.Page, error) {
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages[0], nil
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

// Page возвращает текущую вкладку.
func (m *Manager) Page() (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page == nil {
		return nil, ErrNotConnected
	}
	return NewPage(m.page, m.opts.PageTimeout), nil
}

// Alive: дешёвая проверка соединения.
func (m *Manager) Alive(ctx context.Context) bool {
	m.mu.Lock()
	page := m.page
	m.mu.Unlock()

	if page == nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := page.Context(cctx).Info()
	if err != nil {
		m.logger.Warn("browser connection check failed", "error", err)
		return false
	}
	return true
}

// Reconnect переподключается не более MaxRecoveryAttempts раз и возвращает вкладку на returnURL.
func (m *Manager) Reconnect(ctx context.Context, returnURL string) error {
	var lastErr error
	for m.nextAttempt() {
		m.logger.Info("attempting to reconnect", "attempt", m.Attempts(), "max", m.opts.MaxRecoveryAttempts)

		m.mu.Lock()
		m.detachLocked()
		m.mu.Unlock()

		if err := m.sleep(ctx, m.opts.ReconnectDelay); err != nil {
			return err
		}

		if err := m.Connect(ctx); err != nil {
			lastErr = err
			m.logger.Warn("reconnect attempt failed", "error", err)
			continue
		}

		if returnURL != "" {
			page, err := m.Page()
			if err != nil {
				return err
			}
			if err := page.Navigate(ctx, returnURL); err != nil {
				m.logger.Warn("could not return to site after reconnect", "url", returnURL, "error", err)
			}
		}
		m.logger.Info("reconnected to chrome")
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts left")
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, m.opts.MaxRecoveryAttempts, lastErr)
}

func (m *Manager) nextAttempt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts >= m.opts.MaxRecoveryAttempts {
		return false
	}
	m.attempts++
	return true
}

// Attempts: число попыток переподключения с последнего успешного подключения.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// ResetAttempts открывает новый бюджет переподключений (по выбору оператора в меню).
func (m *Manager) ResetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
}

// Close отключается от браузера, не закрывая Chrome оператора.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	return nil
}

func (m *Manager) detachLocked() {
	if m.cancel != nil {
		m.cancel()
	}
	m.browser, m.page, m.cancel = nil, nil, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

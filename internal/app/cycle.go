package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/checksum"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/detect"
	"coupon-clipper/internal/human"
	"coupon-clipper/internal/normalize"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

const (
	afterLoginWait     = 3 * time.Second
	afterRateLimitWait = 3 * time.Second
	cloudflareWait     = 10 * time.Second
	captchaReloadWait  = 5 * time.Second
	rapidLogEvery      = 5
	maxRefreshes       = 25
)

// Outcome: чем закончился очередной запуск цикла.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeSkipped
	OutcomeInterrupted
	OutcomeCaptcha
	OutcomeConnectionLost
	OutcomeError
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeCaptcha:
		return "captcha"
	case OutcomeConnectionLost:
		return "connection lost"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	Err     error
}

// Session: то, что цикл использует от менеджера браузера.
type Session interface {
	Page() (browser.Page, error)
	Alive(ctx context.Context) bool
	Reconnect(ctx context.Context, returnURL string) error
	ResetAttempts()
	Close() error
}

var _ Session = (*browser.Manager)(nil)

type Stats struct {
	Found          int
	Clipped        int
	AlreadyClipped int
	Failed         int
	Refreshes      int
	RateLimits     int
	StoppedReason  string
}

type CycleDeps struct {
	Session    Session
	Store      storage.Repository
	Prompter   *console.Prompter
	Interrupts *Interrupts
	Emulator   *human.Emulator
	Finder     *Finder
	Logger     *observability.Logger
}

// Cycle активирует купоны на одном сайте. Run можно вызывать повторно после паузы:
// подготовка продолжается с прерванного шага, клики: с текущего купона.
type Cycle struct {
	key       string
	site      *config.SiteProfile
	settings  config.Settings
	sessionID string

	session    Session
	store      storage.Repository
	prompter   *console.Prompter
	interrupts *Interrupts
	emu        *human.Emulator
	finder     *Finder
	rates      *detect.RateLimiter
	hashes     *checksum.Generator
	logger     *observability.Logger

	page       browser.Page
	step       int
	prepared   bool
	buttons    []browser.Element
	index      int
	refresh    bool
	// skipStale: при пустом обновлении пропустить текущую кнопку
	skipStale  bool
	streak     int
	preClipped map[int]bool
	sinceCheck int

	rapid           bool
	rateLimitDetect bool
	manualRateLimit bool

	resume  *storage.RunState
	started time.Time
	stats   Stats
}

func NewCycle(key string, site *config.SiteProfile, settings config.Settings, sessionID string, deps CycleDeps) *Cycle {
	return &Cycle{
		key:             key,
		site:            site,
		settings:        settings,
		sessionID:       sessionID,
		session:         deps.Session,
		store:           deps.Store,
		prompter:        deps.Prompter,
		interrupts:      deps.Interrupts,
		emu:             deps.Emulator,
		finder:          deps.Finder,
		rates:           detect.NewRateLimiter(settings),
		hashes:          checksum.NewGenerator(),
		logger:          deps.Logger.With("site", key),
		rateLimitDetect: settings.EnableRateLimitDetection,
		manualRateLimit: settings.ManualRateLimitConfirmation,
		started:         time.Now(),
	}
}

// Resume продолжает с сохранённого места, если список кнопок не изменился.
func (c *Cycle) Resume(state *storage.RunState) {
	if state == nil {
		return
	}
	c.resume = state
	c.stats.Clipped = state.Clipped
	c.rateLimitDetect = state.RateLimitDetection
}

func (c *Cycle) Key() string { return c.key }

func (c *Cycle) Site() *config.SiteProfile { return c.site }

func (c *Cycle) Stats() Stats { return c.stats }

func (c *Cycle) Elapsed() time.Duration { return time.Since(c.started) }

func (c *Cycle) RateLimitDetection() bool { return c.rateLimitDetect }

func (c *Cycle) SetRateLimitDetection(v bool) { c.rateLimitDetect = v }

// Remaining: примерное число купонов, которые ещё не пройдены.
func (c *Cycle) Remaining() int {
	return max(len(c.buttons)-c.index, 0)
}

// Run выполняет подготовку (если не закончена) и цикл кликов до конца списка или паузы.
func (c *Cycle) Run(ctx context.Context) Result {
	page, err := c.session.Page()
	if err != nil {
		return c.fail(ctx, err)
	}
	c.page = page

	if !c.prepared {
		if res, stop := c.prepare(ctx); stop {
			return res
		}
	}
	return c.clipLoop(ctx)
}

// AfterReconnect вызывается после успешного переподключения.
func (c *Cycle) AfterReconnect() {
	c.sinceCheck = 0
	if c.prepared {
		c.refresh = true
	}
}

type prepareStep struct {
	name string
	run  func(ctx context.Context) (Result, bool)
}

func (c *Cycle) prepareSteps() []prepareStep {
	return []prepareStep{
		{"rate limit mode", c.askRateLimitMode},
		{"navigate", c.navigate},
		{"captcha", c.initialCaptcha},
		{"login", c.checkLogin},
		{"load content", c.loadContent},
		{"find buttons", c.findButtons},
		{"speed", c.askSpeed},
		{"pre-check", c.precheck},
	}
}

func (c *Cycle) prepare(ctx context.Context) (Result, bool) {
	steps := c.prepareSteps()
	for c.step < len(steps) {
		if c.interrupts.Take() {
			return Result{Outcome: OutcomeInterrupted}, true
		}

		st := steps[c.step]
		c.logger.Debug("prepare step", "step", st.name)
		res, stop := st.run(ctx)
		if stop {
			// Шаг с CAPTCHA считается пройденным: её решает оператор во время паузы
			if res.Outcome == OutcomeCaptcha || res.Outcome == OutcomeSkipped {
				c.step++
			}
			return res, true
		}
		c.step++
	}
	c.prepared = true
	return Result{}, false
}

func (c *Cycle) navigate(ctx context.Context) (Result, bool) {
	c.logger.Info("Navigating", "url", c.site.URL)
	if err := c.page.Navigate(ctx, c.site.URL); err != nil {
		return c.fail(ctx, fmt.Errorf("navigate to %s: %w", c.site.URL, err)), true
	}
	if err := c.emu.Sleep(ctx, config.Seconds(c.settings.RandomDelayMax)); err != nil {
		return c.fail(ctx, err), true
	}
	return Result{}, false
}

func (c *Cycle) initialCaptcha(ctx context.Context) (Result, bool) {
	paused, err := c.handleCaptcha(ctx)
	if err != nil {
		return c.fail(ctx, err), true
	}
	if paused {
		return Result{Outcome: OutcomeCaptcha}, true
	}
	return Result{}, false
}

func (c *Cycle) checkLogin(ctx context.Context) (Result, bool) {
	html, err := c.page.HTML(ctx)
	if err != nil {
		return c.fail(ctx, err), true
	}
	finding, err := detect.LoginRequired(html)
	if err != nil {
		c.logger.Warn("login check failed", "error", err)
		return Result{}, false
	}
	if !finding.Detected {
		return Result{}, false
	}

	c.logger.Info("Login appears to be required", "via", finding.Via)
	c.prompter.Println(console.Banner(console.ToneWarn, "Login appears to be required", "Please log in manually in the browser."))
	if err := c.prompter.WaitEnter(ctx, "Press Enter after you've logged in to continue..."); err != nil {
		return c.fail(ctx, err), true
	}
	c.logger.Info("Operator indicated login is complete")
	if err := c.emu.Sleep(ctx, afterLoginWait); err != nil {
		return c.fail(ctx, err), true
	}
	return Result{}, false
}

func (c *Cycle) loadContent(ctx context.Context) (Result, bool) {
	if err := c.loadAllContent(ctx); err != nil {
		return c.fail(ctx, err), true
	}
	return Result{}, false
}

func (c *Cycle) findButtons(ctx context.Context) (Result, bool) {
	buttons, err := c.finder.CouponButtons(ctx, c.page, c.site)
	if err != nil {
		return c.fail(ctx, err), true
	}

	if len(buttons) == 0 {
		buttons, err = c.askForButtons(ctx)
		if err != nil {
			return c.fail(ctx, err), true
		}
		if len(buttons) == 0 {
			c.logger.Info("No buttons identified, skipping website")
			c.stats.StoppedReason = "no coupon buttons"
			return Result{Outcome: OutcomeSkipped}, true
		}
	}

	c.setButtons(buttons)
	c.restorePosition()
	c.logger.Info("Found potential coupons to clip", "count", len(buttons))
	c.prompter.Printf("\nFound %d potential coupons to clip.\n", len(buttons))
	c.prompter.Println("Press Ctrl+C at any time to pause/control the process")
	return Result{}, false
}

func (c *Cycle) setButtons(buttons []browser.Element) {
	c.buttons = buttons
	c.index = 0
	c.stats.Found = len(buttons)
	c.stats.AlreadyClipped = 0
	c.preClipped = nil
}

// restorePosition пропускает уже пройденные купоны, если отпечаток списка совпал.
func (c *Cycle) restorePosition() {
	if c.resume == nil {
		return
	}
	state := c.resume
	c.resume = nil

	// Позиция в конце списка означает, что сайт пройден: начинаем сначала
	if state.Position <= 0 || state.Position >= len(c.buttons) {
		return
	}
	if !c.hashes.VerifyFingerprint(state.Marker, c.key, listSignature(len(c.buttons)), state.Position) {
		c.logger.Info("Coupon list changed since last run, starting from the beginning")
		return
	}
	c.index = state.Position
	c.logger.Info("Resuming from saved position", "position", state.Position)
}

func listSignature(count int) string {
	return fmt.Sprintf("buttons=%d", count)
}

func (c *Cycle) precheck(ctx context.Context) (Result, bool) {
	if !c.rapidActive() {
		return Result{}, false
	}

	c.logger.Info("Rapid mode enabled - pre-checking clipped status")
	c.preClipped = make(map[int]bool, len(c.buttons))
	count := 0
	for i, el := range c.buttons {
		clipped, err := c.isClipped(el)
		if err != nil {
			continue
		}
		c.preClipped[i] = clipped
		if clipped {
			count++
		}
	}
	c.logger.Info("Pre-check found already clipped coupons", "count", count)
	return Result{}, false
}

func (c *Cycle) rapidActive() bool {
	return c.rapid && c.site.SiteSpecificSettings.RapidModeCompatible
}

func (c *Cycle) clipLoop(ctx context.Context) Result {
	strategy := c.site.Strategy()
	interval := max(c.settings.ConnectionCheckInterval, 1)

	for c.index < len(c.buttons) {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: OutcomeCancelled, Err: err}
		}
		if c.interrupts.Take() {
			return Result{Outcome: OutcomeInterrupted}
		}

		c.sinceCheck++
		if c.sinceCheck >= interval {
			c.sinceCheck = 0
			if !c.session.Alive(ctx) {
				c.logger.Warn("Lost connection to browser")
				return Result{Outcome: OutcomeConnectionLost, Err: browser.ErrNotConnected}
			}
		}

		if c.refresh {
			c.refresh = false
			if err := c.refreshButtons(ctx); err != nil {
				return c.fail(ctx, err)
			}
			continue
		}

		el := c.buttons[c.index]

		clipped, err := c.alreadyClipped(el)
		if err != nil {
			if browser.IsStaleError(err) {
				c.logger.Info("Detected stale element, refreshing button list")
				c.refresh, c.skipStale = true, true
				continue
			}
			c.logger.Debug("clipped check failed", "index", c.index, "error", err)
		}
		if clipped {
			c.stats.AlreadyClipped++
			c.index++
			continue
		}

		if err := c.emu.Pause(ctx); err != nil {
			return c.fail(ctx, err)
		}

		ok, err := c.emu.Click(ctx, c.page, el, strategy)
		if err != nil {
			if browser.IsStaleError(err) {
				c.logger.Info("Button became stale during click, refreshing list")
				c.refresh, c.skipStale = true, true
				continue
			}
			if ctx.Err() != nil || browser.IsConnectionError(err) {
				return c.fail(ctx, err)
			}
			c.logger.Warn("Error clicking button", "index", c.index, "error", err)
		}

		if !ok {
			c.emu.Pacer.Failure()
			c.stats.Failed++
			c.logger.Warn("Failed to clip coupon", "index", c.index)
			c.index++
			continue
		}

		c.stats.Clipped++
		c.streak = 0
		c.emu.Pacer.Success()
		c.logProgress()
		c.index++
		c.saveProgress(ctx)

		if res, stop := c.afterClip(ctx, el); stop {
			return res
		}
	}

	c.stats.StoppedReason = "completed"
	c.logger.Info("Finished clipping coupons", "clipped", c.stats.Clipped, "already_clipped", c.stats.AlreadyClipped, "failed", c.stats.Failed)
	return Result{Outcome: OutcomeFinished}
}

// afterClip: проверки rate limit, CAPTCHA и устаревания страницы.
// stop: вернуть res из цикла.
func (c *Cycle) afterClip(ctx context.Context, el browser.Element) (Result, bool) {
	if c.rateLimitDetect && (!c.rapid || c.settings.ForceRateLimitChecks) {
		limited, err := c.rateLimited(ctx)
		if err != nil {
			return c.fail(ctx, err), true
		}
		if limited {
			if err := c.handleRateLimit(ctx); err != nil {
				return c.fail(ctx, err), true
			}
			return Result{}, false
		}
	}

	if !c.rapid {
		paused, err := c.handleCaptcha(ctx)
		if err != nil {
			return c.fail(ctx, err), true
		}
		if paused {
			c.refresh = true
			return Result{Outcome: OutcomeCaptcha}, true
		}
	}

	if !c.rapidActive() {
		if _, err := el.Visible(); err != nil && browser.IsStaleError(err) {
			c.logger.Info("Page structure changed after clip, refreshing buttons")
			c.refresh = true
			return Result{}, false
		}
	}
	return Result{}, false
}

func (c *Cycle) logProgress() {
	unclipped := c.stats.Found - c.stats.AlreadyClipped
	if c.rapid && c.stats.Clipped%rapidLogEvery != 0 && c.stats.Clipped != 1 {
		return
	}
	c.logger.Info("Clipped coupon",
		"clipped", c.stats.Clipped,
		"unclipped", unclipped,
		"consecutive", c.emu.Pacer.Consecutive(),
	)
}

func (c *Cycle) alreadyClipped(el browser.Element) (bool, error) {
	if c.preClipped != nil {
		if v, ok := c.preClipped[c.index]; ok {
			return v, nil
		}
	}
	return c.isClipped(el)
}

func (c *Cycle) isClipped(el browser.Element) (bool, error) {
	var state detect.ButtonState
	var err error

	if state.Text, err = el.Text(); err != nil {
		return false, err
	}
	if state.Class, _, err = el.Attribute("class"); err != nil {
		return false, err
	}
	if state.Disabled, state.HasDisabled, err = el.Attribute("disabled"); err != nil {
		return false, err
	}
	if state.AriaDisabled, _, err = el.Attribute("aria-disabled"); err != nil {
		return false, err
	}

	clipped, reason := detect.IsClipped(state, c.site)
	if clipped {
		c.logger.Debug("coupon already clipped", "index", c.index, "reason", reason, "text", normalize.Truncate(state.Text, 40))
	}
	return clipped, nil
}

// refreshButtons ищет кнопки заново после изменения страницы.
func (c *Cycle) refreshButtons(ctx context.Context) error {
	skip := c.skipStale
	c.skipStale = false
	c.stats.Refreshes++
	c.streak++
	if c.streak > maxRefreshes {
		c.logger.Warn("Too many page updates without progress, skipping rest of the list", "refreshes", c.streak)
		c.index = len(c.buttons)
		return nil
	}

	buttons, err := c.finder.CouponButtons(ctx, c.page, c.site)
	if err != nil {
		return err
	}
	if len(buttons) == 0 {
		c.logger.Warn("No buttons found after page update")
		if skip {
			c.index++
		}
		return nil
	}
	c.logger.Info("Found buttons after page update", "count", len(buttons))
	c.setButtons(buttons)
	return nil
}

func (c *Cycle) rateLimited(ctx context.Context) (bool, error) {
	html, err := c.page.HTML(ctx)
	if err != nil {
		return false, err
	}
	finding, err := c.rates.Check(html, c.site)
	if err != nil {
		c.logger.Warn("rate limit check failed", "error", err)
		return false, nil
	}
	if !finding.Detected {
		if finding.Via != "" {
			c.logger.Debug("possible rate limit phrase", "phrase", finding.Via, "count", c.rates.Count(), "threshold", c.rates.Threshold())
		}
		return false, nil
	}
	c.logger.Info("Rate limit detected", "via", finding.Via)

	if !c.manualRateLimit {
		return true, nil
	}

	c.prompter.Println(console.Banner(console.ToneWarn, "Potential rate limiting detected.",
		"1. Yes, we're being rate limited - back off and try later",
		"2. No, continue clipping (ignore the detection)",
		"3. No, and disable automatic detection",
	))
	choice, err := c.prompter.Choose(ctx, "Select option (1-3, default: 1): ", []string{"1", "2", "3"}, "1")
	if err != nil {
		return false, err
	}
	switch choice {
	case "2":
		c.rates.Reset()
		return false, nil
	case "3":
		c.rates.Reset()
		c.rateLimitDetect = false
		c.prompter.Println("Automatic rate limit detection disabled for this session.")
		return false, nil
	}
	return true, nil
}

func (c *Cycle) handleRateLimit(ctx context.Context) error {
	c.stats.RateLimits++
	c.emu.Pacer.RateLimited()

	// Пауза растёт с каждым rate limit до max_backoff_time
	wait := c.emu.Backoff.Next()
	c.logger.Info("Rate limited, backing off", "wait", wait, "next_base", c.emu.Backoff.Current())
	c.prompter.Printf("\nRate limit detected. Waiting %.1f seconds before continuing...\n", wait.Seconds())
	if err := c.emu.Sleep(ctx, wait); err != nil {
		return err
	}

	c.logger.Info("Refreshing page after rate limit")
	if err := c.page.Reload(ctx); err != nil {
		return err
	}
	if err := c.emu.Sleep(ctx, afterRateLimitWait); err != nil {
		return err
	}
	c.rates.Reset()
	c.refresh = true
	return nil
}

// handleCaptcha: CloudFlare получает 10 секунд, прочие CAPTCHA получают одно обновление страницы.
// true: CAPTCHA осталась, нужна пауза для оператора.
func (c *Cycle) handleCaptcha(ctx context.Context) (bool, error) {
	html, err := c.page.HTML(ctx)
	if err != nil {
		return false, err
	}
	finding, err := detect.Captcha(html, c.site)
	if err != nil {
		c.logger.Warn("captcha check failed", "error", err)
		return false, nil
	}
	if !finding.Detected {
		return false, nil
	}
	c.logger.Info("CAPTCHA detected", "kind", finding.Kind, "via", finding.Via)

	if finding.Kind == detect.KindCloudflare {
		c.prompter.Println(console.Banner(console.ToneWarn, "CloudFlare security check detected. Waiting for completion...",
			"If prompted, please complete any verification manually."))
		if err := c.emu.Sleep(ctx, cloudflareWait); err != nil {
			return false, err
		}
		html, err := c.page.HTML(ctx)
		if err != nil {
			return false, err
		}
		if detect.CloudflareActive(html) {
			return true, nil
		}
		c.logger.Info("CloudFlare check completed automatically")
		return false, nil
	}

	c.logger.Info("Refreshing the page to clear the CAPTCHA")
	if err := c.page.Reload(ctx); err != nil {
		return false, err
	}
	if err := c.emu.Sleep(ctx, captchaReloadWait); err != nil {
		return false, err
	}
	html, err = c.page.HTML(ctx)
	if err != nil {
		return false, err
	}
	if detect.CaptchaPresent(html, c.site) {
		c.logger.Info("CAPTCHA persists after refresh, handing off to operator")
		return true, nil
	}
	return false, nil
}

// State: снимок прогресса для хранилища.
func (c *Cycle) State() *storage.RunState {
	state := &storage.RunState{
		SessionID:          c.sessionID,
		Site:               c.key,
		Clipped:            c.stats.Clipped,
		AlreadyClipped:     c.stats.AlreadyClipped,
		RateLimitDetection: c.rateLimitDetect,
	}
	// Пройденный до конца список сохраняется без позиции, продолжать нечего
	if c.index < len(c.buttons) {
		state.Position = c.index
		state.Marker = c.hashes.CouponFingerprint(c.key, listSignature(len(c.buttons)), c.index)
	}
	return state
}

func (c *Cycle) saveProgress(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, c.State()); err != nil {
		c.logger.Warn("Failed to save progress", "error", err)
	}
}

// interruptedBy снимает флаг паузы, если ввод прерван Ctrl+C.
func (c *Cycle) interruptedBy(err error) bool {
	if !errors.Is(err, console.ErrInterrupted) {
		return false
	}
	c.interrupts.Take()
	return true
}

// fail классифицирует ошибку шага или клика.
func (c *Cycle) fail(ctx context.Context, err error) Result {
	switch {
	case c.interruptedBy(err):
		return Result{Outcome: OutcomeInterrupted}
	case ctx.Err() != nil:
		return Result{Outcome: OutcomeCancelled, Err: ctx.Err()}
	case browser.IsConnectionError(err):
		return Result{Outcome: OutcomeConnectionLost, Err: err}
	default:
		c.logger.Error("Error while clipping coupons", "error", err)
		return Result{Outcome: OutcomeError, Err: err}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"coupon-clipper/internal/config"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/control"
	"coupon-clipper/internal/human"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

const shutdownSaveTimeout = 5 * time.Second

type RunnerOptions struct {
	// Site выбирается сразу, без меню
	Site    string
	Sleeper human.Sleeper
	Rand    *rand.Rand
}

// Runner ведёт конечный автомат: выбор сайта, активация, пауза, переподключение.
type Runner struct {
	cfg        *config.Config
	session    Session
	store      storage.Repository
	prompter   *console.Prompter
	interrupts *Interrupts
	logger     *observability.Logger
	sleeper    human.Sleeper
	rng        *rand.Rand
	finder     *Finder

	machine     *control.Machine
	sessionID   string
	preselect   string
	cycle       *Cycle
	nextDefault string
	pauseReason string
	summary     []console.SummaryRow
}

func NewRunner(
	cfg *config.Config,
	session Session,
	store storage.Repository,
	prompter *console.Prompter,
	interrupts *Interrupts,
	logger *observability.Logger,
	opts RunnerOptions,
) *Runner {
	if opts.Sleeper == nil {
		opts.Sleeper = human.RealSleeper()
	}
	if opts.Rand == nil {
		opts.Rand = human.NewRand()
	}
	sessionID := uuid.NewString()
	return &Runner{
		cfg:        cfg,
		session:    session,
		store:      store,
		prompter:   prompter,
		interrupts: interrupts,
		logger:     logger.With("session_id", sessionID),
		sleeper:    opts.Sleeper,
		rng:        opts.Rand,
		finder:     NewFinder(logger),
		machine:    control.NewMachine(),
		sessionID:  sessionID,
		preselect:  opts.Site,
	}
}

func (r *Runner) State() control.State {
	return r.machine.State()
}

// Summary: итоги по сайтам, пройденным за запуск.
func (r *Runner) Summary() []console.SummaryRow {
	return r.summary
}

// Run крутит автомат до Terminated. Браузер и хранилище закрываются всегда.
func (r *Runner) Run(ctx context.Context) error {
	defer r.shutdown()
	r.logger.Info("Session started")

	for {
		var ev control.Event
		switch r.machine.State() {
		case control.SelectingSite:
			ev = r.selectSite(ctx)
		case control.Clipping:
			ev = r.clip(ctx)
		case control.Paused:
			ev = r.pause(ctx)
		case control.Reconnecting:
			ev = r.reconnect(ctx)
		case control.Terminated:
			return nil
		}

		if ctx.Err() != nil {
			ev = control.Quit
		}
		r.fire(ev)
	}
}

func (r *Runner) fire(ev control.Event) {
	from := r.machine.State()
	to, err := r.machine.Fire(ev)
	if err != nil {
		r.logger.Error("Unexpected event, exiting", "error", err)
		_, _ = r.machine.Fire(control.Quit)
		return
	}
	r.logger.Debug("state transition", "from", from, "event", ev, "to", to)
}

func (r *Runner) selectSite(ctx context.Context) control.Event {
	keys := r.cfg.SiteKeys()

	if key := r.preselect; key != "" {
		r.preselect = ""
		if _, ok := r.cfg.Site(key); ok {
			return r.startSite(ctx, key)
		}
		r.logger.Warn("Website not found in configuration", "site", key)
	}

	rows := make([]console.SiteRow, 0, len(keys))
	for i, key := range keys {
		site, _ := r.cfg.Site(key)
		row := console.SiteRow{
			Index: i + 1,
			Key:   key,
			Name:  site.DisplayName(key),
			URL:   site.URL,
			Rapid: site.SiteSpecificSettings.RapidModeCompatible,
		}
		if saved, err := r.store.Load(ctx, key); err != nil {
			r.logger.Warn("Failed to load saved progress", "site", key, "error", err)
		} else if saved != nil {
			row.Progress = console.Progress(saved.Clipped, saved.Position, saved.UpdatedAt)
		}
		rows = append(rows, row)
	}

	r.prompter.Println(console.Banner(console.ToneInfo, "Coupon Clipper", "Select a website to clip coupons from."))
	r.prompter.Println(console.SiteTable(rows))

	valid := make([]string, 0, len(keys)+1)
	for i := 0; i <= len(keys); i++ {
		valid = append(valid, strconv.Itoa(i))
	}
	def := r.nextDefault
	if def == "" {
		def = r.lastSiteChoice(ctx, keys)
	}
	prompt := fmt.Sprintf("Select website (0-%d): ", len(keys))
	if def != "" {
		prompt = fmt.Sprintf("Select website (0-%d, default: %s): ", len(keys), def)
	}

	choice, err := r.prompter.Choose(ctx, prompt, valid, def)
	if err != nil {
		r.interrupted(err)
		return control.Quit
	}
	if choice == "0" {
		return control.Quit
	}

	idx, _ := strconv.Atoi(choice)
	return r.startSite(ctx, keys[idx-1])
}

// lastSiteChoice: номер в меню сайта, с которым работали последним, или "".
func (r *Runner) lastSiteChoice(ctx context.Context, keys []string) string {
	last, err := r.store.LastSite(ctx)
	if err != nil {
		r.logger.Warn("Failed to load last site", "error", err)
		return ""
	}
	if last == nil {
		return ""
	}
	for i, key := range keys {
		if key == last.Site {
			return strconv.Itoa(i + 1)
		}
	}
	return ""
}

func (r *Runner) startSite(ctx context.Context, key string) control.Event {
	site, _ := r.cfg.Site(key)
	logger := r.logger.With("site", key)

	emu := human.NewEmulator(r.cfg.Settings, site, r.sleeper, r.rng, logger)
	r.cycle = NewCycle(key, site, r.cfg.Settings, r.sessionID, CycleDeps{
		Session:    r.session,
		Store:      r.store,
		Prompter:   r.prompter,
		Interrupts: r.interrupts,
		Emulator:   emu,
		Finder:     r.finder,
		Logger:     r.logger,
	})

	saved, err := r.store.Load(ctx, key)
	if err != nil {
		logger.Warn("Failed to load saved progress", "error", err)
	}
	if saved != nil && saved.Position > 0 {
		prompt := fmt.Sprintf("Resume previous progress (%d clipped, stopped at #%d)? (y/n, default: y): ", saved.Clipped, saved.Position)
		resume, err := r.prompter.Confirm(ctx, prompt, true)
		if err != nil {
			r.interrupted(err)
			resume = false
		}
		if resume {
			r.cycle.Resume(saved)
		}
	}

	logger.Info("Website selected", "url", site.URL)
	return control.SiteChosen
}

func (r *Runner) clip(ctx context.Context) control.Event {
	res := r.cycle.Run(ctx)
	r.cycle.saveProgress(context.WithoutCancel(ctx))

	switch res.Outcome {
	case OutcomeFinished, OutcomeSkipped:
		r.finishSite(res.Outcome.String())
		return control.SiteFinished
	case OutcomeInterrupted:
		r.pauseReason = "interrupted by operator"
		return control.Interrupt
	case OutcomeCaptcha:
		r.pauseReason = "CAPTCHA detected: solve it in the browser, then choose Continue"
		return control.CaptchaDetected
	case OutcomeConnectionLost:
		r.pauseReason = fmt.Sprintf("connection lost: %v", res.Err)
		return control.ConnectionLost
	case OutcomeCancelled:
		return control.Quit
	default:
		r.pauseReason = fmt.Sprintf("error: %v", res.Err)
		return control.SiteError
	}
}

func (r *Runner) pause(ctx context.Context) control.Event {
	st := r.cycle.Stats()
	lines := []string{fmt.Sprintf("%d coupons clipped, ~%d remaining", st.Clipped, r.cycle.Remaining())}
	if r.pauseReason != "" {
		lines = append(lines, "Reason: "+r.pauseReason)
	}
	lines = append(lines, "", "Options:")
	for _, opt := range control.PauseMenu {
		lines = append(lines, fmt.Sprintf("%s. %s", opt.Key, opt.Label))
	}
	r.prompter.Println(console.Banner(console.ToneWarn, "PAUSED", lines...))
	r.pauseReason = ""

	var ev control.Event
	answer, err := r.prompter.Ask(ctx, fmt.Sprintf("Select option (1-%d, default: 1): ", len(control.PauseMenu)))
	switch {
	case err == nil:
		ev = control.ParseMenuChoice(answer)
	case r.interrupted(err):
		// Ctrl+C в меню паузы: перейти к следующему сайту
		ev = control.SkipSite
	default:
		ev = control.Quit
	}

	r.applyPauseChoice(ctx, ev)
	return ev
}

func (r *Runner) applyPauseChoice(ctx context.Context, ev control.Event) {
	key := r.cycle.Key()
	switch ev {
	case control.ToggleRateLimit:
		enabled := !r.cycle.RateLimitDetection()
		r.cycle.SetRateLimitDetection(enabled)
		if enabled {
			r.prompter.Println("Rate limit detection enabled")
		} else {
			r.prompter.Println("Rate limit detection disabled")
		}
	case control.SkipSite:
		r.finishSite("skipped by operator")
	case control.ReturnToMenu:
		if err := r.store.Reset(ctx, key); err != nil {
			r.logger.Warn("Failed to reset saved progress", "site", key, "error", err)
		}
		r.finishSite("returned to menu")
		r.nextDefault = ""
	case control.Reconnect:
		r.session.ResetAttempts()
	}
	r.logger.Info("Pause menu choice", "site", key, "choice", ev)
}

func (r *Runner) reconnect(ctx context.Context) control.Event {
	r.prompter.Println("Attempting to reconnect to browser...")
	if err := r.session.Reconnect(ctx, r.cycle.Site().URL); err != nil {
		if ctx.Err() != nil {
			return control.Quit
		}
		r.logger.Error("Reconnect failed", "error", err)
		r.pauseReason = fmt.Sprintf("reconnect failed: %v", err)
		return control.ReconnectFailed
	}

	r.cycle.AfterReconnect()
	r.prompter.Println("Successfully reconnected to browser.")
	return control.ReconnectSucceeded
}

// finishSite записывает итог по сайту и предлагает следующий сайт по умолчанию.
func (r *Runner) finishSite(stopped string) {
	if r.cycle == nil {
		return
	}
	r.summary = append(r.summary, r.summaryRow(stopped))

	keys := r.cfg.SiteKeys()
	r.nextDefault = ""
	for i, key := range keys {
		if key == r.cycle.Key() && i+1 < len(keys) {
			r.nextDefault = strconv.Itoa(i + 2)
		}
	}
	r.cycle = nil
}

func (r *Runner) summaryRow(stopped string) console.SummaryRow {
	st := r.cycle.Stats()
	return console.SummaryRow{
		Site:           r.cycle.Site().DisplayName(r.cycle.Key()),
		Found:          st.Found,
		Clipped:        st.Clipped,
		AlreadyClipped: st.AlreadyClipped,
		Failed:         st.Failed,
		Duration:       r.cycle.Elapsed(),
		Stopped:        stopped,
	}
}

// interrupted снимает флаг паузы, если ввод прерван Ctrl+C.
func (r *Runner) interrupted(err error) bool {
	if errors.Is(err, console.ErrInterrupted) {
		r.interrupts.Take()
		return true
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		r.logger.Warn("Failed to read input", "error", err)
	}
	return false
}

func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
	defer cancel()

	if r.cycle != nil {
		r.cycle.saveProgress(ctx)
		r.summary = append(r.summary, r.summaryRow("exited"))
		r.cycle = nil
	}
	if len(r.summary) > 0 {
		r.prompter.Println(console.SummaryTable(r.summary))
	}

	if err := r.session.Close(); err != nil {
		r.logger.Warn("Failed to detach from browser", "error", err)
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("Failed to close progress store", "error", err)
	}
	r.logger.Info("Session finished")
}

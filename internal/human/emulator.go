package human

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/observability"
)

const (
	afterScrollPause = 500 * time.Millisecond
	afterClickPause  = 500 * time.Millisecond
	retryPause       = time.Second
	fastScrollStep   = 200 * time.Millisecond
	maxScrollPasses  = 3
	minButtonSide    = 5
)

// Emulator выполняет действия в браузере в человеческом темпе.
type Emulator struct {
	Pacer    *Pacer
	Backoff  *Backoff
	Throttle *Throttle

	settings config.Settings
	sleeper  Sleeper
	rng      *rand.Rand
	logger   *observability.Logger
	mouse    Point
}

func NewEmulator(settings config.Settings, site *config.SiteProfile, sleeper Sleeper, rng *rand.Rand, logger *observability.Logger) *Emulator {
	if sleeper == nil {
		sleeper = RealSleeper()
	}
	if rng == nil {
		rng = NewRand()
	}
	return &Emulator{
		Pacer:    NewPacer(settings, site, rng),
		Backoff:  NewBackoff(settings, rng),
		Throttle: NewThrottle(settings.MaxClicksPerMinute, sleeper),
		settings: settings,
		sleeper:  sleeper,
		rng:      rng,
		logger:   logger,
	}
}

func (e *Emulator) Sleep(ctx context.Context, d time.Duration) error {
	return e.sleeper.Sleep(ctx, d)
}

// Pause: задержка перед кликом по текущему окну Pacer и ограничение кликов в минуту.
func (e *Emulator) Pause(ctx context.Context) error {
	if err := e.sleeper.Sleep(ctx, e.Pacer.Next()); err != nil {
		return err
	}
	return e.Throttle.Wait(ctx)
}

// Click кликает по кнопке выбранной стратегией.
// Возвращает false без ошибки, если все способы не сработали.
// browser.ErrStale и ошибки соединения возвращаются сразу.
func (e *Emulator) Click(ctx context.Context, page browser.Page, el browser.Element, strategy string) (bool, error) {
	if strategy == config.ClickEnhanced {
		return e.enhancedClick(ctx, page, el)
	}
	return e.standardClick(ctx, page, el)
}

func (e *Emulator) standardClick(ctx context.Context, page browser.Page, el browser.Element) (bool, error) {
	attempts := max(e.settings.MaxRetries, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := el.ScrollIntoView(); err != nil {
			if abort(err) {
				return false, err
			}
			e.logger.Debug("scroll into view failed", "attempt", attempt, "error", err)
		}
		if err := e.sleeper.Sleep(ctx, afterScrollPause); err != nil {
			return false, err
		}

		if err := e.moveTo(ctx, page, el); err != nil {
			if abort(err) {
				return false, err
			}
			e.logger.Debug("mouse move failed", "error", err)
		}

		err := el.Click()
		if err == nil {
			return true, nil
		}
		if abort(err) {
			return false, err
		}
		e.logger.Debug("native click failed, trying js click", "attempt", attempt, "error", err)

		err = el.JSClick()
		if err == nil {
			return true, nil
		}
		if abort(err) {
			return false, err
		}

		if err := e.sleeper.Sleep(ctx, retryPause); err != nil {
			return false, err
		}
	}

	e.logger.Warn("failed to click button", "attempts", attempts)
	return false, nil
}

func (e *Emulator) enhancedClick(ctx context.Context, page browser.Page, el browser.Element) (bool, error) {
	if err := el.ScrollIntoView(); err != nil && abort(err) {
		return false, err
	}
	if err := e.sleeper.Sleep(ctx, afterScrollPause); err != nil {
		return false, err
	}

	visible, err := el.Visible()
	if err != nil {
		if abort(err) {
			return false, err
		}
		return false, nil
	}
	if !visible {
		e.logger.Debug("button is not visible")
		return false, nil
	}
	if disabled, _, _ := el.Attribute("disabled"); disabled == "true" {
		return false, nil
	}

	box, err := el.Box()
	if err != nil {
		if abort(err) {
			return false, err
		}
		return false, nil
	}
	if box.Width < minButtonSide || box.Height < minButtonSide {
		e.logger.Debug("button is too small", "width", box.Width, "height", box.Height)
		return false, nil
	}

	techniques := []struct {
		name string
		try  func() error
	}{
		{"native", el.Click},
		{"js", el.JSClick},
		{"coordinates", func() error {
			if err := e.moveTo(ctx, page, el); err != nil {
				return err
			}
			x, y := box.Center()
			return page.ClickAt(ctx, x, y)
		}},
		{"parent", el.ParentJSClick},
		{"enter", el.PressEnter},
	}

	for _, tech := range techniques {
		err := tech.try()
		if err == nil {
			e.logger.Debug("button clicked", "technique", tech.name)
			return true, e.sleeper.Sleep(ctx, afterClickPause)
		}
		if abort(err) {
			return false, err
		}
		e.logger.Debug("click technique failed", "technique", tech.name, "error", err)
	}

	e.logger.Warn("all click techniques failed")
	return false, nil
}

// moveTo ведёт курсор по кривой к центру элемента.
func (e *Emulator) moveTo(ctx context.Context, page browser.Page, el browser.Element) error {
	box, err := el.Box()
	if err != nil {
		return err
	}
	x, y := box.Center()
	target := Point{X: x, Y: y}

	for _, p := range MousePath(e.mouse, target, pathSteps(e.mouse, target), e.rng) {
		if err := page.MoveMouse(ctx, p.X, p.Y); err != nil {
			return err
		}
		if err := e.sleeper.Sleep(ctx, time.Duration(5+e.rng.IntN(10))*time.Millisecond); err != nil {
			return err
		}
	}
	e.mouse = target
	return nil
}

// ScrollThrough прокручивает страницу до конца, чтобы подгрузить ленивый контент,
// и возвращается наверх. Не больше трёх проходов; стоп, если высота не меняется.
func (e *Emulator) ScrollThrough(ctx context.Context, page browser.Page) error {
	lastHeight, err := page.ScrollHeight(ctx)
	if err != nil {
		return fmt.Errorf("scroll height: %w", err)
	}

	stepPause := fastScrollStep
	if !e.settings.FastScroll {
		stepPause = e.settings.GetScrollPause() / 3
	}

	for pass := 1; pass <= maxScrollPasses; pass++ {
		for _, y := range ScrollPlan(lastHeight, e.settings.ScrollIncrement) {
			if err := page.ScrollTo(ctx, y); err != nil {
				return fmt.Errorf("scroll to %.0f: %w", y, err)
			}
			if err := e.sleeper.Sleep(ctx, stepPause); err != nil {
				return err
			}
		}
		if err := e.sleeper.Sleep(ctx, e.settings.GetScrollPause()); err != nil {
			return err
		}

		newHeight, err := page.ScrollHeight(ctx)
		if err != nil {
			return fmt.Errorf("scroll height: %w", err)
		}
		if newHeight == lastHeight {
			e.logger.Debug("page height unchanged, finished scrolling", "pass", pass)
			break
		}
		e.logger.Debug("page height changed", "from", lastHeight, "to", newHeight, "pass", pass)
		lastHeight = newHeight
	}

	return page.ScrollTo(ctx, 0)
}

// abort: элемент исчез или потеряно соединение, повторять клик бессмысленно.
func abort(err error) bool {
	return errors.Is(err, browser.ErrStale) || browser.IsConnectionError(err)
}

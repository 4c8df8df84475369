package human

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/browser/fakebrowser"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/observability"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestBackoffCalculation(t *testing.T) {
	settings := config.DefaultSettings()
	settings.BackoffJitterPct = 20
	b := NewBackoff(settings, seeded())

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		wait := b.Next()
		if wait < time.Second || wait > settings.GetMaxBackoff() {
			t.Errorf("Backoff out of expected range on attempt %d: %v", attempt, wait)
		}
		if b.Current() < prev {
			t.Errorf("Backoff base must not decrease: %v < %v", b.Current(), prev)
		}
		prev = b.Current()
	}
	if b.Current() != settings.GetMaxBackoff() {
		t.Errorf("Backoff should saturate at max, got %v", b.Current())
	}

	b.Reset()
	if b.Current() != time.Second {
		t.Errorf("Reset should return to 1s, got %v", b.Current())
	}
}

func TestBackoffWithoutJitterGrowsByFactor(t *testing.T) {
	settings := config.DefaultSettings()
	settings.BackoffJitterPct = 0
	b := NewBackoff(settings, seeded())

	want := []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestPacerSlowStart(t *testing.T) {
	settings := config.DefaultSettings()
	p := NewPacer(settings, nil, seeded())

	if f := p.Factor(); f != slowStartFactor {
		t.Fatalf("expected slow start factor, got %v", f)
	}
	for i := 0; i < settings.AccelerationThreshold; i++ {
		p.Success()
	}
	if f := p.Factor(); f != 1 {
		t.Errorf("expected full speed after threshold, got %v", f)
	}

	p.RateLimited()
	if f := p.Factor(); f != slowStartFactor {
		t.Errorf("rate limit resets streak, expected slow start again, got %v", f)
	}
	for i := 0; i < settings.AccelerationThreshold; i++ {
		p.Success()
	}
	if f := p.Factor(); f != cautiousFactor {
		t.Errorf("expected cautious factor after rate limit, got %v", f)
	}

	p.SetRapid()
	if f := p.Factor(); f != 1 {
		t.Errorf("rapid mode disables slow start, got %v", f)
	}
}

func TestPacerNextWithinWindow(t *testing.T) {
	settings := config.DefaultSettings()
	settings.AdaptiveDelay = false
	p := NewPacer(settings, nil, seeded())
	p.SetWindow(0.5, 1.5)

	for i := 0; i < 100; i++ {
		d := p.Next()
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("delay out of window: %v", d)
		}
	}
}

func TestPacerSiteOverrides(t *testing.T) {
	lo, hi := 0.1, 0.3
	site := &config.SiteProfile{SiteSpecificSettings: config.SiteSettings{MinDelayOverride: &lo, MaxDelayOverride: &hi}}
	p := NewPacer(config.DefaultSettings(), site, seeded())

	gotLo, gotHi := p.Window()
	if gotLo != 0.1 || gotHi != 0.3 {
		t.Errorf("expected site window 0.1-0.3, got %v-%v", gotLo, gotHi)
	}
}

func TestThrottle(t *testing.T) {
	sleeper := &fakebrowser.NoSleep{}
	th := NewThrottle(3, sleeper)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Throttle error: %v", err)
		}
	}
	if len(sleeper.Sleeps) != 0 {
		t.Fatalf("first clicks must not wait, got %v", sleeper.Sleeps)
	}

	now = now.Add(20 * time.Second)
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("Throttle error: %v", err)
	}
	if len(sleeper.Sleeps) != 1 || sleeper.Sleeps[0] != 40*time.Second {
		t.Errorf("expected 40s wait for the rest of the minute, got %v", sleeper.Sleeps)
	}
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0, &fakebrowser.NoSleep{})
	for i := 0; i < 1000; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMousePath(t *testing.T) {
	from, to := Point{X: 0, Y: 0}, Point{X: 300, Y: 200}
	path := MousePath(from, to, 20, seeded())

	if len(path) != 20 {
		t.Fatalf("expected 20 points, got %d", len(path))
	}
	if path[0] != from || path[len(path)-1] != to {
		t.Errorf("endpoints must be exact: %v ... %v", path[0], path[len(path)-1])
	}
	for _, p := range path {
		if p.X < -100 || p.X > 400 || p.Y < -100 || p.Y > 300 {
			t.Errorf("point far outside the segment bounds: %v", p)
		}
	}

	if got := MousePath(from, to, 1, nil); len(got) != 1 || got[0] != to {
		t.Errorf("single step path should jump to target, got %v", got)
	}
}

func TestScrollPlan(t *testing.T) {
	got := ScrollPlan(1200, 500)
	want := []float64{0, 500, 1000}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
	if ScrollPlan(1000, 0) != nil {
		t.Error("zero increment must yield empty plan")
	}
}

func newTestEmulator(settings config.Settings) (*Emulator, *fakebrowser.NoSleep) {
	sleeper := &fakebrowser.NoSleep{}
	return NewEmulator(settings, nil, sleeper, seeded(), observability.NewDiscard()), sleeper
}

func TestStandardClickFallsBackToJS(t *testing.T) {
	e, _ := newTestEmulator(config.DefaultSettings())
	page := fakebrowser.NewPage("https://example.com")
	btn := fakebrowser.NewButton("1", "Clip", nil)
	btn.ClickErr = fakebrowser.ErrClickIntercepted

	ok, err := e.Click(context.Background(), page, btn, config.ClickStandard)
	if err != nil || !ok {
		t.Fatalf("expected js fallback success, got ok=%v err=%v", ok, err)
	}
	if len(btn.Clicks) != 1 || btn.Clicks[0] != "js" {
		t.Errorf("expected single js click, got %v", btn.Clicks)
	}
	if page.MouseMoves == 0 {
		t.Error("expected mouse movement before click")
	}
}

func TestStandardClickGivesUpAfterRetries(t *testing.T) {
	settings := config.DefaultSettings()
	settings.MaxRetries = 2
	e, _ := newTestEmulator(settings)
	btn := fakebrowser.NewButton("1", "Clip", nil)
	btn.ClickErr = fakebrowser.ErrClickIntercepted
	btn.JSClickErr = errors.New("js failed")

	ok, err := e.Click(context.Background(), fakebrowser.NewPage(""), btn, config.ClickStandard)
	if err != nil || ok {
		t.Fatalf("expected failure without error, got ok=%v err=%v", ok, err)
	}
	if btn.Scrolled != 2 {
		t.Errorf("expected 2 attempts, got %d", btn.Scrolled)
	}
}

func TestClickStaleElement(t *testing.T) {
	e, _ := newTestEmulator(config.DefaultSettings())
	btn := fakebrowser.NewButton("1", "Clip", nil)
	btn.Stale = true

	for _, strategy := range []string{config.ClickStandard, config.ClickEnhanced} {
		_, err := e.Click(context.Background(), fakebrowser.NewPage(""), btn, strategy)
		if !errors.Is(err, browser.ErrStale) {
			t.Errorf("%s: expected ErrStale, got %v", strategy, err)
		}
	}
}

func TestClickConnectionLossIsReturned(t *testing.T) {
	for _, strategy := range []string{config.ClickStandard, config.ClickEnhanced} {
		e, sleeper := newTestEmulator(config.DefaultSettings())
		btn := fakebrowser.NewButton("1", "Clip", nil)
		btn.ClickErr = browser.ErrNotConnected

		ok, err := e.Click(context.Background(), fakebrowser.NewPage(""), btn, strategy)
		if ok || !errors.Is(err, browser.ErrNotConnected) {
			t.Errorf("%s: expected ErrNotConnected, got ok=%v err=%v", strategy, ok, err)
		}
		if btn.Scrolled != 1 {
			t.Errorf("%s: expected no retries, got %d attempts", strategy, btn.Scrolled)
		}
		for _, d := range sleeper.Sleeps {
			if d == retryPause {
				t.Errorf("%s: unexpected retry pause", strategy)
			}
		}
	}
}

func TestEnhancedClickTechniqueOrder(t *testing.T) {
	e, _ := newTestEmulator(config.DefaultSettings())
	page := fakebrowser.NewPage("")
	btn := fakebrowser.NewButton("1", "CLIP COUPON", nil)
	btn.ClickErr = fakebrowser.ErrClickIntercepted
	btn.JSClickErr = errors.New("js failed")

	ok, err := e.Click(context.Background(), page, btn, config.ClickEnhanced)
	if err != nil || !ok {
		t.Fatalf("expected coordinate click success, got ok=%v err=%v", ok, err)
	}
	if page.PointClicks != 1 {
		t.Errorf("expected coordinate click, got %d", page.PointClicks)
	}
}

func TestEnhancedClickRejectsTinyButton(t *testing.T) {
	e, _ := newTestEmulator(config.DefaultSettings())
	btn := fakebrowser.NewButton("1", "Clip", nil)
	btn.BoxVal = browser.Box{Width: 3, Height: 30}

	ok, err := e.Click(context.Background(), fakebrowser.NewPage(""), btn, config.ClickEnhanced)
	if err != nil || ok {
		t.Errorf("expected tiny button to be skipped, got ok=%v err=%v", ok, err)
	}
	if btn.ClickCount() != 0 {
		t.Errorf("no clicks expected, got %v", btn.Clicks)
	}
}

func TestScrollThroughStopsWhenHeightStable(t *testing.T) {
	e, _ := newTestEmulator(config.DefaultSettings())
	page := fakebrowser.NewPage("")
	page.Heights = []float64{1000, 1800, 1800}

	if err := e.ScrollThrough(context.Background(), page); err != nil {
		t.Fatal(err)
	}
	// 2 шага на первом проходе, 4 на втором, и возврат наверх
	if n := len(page.ScrollCalls); n != 7 {
		t.Errorf("expected 7 scroll calls, got %d: %v", n, page.ScrollCalls)
	}
	if last := page.ScrollCalls[len(page.ScrollCalls)-1]; last != 0 {
		t.Errorf("expected to end at top, got %v", last)
	}
}

func TestPauseHonoursCancellation(t *testing.T) {
	e := NewEmulator(config.DefaultSettings(), nil, RealSleeper(), seeded(), observability.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Pause(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

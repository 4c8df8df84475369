package app

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/browser/fakebrowser"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/human"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

type fakeSession struct {
	page         *fakebrowser.Page
	alive        bool
	reconnectErr error
	reconnects   int
	resets       int
	closed       bool
}

func newFakeSession(page *fakebrowser.Page) *fakeSession {
	return &fakeSession{page: page, alive: true}
}

func (s *fakeSession) Page() (browser.Page, error) {
	if !s.alive {
		return nil, browser.ErrNotConnected
	}
	return s.page, nil
}

func (s *fakeSession) Alive(ctx context.Context) bool { return s.alive }

func (s *fakeSession) Reconnect(ctx context.Context, returnURL string) error {
	s.reconnects++
	if s.reconnectErr != nil {
		return s.reconnectErr
	}
	s.alive = true
	return s.page.Navigate(ctx, returnURL)
}

func (s *fakeSession) ResetAttempts() { s.resets++ }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// memStore: хранилище прогресса в памяти.
type memStore struct {
	states map[string]*storage.RunState
	last   string
	saves  int
	closed bool
}

func newMemStore() *memStore {
	return &memStore{states: map[string]*storage.RunState{}}
}

func (m *memStore) Load(ctx context.Context, site string) (*storage.RunState, error) {
	return m.states[site], nil
}

func (m *memStore) LastSite(ctx context.Context) (*storage.RunState, error) {
	return m.states[m.last], nil
}

func (m *memStore) Save(ctx context.Context, state *storage.RunState) error {
	saved := *state
	m.states[state.Site] = &saved
	m.last = state.Site
	m.saves++
	return nil
}

func (m *memStore) Reset(ctx context.Context, site string) error {
	delete(m.states, site)
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

const cleanHTML = "<html><body><main><p>Coupons</p></main></body></html>"

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.MaxRetries = 2
	s.SlowStart = false
	return s
}

func testSite() *config.SiteProfile {
	return &config.SiteProfile{
		Name:                   "Test Market",
		URL:                    "https://market.example/coupons",
		CouponButtonSelector:   "button.clip",
		CouponClippedIndicator: "button.clip.added",
		RateLimitIndicators:    []string{"You are being rate limited"},
		SiteSpecificSettings: config.SiteSettings{
			ClickStrategy: config.ClickStandard,
			Finder:        config.FinderGeneric,
		},
	}
}

func testPage(buttons ...*fakebrowser.Element) *fakebrowser.Page {
	page := fakebrowser.NewPage("about:blank")
	page.SetHTML(cleanHTML)
	page.Set("button.clip", buttons...)
	return page
}

type cycleEnv struct {
	cycle      *Cycle
	session    *fakeSession
	store      *memStore
	page       *fakebrowser.Page
	sleeper    *fakebrowser.NoSleep
	interrupts *Interrupts
	out        *bytes.Buffer
}

func newCycleEnv(t *testing.T, site *config.SiteProfile, settings config.Settings, input string, page *fakebrowser.Page) *cycleEnv {
	t.Helper()

	logger := observability.NewDiscard()
	sleeper := &fakebrowser.NoSleep{}
	rng := rand.New(rand.NewPCG(1, 2))
	interrupts := NewInterrupts()
	out := &bytes.Buffer{}
	prompter := console.NewPrompter(strings.NewReader(input), out, interrupts.C())
	session := newFakeSession(page)
	store := newMemStore()

	cycle := NewCycle("market", site, settings, "session-1", CycleDeps{
		Session:    session,
		Store:      store,
		Prompter:   prompter,
		Interrupts: interrupts,
		Emulator:   human.NewEmulator(settings, site, sleeper, rng, logger),
		Finder:     NewFinder(logger),
		Logger:     logger,
	})

	return &cycleEnv{
		cycle:      cycle,
		session:    session,
		store:      store,
		page:       page,
		sleeper:    sleeper,
		interrupts: interrupts,
		out:        out,
	}
}

// markClipped меняет текст кнопки после клика, как это делает сайт.
func markClipped(el *fakebrowser.Element) {
	el.TextVal = "Clipped"
}

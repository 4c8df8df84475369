package app

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coupon-clipper/internal/browser/fakebrowser"
	"coupon-clipper/internal/checksum"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/control"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage"
)

type runnerEnv struct {
	runner     *Runner
	session    *fakeSession
	store      *memStore
	interrupts *Interrupts
	out        *bytes.Buffer
}

func newRunnerEnv(t *testing.T, input string, page *fakebrowser.Page, opts RunnerOptions) *runnerEnv {
	t.Helper()
	return newRunnerEnvWithStore(t, input, page, opts, newMemStore())
}

// newRunnerEnvWithStore: повторный запуск поверх прогресса прошлых запусков.
func newRunnerEnvWithStore(t *testing.T, input string, page *fakebrowser.Page, opts RunnerOptions, store *memStore) *runnerEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Websites = map[string]*config.SiteProfile{"market": testSite()}
	cfg.SiteOrder = []string{"market"}
	cfg.Settings = testSettings()

	interrupts := NewInterrupts()
	out := &bytes.Buffer{}
	prompter := console.NewPrompter(strings.NewReader(input), out, interrupts.C())
	session := newFakeSession(page)

	opts.Sleeper = &fakebrowser.NoSleep{}
	opts.Rand = rand.New(rand.NewPCG(7, 7))

	runner := NewRunner(cfg, session, store, prompter, interrupts, observability.NewDiscard(), opts)
	return &runnerEnv{runner: runner, session: session, store: store, interrupts: interrupts, out: out}
}

func TestRunnerClipsSelectedSite(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n0\n", testPage(b1, b2), RunnerOptions{})

	require.NoError(t, env.runner.Run(context.Background()))

	assert.Equal(t, control.Terminated, env.runner.State())
	require.Len(t, env.runner.Summary(), 1)
	row := env.runner.Summary()[0]
	assert.Equal(t, "Test Market", row.Site)
	assert.Equal(t, 2, row.Clipped)
	assert.Equal(t, "completed", row.Stopped)

	assert.True(t, env.session.closed)
	assert.True(t, env.store.closed)
	assert.Equal(t, 2, env.store.states["market"].Clipped)
	assert.Contains(t, env.out.String(), "Total")
}

func TestRunnerPreselectedSite(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	// После сайта ввод закончился: EOF в меню завершает работу
	env := newRunnerEnv(t, "2\n", testPage(b1), RunnerOptions{Site: "market"})

	require.NoError(t, env.runner.Run(context.Background()))
	assert.Equal(t, 1, b1.ClickCount())
	assert.Equal(t, control.Terminated, env.runner.State())
}

func TestRunnerUnknownPreselectShowsMenu(t *testing.T) {
	env := newRunnerEnv(t, "0\n", testPage(), RunnerOptions{Site: "nowhere"})

	require.NoError(t, env.runner.Run(context.Background()))
	assert.Contains(t, env.out.String(), "Select website (0-1)")
	assert.Empty(t, env.runner.Summary())
}

func TestRunnerPauseToggleAndContinue(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n5\n0\n", testPage(b1, b2), RunnerOptions{})
	b1.OnClick = func(el *fakebrowser.Element) { env.interrupts.Raise() }

	require.NoError(t, env.runner.Run(context.Background()))

	out := env.out.String()
	assert.Contains(t, out, "PAUSED")
	assert.Contains(t, out, "1 coupons clipped, ~1 remaining")
	assert.Contains(t, out, "Reason: interrupted by operator")
	assert.Contains(t, out, "Rate limit detection disabled")

	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, 2, env.runner.Summary()[0].Clipped)
	assert.Equal(t, 1, b1.ClickCount())
	assert.Equal(t, 1, b2.ClickCount())
}

func TestRunnerSkipFromPause(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n2\n0\n", testPage(b1, b2), RunnerOptions{})
	b1.OnClick = func(el *fakebrowser.Element) { env.interrupts.Raise() }

	require.NoError(t, env.runner.Run(context.Background()))

	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, "skipped by operator", env.runner.Summary()[0].Stopped)
	assert.Equal(t, 0, b2.ClickCount())
	// Прогресс сохранён для следующего запуска
	assert.Equal(t, 1, env.store.states["market"].Position)
}

func TestRunnerReturnToMenuResetsProgress(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n3\n0\n", testPage(b1, b2), RunnerOptions{})
	b1.OnClick = func(el *fakebrowser.Element) { env.interrupts.Raise() }

	require.NoError(t, env.runner.Run(context.Background()))

	assert.NotContains(t, env.store.states, "market")
	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, "returned to menu", env.runner.Summary()[0].Stopped)
}

func TestRunnerExitFromPause(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n4\n", testPage(b1, b2), RunnerOptions{})
	b1.OnClick = func(el *fakebrowser.Element) { env.interrupts.Raise() }

	require.NoError(t, env.runner.Run(context.Background()))

	assert.Equal(t, control.Terminated, env.runner.State())
	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, "exited", env.runner.Summary()[0].Stopped)
	assert.True(t, env.session.closed)
}

func TestRunnerReconnectsAfterConnectionLoss(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	page := testPage(b1, b2)
	env := newRunnerEnv(t, "1\n2\n0\n", page, RunnerOptions{})
	env.runner.cfg.Settings.ConnectionCheckInterval = 1
	b1.OnClick = func(el *fakebrowser.Element) {
		markClipped(el)
		env.session.alive = false
	}

	require.NoError(t, env.runner.Run(context.Background()))

	assert.Equal(t, 1, env.session.reconnects)
	assert.Contains(t, env.out.String(), "Successfully reconnected to browser.")
	assert.Equal(t, 1, b2.ClickCount())
	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, 2, env.runner.Summary()[0].Clipped)
}

func TestRunnerReconnectFailurePauses(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\n2\n6\n4\n", testPage(b1, b2), RunnerOptions{})
	env.runner.cfg.Settings.ConnectionCheckInterval = 1
	env.session.reconnectErr = errors.New("browser closed")
	b1.OnClick = func(el *fakebrowser.Element) { env.session.alive = false }

	require.NoError(t, env.runner.Run(context.Background()))

	out := env.out.String()
	assert.Contains(t, out, "reconnect failed: browser closed")
	// Пункт 6 сбрасывает счётчик попыток и пробует снова
	assert.Equal(t, 1, env.session.resets)
	assert.Equal(t, 2, env.session.reconnects)
	assert.Equal(t, control.Terminated, env.runner.State())
}

func TestRunnerResumesSavedProgress(t *testing.T) {
	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	b2 := fakebrowser.NewButton("b2", "Clip", nil)
	env := newRunnerEnv(t, "1\ny\n2\n0\n", testPage(b1, b2), RunnerOptions{})

	marker := checksum.NewGenerator().CouponFingerprint("market", listSignature(2), 1)
	env.store.states["market"] = &storage.RunState{Site: "market", Clipped: 1, Position: 1, Marker: marker, RateLimitDetection: true}

	require.NoError(t, env.runner.Run(context.Background()))

	assert.Contains(t, env.out.String(), "Resume previous progress (1 clipped, stopped at #1)")
	assert.Equal(t, 0, b1.ClickCount())
	assert.Equal(t, 1, b2.ClickCount())
	assert.Equal(t, 2, env.runner.Summary()[0].Clipped)
}

func TestRunnerCompletedSiteStartsOverNextRun(t *testing.T) {
	a1 := fakebrowser.NewButton("a1", "Clip", nil)
	a2 := fakebrowser.NewButton("a2", "Clip", nil)
	first := newRunnerEnv(t, "1\n2\n0\n", testPage(a1, a2), RunnerOptions{})
	require.NoError(t, first.runner.Run(context.Background()))

	saved := first.store.states["market"]
	require.NotNil(t, saved)
	assert.Equal(t, 2, saved.Clipped)
	assert.Zero(t, saved.Position)
	assert.Empty(t, saved.Marker)

	// Новые купоны на том же сайте: весь список проходится заново
	n1 := fakebrowser.NewButton("n1", "Clip", nil)
	n2 := fakebrowser.NewButton("n2", "Clip", nil)
	second := newRunnerEnvWithStore(t, "1\n2\n0\n", testPage(n1, n2), RunnerOptions{}, first.store)
	require.NoError(t, second.runner.Run(context.Background()))

	assert.NotContains(t, second.out.String(), "Resume previous progress")
	assert.Equal(t, 1, n1.ClickCount())
	assert.Equal(t, 1, n2.ClickCount())
	require.Len(t, second.runner.Summary(), 1)
	assert.Equal(t, 2, second.runner.Summary()[0].Clipped)
}

func TestRunnerDefaultsToLastSite(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), &storage.RunState{Site: "market", Clipped: 4}))

	b1 := fakebrowser.NewButton("b1", "Clip", nil)
	// Пустой ввод в меню выбирает сайт прошлого запуска
	env := newRunnerEnvWithStore(t, "\n2\n0\n", testPage(b1), RunnerOptions{}, store)
	require.NoError(t, env.runner.Run(context.Background()))

	assert.Contains(t, env.out.String(), "Select website (0-1, default: 1)")
	assert.Equal(t, 1, b1.ClickCount())
	require.Len(t, env.runner.Summary(), 1)
	assert.Equal(t, "Test Market", env.runner.Summary()[0].Site)
}

func TestRunnerLastSiteMissingFromConfig(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), &storage.RunState{Site: "retired"}))

	env := newRunnerEnvWithStore(t, "0\n", testPage(), RunnerOptions{}, store)
	require.NoError(t, env.runner.Run(context.Background()))

	assert.NotContains(t, env.out.String(), "default:")
	assert.Empty(t, env.runner.Summary())
}

func TestRunnerCancelledContext(t *testing.T) {
	env := newRunnerEnv(t, "", testPage(), RunnerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, env.runner.Run(ctx))
	assert.Equal(t, control.Terminated, env.runner.State())
	assert.True(t, env.store.closed)
}

func TestInterruptsCoalesce(t *testing.T) {
	in := NewInterrupts()
	in.Raise()
	in.Raise()

	assert.True(t, in.Take())
	assert.False(t, in.Take())

	select {
	case <-in.C():
		t.Fatal("channel should be drained")
	default:
	}
}

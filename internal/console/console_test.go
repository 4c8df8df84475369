package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(strings.NewReader(input), &out, nil), &out
}

func TestReadLineAndEOF(t *testing.T) {
	p, _ := newTestPrompter("  first \nsecond\n")
	ctx := context.Background()

	line, err := p.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = p.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = p.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = p.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLineInterrupted(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	interrupts := make(chan struct{}, 1)
	p := NewPrompter(r, io.Discard, interrupts)
	interrupts <- struct{}{}

	_, err := p.ReadLine(context.Background())
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestReadLineContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	p := NewPrompter(r, io.Discard, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ReadLine(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestChooseRepromptsOnInvalid(t *testing.T) {
	p, out := newTestPrompter("9\n2\n")

	choice, err := p.Choose(context.Background(), "Choice: ", []string{"1", "2"}, "")
	require.NoError(t, err)
	assert.Equal(t, "2", choice)
	assert.Contains(t, out.String(), "Invalid choice")
}

func TestChooseDefault(t *testing.T) {
	p, _ := newTestPrompter("\n")

	choice, err := p.Choose(context.Background(), "Choice: ", []string{"1", "2"}, "2")
	require.NoError(t, err)
	assert.Equal(t, "2", choice)
}

func TestConfirm(t *testing.T) {
	p, _ := newTestPrompter("YES\nn\nmaybe\n")
	ctx := context.Background()

	ok, err := p.Confirm(ctx, "? ", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm(ctx, "? ", true)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Confirm(ctx, "? ", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFloat(t *testing.T) {
	p, _ := newTestPrompter("\nabc\n0.01\n2.5\n")
	ctx := context.Background()

	for _, want := range []float64{0.5, 0.5, 0.1, 2.5} {
		v, err := p.Float(ctx, "min: ", 0.5, 0.1)
		require.NoError(t, err)
		assert.InDelta(t, want, v, 1e-9)
	}
}

func TestTablesAndBanner(t *testing.T) {
	sites := SiteTable([]SiteRow{{Index: 1, Key: "weis", Name: "Weis Markets", URL: "https://www.weismarkets.com/coupons/"}})
	assert.Contains(t, sites, "Weis Markets")
	assert.Contains(t, sites, "Exit")

	summary := SummaryTable([]SummaryRow{
		{Site: "weis", Found: 10, Clipped: 7, AlreadyClipped: 2, Failed: 1, Duration: 90 * time.Second, Stopped: "completed"},
		{Site: "giant", Found: 3, Clipped: 3},
	})
	assert.Contains(t, summary, "Total")
	assert.Contains(t, summary, "10")

	banner := Banner(ToneWarn, "PAUSED", "3 coupons clipped")
	assert.Contains(t, banner, "PAUSED")
	assert.Contains(t, banner, "3 coupons clipped")

	assert.Equal(t, "", Progress(3, 4, time.Time{}))
	assert.Contains(t, Progress(3, 4, time.Now()), "3 clipped at #4")
	assert.NotContains(t, Progress(3, 0, time.Now()), "#")
}

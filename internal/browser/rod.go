package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"coupon-clipper/internal/config"
)

const elementTimeout = 10 * time.Second

// findByTextJS: аналог jQuery :contains по innerText.
const findByTextJS = `(sel, text) => Array.from(document.querySelectorAll(sel)).filter(
	e => (e.innerText || e.textContent || '').includes(text))`

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

// NewPage оборачивает *rod.Page в Page.
func NewPage(page *rod.Page, timeout time.Duration) Page {
	return &rodPage{page: page, timeout: timeout}
}

func (p *rodPage) timed(ctx context.Context) (*rod.Page, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(tctx), cancel
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	pg, cancel := p.timed(ctx)
	defer cancel()

	info, err := pg.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg, cancel := p.timed(ctx)
	defer cancel()

	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Reload(ctx context.Context) error {
	pg, cancel := p.timed(ctx)
	defer cancel()

	if err := pg.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return pg.WaitLoad()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	pg, cancel := p.timed(ctx)
	defer cancel()
	return pg.HTML()
}

func (p *rodPage) Find(ctx context.Context, sel config.Selector) ([]Element, error) {
	// Элементы живут дольше вызова, поэтому без таймаута на контексте
	pg := p.page.Context(ctx)

	var (
		found rod.Elements
		err   error
	)
	if sel.Text == "" {
		found, err = pg.Elements(sel.CSS)
	} else {
		found, err = pg.ElementsByJS(rod.Eval(findByTextJS, sel.CSS, sel.Text))
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, mapErr(err))
	}

	out := make([]Element, 0, len(found))
	for _, el := range found {
		out = append(out, newRodElement(el))
	}
	return out, nil
}

func (p *rodPage) ScrollHeight(ctx context.Context) (float64, error) {
	pg, cancel := p.timed(ctx)
	defer cancel()

	res, err := pg.Eval(`() => Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

func (p *rodPage) ScrollTo(ctx context.Context, y float64) error {
	pg, cancel := p.timed(ctx)
	defer cancel()

	_, err := pg.Eval(`y => window.scrollTo(0, y)`, y)
	return err
}

func (p *rodPage) MoveMouse(ctx context.Context, x, y float64) error {
	pg, cancel := p.timed(ctx)
	defer cancel()

	return proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    x,
		Y:    y,
	}.Call(pg)
}

func (p *rodPage) ClickAt(ctx context.Context, x, y float64) error {
	pg, cancel := p.timed(ctx)
	defer cancel()

	for _, typ := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMouseMoved,
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		clicks := 1
		if typ == proto.InputDispatchMouseEventTypeMouseMoved {
			clicks = 0
		}
		err := proto.InputDispatchMouseEvent{
			Type:       typ,
			X:          x,
			Y:          y,
			Button:     proto.InputMouseButtonLeft,
			ClickCount: clicks,
		}.Call(pg)
		if err != nil {
			return fmt.Errorf("mouse %s at (%.0f,%.0f): %w", typ, x, y, err)
		}
	}
	return nil
}

type rodElement struct {
	el *rod.Element
	id string
}

func newRodElement(el *rod.Element) *rodElement {
	id := string(el.Object.ObjectID)
	if node, err := el.Describe(0, false); err == nil && node != nil {
		id = strconv.Itoa(int(node.BackendNodeID))
	}
	return &rodElement{el: el, id: id}
}

func (e *rodElement) timed() (*rod.Element, func()) {
	t := e.el.Timeout(elementTimeout)
	return t, func() { t.CancelTimeout() }
}

func (e *rodElement) ID() string { return e.id }

func (e *rodElement) Text() (string, error) {
	el, done := e.timed()
	defer done()
	text, err := el.Text()
	return text, mapErr(err)
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	el, done := e.timed()
	defer done()

	v, err := el.Attribute(name)
	if err != nil {
		return "", false, mapErr(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Visible() (bool, error) {
	el, done := e.timed()
	defer done()
	ok, err := el.Visible()
	return ok, mapErr(err)
}

func (e *rodElement) Box() (Box, error) {
	el, done := e.timed()
	defer done()

	shape, err := el.Shape()
	if err != nil {
		return Box{}, mapErr(err)
	}
	rect := shape.Box()
	if rect == nil {
		return Box{}, nil
	}
	return Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

func (e *rodElement) ScrollIntoView() error {
	el, done := e.timed()
	defer done()
	return mapErr(el.ScrollIntoView())
}

func (e *rodElement) Click() error {
	el, done := e.timed()
	defer done()
	return mapErr(el.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) JSClick() error {
	el, done := e.timed()
	defer done()
	_, err := el.Eval(`() => this.click()`)
	return mapErr(err)
}

func (e *rodElement) ParentJSClick() error {
	el, done := e.timed()
	defer done()
	_, err := el.Eval(`() => { if (!this.parentElement) throw new Error('no parent'); this.parentElement.click() }`)
	return mapErr(err)
}

func (e *rodElement) PressEnter() error {
	el, done := e.timed()
	defer done()
	if err := el.Focus(); err != nil {
		return mapErr(err)
	}
	return mapErr(el.Type(input.Enter))
}

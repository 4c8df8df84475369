// Package fakebrowser содержит управляемые из тестов реализации browser.Page и browser.Element.
package fakebrowser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/config"
)

// Element: кнопка в памяти. Ошибки кликов задаются полями *Err.
type Element struct {
	mu sync.Mutex

	IDValue string
	TextVal string
	Attrs   map[string]string
	Hidden  bool
	BoxVal  browser.Box
	Stale   bool

	ClickErr       error
	JSClickErr     error
	ParentClickErr error
	EnterErr       error
	ScrollErr      error

	// OnClick вызывается при любом успешном клике
	OnClick func(el *Element)

	Clicks   []string
	Scrolled int
}

func NewButton(id, text string, attrs map[string]string) *Element {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Element{
		IDValue: id,
		TextVal: text,
		Attrs:   attrs,
		BoxVal:  browser.Box{X: 100, Y: 100, Width: 80, Height: 30},
	}
}

func (e *Element) staleErr() error {
	if e.Stale {
		return fmt.Errorf("%w: node %s is detached", browser.ErrStale, e.IDValue)
	}
	return nil
}

func (e *Element) ID() string { return e.IDValue }

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.staleErr(); err != nil {
		return "", err
	}
	return e.TextVal, nil
}

func (e *Element) Attribute(name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.staleErr(); err != nil {
		return "", false, err
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Visible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.staleErr(); err != nil {
		return false, err
	}
	return !e.Hidden, nil
}

func (e *Element) Box() (browser.Box, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.staleErr(); err != nil {
		return browser.Box{}, err
	}
	return e.BoxVal, nil
}

func (e *Element) ScrollIntoView() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.staleErr(); err != nil {
		return err
	}
	e.Scrolled++
	return e.ScrollErr
}

func (e *Element) click(kind string, failure error) error {
	e.mu.Lock()
	if err := e.staleErr(); err != nil {
		e.mu.Unlock()
		return err
	}
	if failure != nil {
		e.mu.Unlock()
		return failure
	}
	e.Clicks = append(e.Clicks, kind)
	hook := e.OnClick
	e.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return nil
}

func (e *Element) Click() error         { return e.click("native", e.ClickErr) }
func (e *Element) JSClick() error       { return e.click("js", e.JSClickErr) }
func (e *Element) ParentJSClick() error { return e.click("parent", e.ParentClickErr) }
func (e *Element) PressEnter() error    { return e.click("enter", e.EnterErr) }

// ClickCount: число успешных кликов любым способом.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Clicks)
}

// Page: страница с заранее заданными результатами поиска.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	HTMLVal    string
	// Results по ключу Selector.String()
	Results map[string][]*Element
	Height  float64
	// Heights: последовательные значения ScrollHeight; последнее повторяется
	Heights []float64

	NavigateErr error
	FindErr     error

	Navigations []string
	Reloads     int
	ScrollCalls []float64
	MouseMoves  int
	PointClicks int

	// OnReload позволяет тесту поменять содержимое страницы
	OnReload func(p *Page)
}

func NewPage(url string) *Page {
	return &Page{CurrentURL: url, Results: map[string][]*Element{}, HTMLVal: "<html><body></body></html>"}
}

// Set задаёт результат поиска по селектору.
func (p *Page) Set(sel string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Results[sel] = els
}

func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	p.HTMLVal = html
	p.mu.Unlock()
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.CurrentURL = url
	p.Navigations = append(p.Navigations, url)
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.Reloads++
	hook := p.OnReload
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTMLVal, nil
}

func (p *Page) Find(ctx context.Context, sel config.Selector) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FindErr != nil {
		return nil, p.FindErr
	}

	var out []browser.Element
	for _, el := range p.Results[sel.String()] {
		out = append(out, el)
	}
	// Поиск по тексту: без явного результата ищем среди всех известных кнопок
	if sel.Text != "" && len(out) == 0 {
		seen := map[string]bool{}
		for key, els := range p.Results {
			if strings.Contains(key, ":contains(") {
				continue
			}
			for _, el := range els {
				if !seen[el.IDValue] && strings.Contains(el.TextVal, sel.Text) {
					seen[el.IDValue] = true
					out = append(out, el)
				}
			}
		}
	}
	return out, nil
}

func (p *Page) ScrollHeight(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Heights) > 0 {
		h := p.Heights[0]
		if len(p.Heights) > 1 {
			p.Heights = p.Heights[1:]
		}
		return h, nil
	}
	return p.Height, nil
}

func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScrollCalls = append(p.ScrollCalls, y)
	return nil
}

func (p *Page) MoveMouse(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MouseMoves++
	return nil
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PointClicks++
	return nil
}

// ErrClickIntercepted имитирует перекрытый другим элементом клик.
var ErrClickIntercepted = errors.New("element click intercepted")

// NoSleep только запоминает запрошенные паузы.
type NoSleep struct {
	mu     sync.Mutex
	Sleeps []time.Duration
}

func (s *NoSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Sleeps = append(s.Sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Total: сумма всех пауз.
func (s *NoSleep) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.Sleeps {
		total += d
	}
	return total
}

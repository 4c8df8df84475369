package app

import (
	"context"
	"errors"
	"strings"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/observability"
)

// clickableCSS: элементы, среди которых ищутся кнопки по тексту.
const clickableCSS = "button, a, [role='button'], input[type='button'], input[type='submit']"

var (
	weisSelectors = []string{
		".btn-clip:not(.added)",
		".coupon-add",
		".add-coupon",
		"button[data-coupon-id]",
		"button.coupon__btn",
		"button.add",
	}
	genericButtonTexts = []string{"clip coupon", "CLIP COUPON", "clip", "add coupon", "add offer"}
	loadMoreTexts      = []string{"load more", "show more", "view more", "more coupons", "see more"}
	loadMoreAttrs      = []string{
		"[id*='load-more']",
		"[id*='loadMore']",
		"[class*='load-more']",
		"[class*='loadMore']",
	}
)

// Finder ищет кнопки купонов и "load more" стратегией сайта.
type Finder struct {
	logger *observability.Logger
}

func NewFinder(logger *observability.Logger) *Finder {
	return &Finder{logger: logger}
}

// CouponButtons возвращает видимые кнопки без повторов.
func (f *Finder) CouponButtons(ctx context.Context, page browser.Page, site *config.SiteProfile) ([]browser.Element, error) {
	switch site.FinderKind() {
	case config.FinderWeis:
		buttons, err := f.weis(ctx, page)
		if err != nil || len(buttons) > 0 {
			return buttons, err
		}
	case config.FinderHarrisTeeter:
		buttons, err := f.harrisTeeter(ctx, page)
		if err != nil || len(buttons) > 0 {
			return buttons, err
		}
	}
	return f.generic(ctx, page, site)
}

func (f *Finder) weis(ctx context.Context, page browser.Page) ([]browser.Element, error) {
	var all []browser.Element
	for _, css := range weisSelectors {
		found, err := f.find(ctx, page, config.Selector{CSS: css})
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	found, err := f.find(ctx, page, config.Selector{CSS: clickableCSS, Text: "CLIP COUPON"})
	if err != nil {
		return nil, err
	}
	all = append(all, found...)

	buttons := visibleUnique(all)
	f.logger.Info("Weis buttons found", "count", len(buttons))
	return buttons, nil
}

func (f *Finder) harrisTeeter(ctx context.Context, page browser.Page) ([]browser.Element, error) {
	found, err := f.byText(ctx, page, "Clip")
	if err != nil {
		return nil, err
	}

	var buttons []browser.Element
	for _, el := range found {
		text, err := el.Text()
		if err != nil {
			continue
		}
		// Unclip: уже активированный купон
		if !strings.Contains(strings.ToLower(text), "unclip") {
			buttons = append(buttons, el)
		}
	}
	f.logger.Info("Clip buttons found", "count", len(buttons), "excluded_unclip", len(found)-len(buttons))
	return buttons, nil
}

func (f *Finder) generic(ctx context.Context, page browser.Page, site *config.SiteProfile) ([]browser.Element, error) {
	var all []browser.Element
	for _, sel := range site.CouponButtons() {
		found, err := f.find(ctx, page, sel)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			f.logger.Debug("buttons found by selector", "selector", sel.String(), "count", len(found))
		}
		all = append(all, found...)
	}
	for _, text := range genericButtonTexts {
		found, err := f.find(ctx, page, config.Selector{CSS: clickableCSS, Text: text})
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}

	buttons := visibleUnique(all)
	f.logger.Info("Unique coupon buttons found", "count", len(buttons))
	return buttons, nil
}

// ByOperator ищет кнопки по селектору или тексту, которые указал оператор.
func (f *Finder) ByOperator(ctx context.Context, page browser.Page, css, text string) ([]browser.Element, error) {
	if css != "" {
		var all []browser.Element
		for _, sel := range config.ParseSelectors(css) {
			found, err := f.find(ctx, page, sel)
			if err != nil {
				return nil, err
			}
			all = append(all, found...)
		}
		return visibleUnique(all), nil
	}
	return f.byText(ctx, page, text)
}

// LoadMore возвращает первую видимую и не заблокированную кнопку "load more", либо nil.
func (f *Finder) LoadMore(ctx context.Context, page browser.Page, site *config.SiteProfile) (browser.Element, error) {
	var candidates []browser.Element
	for _, sel := range site.LoadMoreButtons() {
		found, err := f.find(ctx, page, sel)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	if len(candidates) == 0 {
		for _, text := range loadMoreTexts {
			found, err := f.byTextFold(ctx, page, text)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				candidates = found
				break
			}
		}
	}

	if len(candidates) == 0 {
		for _, css := range loadMoreAttrs {
			found, err := f.find(ctx, page, config.Selector{CSS: css})
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				candidates = found
				break
			}
		}
	}

	for _, el := range candidates {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		if _, disabled, err := el.Attribute("disabled"); err != nil || disabled {
			continue
		}
		return el, nil
	}
	return nil, nil
}

// byText: сначала точное вхождение текста, затем без учёта регистра.
func (f *Finder) byText(ctx context.Context, page browser.Page, text string) ([]browser.Element, error) {
	found, err := f.find(ctx, page, config.Selector{CSS: clickableCSS, Text: text})
	if err != nil || len(found) > 0 {
		return found, err
	}
	return f.byTextFold(ctx, page, text)
}

func (f *Finder) byTextFold(ctx context.Context, page browser.Page, text string) ([]browser.Element, error) {
	all, err := f.find(ctx, page, config.Selector{CSS: clickableCSS})
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(text)
	var out []browser.Element
	for _, el := range all {
		t, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(t), want) {
			out = append(out, el)
		}
	}
	return out, nil
}

// find пропускает ошибки отдельных селекторов, кроме потери соединения и отмены.
func (f *Finder) find(ctx context.Context, page browser.Page, sel config.Selector) ([]browser.Element, error) {
	found, err := page.Find(ctx, sel)
	if err == nil {
		return found, nil
	}
	if ctx.Err() != nil || browser.IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	f.logger.Debug("selector failed", "selector", sel.String(), "error", err)
	return nil, nil
}

// visibleUnique убирает повторы по ID и невидимые элементы, сохраняя порядок.
func visibleUnique(elements []browser.Element) []browser.Element {
	seen := make(map[string]bool, len(elements))
	out := make([]browser.Element, 0, len(elements))
	for _, el := range elements {
		id := el.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		out = append(out, el)
	}
	return out
}

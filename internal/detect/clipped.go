package detect

import (
	"slices"
	"strings"

	"coupon-clipper/internal/config"
)

// ButtonState: то, что видно у кнопки купона без клика.
type ButtonState struct {
	Text         string
	Class        string
	Disabled     string
	HasDisabled  bool
	AriaDisabled string
}

var clippedTerms = []string{"clipped", "added", "saved", "in cart", "remove"}

// IsClipped сообщает, активирован ли купон уже, и причину.
func IsClipped(state ButtonState, site *config.SiteProfile) (bool, string) {
	text := strings.ToLower(state.Text)

	if strings.Contains(text, "unclip") {
		return true, "unclip text"
	}

	if site != nil {
		classes := strings.Fields(state.Class)
		for _, group := range site.ClippedClasses() {
			if hasAll(classes, group) {
				return true, "class ." + strings.Join(group, ".")
			}
		}
		for _, sel := range config.ParseSelectors(site.CouponClippedIndicator) {
			if sel.Text != "" && strings.Contains(text, strings.ToLower(sel.Text)) {
				return true, "text " + sel.Text
			}
		}
	}

	for _, term := range clippedTerms {
		if strings.Contains(text, term) {
			return true, "text " + term
		}
	}

	if state.HasDisabled {
		switch strings.ToLower(state.Disabled) {
		case "", "true", "disabled":
			return true, "disabled"
		}
	}

	if strings.EqualFold(state.AriaDisabled, "true") {
		return true, "aria-disabled"
	}

	return false, ""
}

func hasAll(classes, want []string) bool {
	for _, w := range want {
		if !slices.Contains(classes, w) {
			return false
		}
	}
	return true
}

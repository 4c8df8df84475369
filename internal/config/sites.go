package config

import (
	"regexp"
	"strings"
)

// SiteProfile описывает один магазин: URL, селекторы и тайминги.
type SiteProfile struct {
	Name                   string       `yaml:"name" json:"name"`
	URL                    string       `yaml:"url" json:"url"`
	CouponButtonSelector   string       `yaml:"coupon_button_selector" json:"coupon_button_selector"`
	CouponClippedIndicator string       `yaml:"coupon_clipped_indicator" json:"coupon_clipped_indicator"`
	LoadMoreButtonSelector string       `yaml:"load_more_button_selector" json:"load_more_button_selector"`
	CaptchaIndicators      []string     `yaml:"captcha_indicators" json:"captcha_indicators"`
	RateLimitIndicators    []string     `yaml:"rate_limit_indicators" json:"rate_limit_indicators"`
	SiteSpecificSettings   SiteSettings `yaml:"site_specific_settings" json:"site_specific_settings"`
}

type SiteSettings struct {
	RapidModeCompatible bool     `yaml:"rapid_mode_compatible" json:"rapid_mode_compatible"`
	MinDelayOverride    *float64 `yaml:"min_delay_override" json:"min_delay_override"`
	MaxDelayOverride    *float64 `yaml:"max_delay_override" json:"max_delay_override"`
	// ClickStrategy: "standard" или "enhanced"
	ClickStrategy string `yaml:"click_strategy" json:"click_strategy"`
	// Finder: "generic", "weis" или "harris_teeter"
	Finder string `yaml:"finder" json:"finder"`
	// AskRateLimitMode: спрашивать режим детекции rate limit перед стартом
	AskRateLimitMode bool `yaml:"ask_rate_limit_mode" json:"ask_rate_limit_mode"`
}

const (
	ClickStandard = "standard"
	ClickEnhanced = "enhanced"

	FinderGeneric      = "generic"
	FinderWeis         = "weis"
	FinderHarrisTeeter = "harris_teeter"
)

// Selector: CSS-селектор с необязательным фильтром по тексту.
// Text заполняется из псевдокласса :contains('...'), которого нет в CSS.
type Selector struct {
	CSS  string
	Text string
}

func (s Selector) String() string {
	if s.Text == "" {
		return s.CSS
	}
	return s.CSS + ":contains('" + s.Text + "')"
}

var containsRe = regexp.MustCompile(`^(.*?):contains\(\s*['"](.*?)['"]\s*\)(.*)$`)

// ParseSelectors разбирает список селекторов через запятую.
// Запятые внутри скобок и кавычек не считаются разделителями.
func ParseSelectors(list string) []Selector {
	var out []Selector
	for _, raw := range splitSelectorList(list) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if m := containsRe.FindStringSubmatch(raw); m != nil {
			css := strings.TrimSpace(m[1] + m[3])
			if css == "" {
				css = "*"
			}
			out = append(out, Selector{CSS: css, Text: m[2]})
			continue
		}
		out = append(out, Selector{CSS: raw})
	}
	return out
}

func splitSelectorList(list string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range list {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			parts = append(parts, list[start:i])
			start = i + 1
		}
	}
	return append(parts, list[start:])
}

// CouponButtons возвращает селекторы кнопок купонов.
func (s *SiteProfile) CouponButtons() []Selector {
	return ParseSelectors(s.CouponButtonSelector)
}

// LoadMoreButtons возвращает селекторы кнопок "load more".
func (s *SiteProfile) LoadMoreButtons() []Selector {
	return ParseSelectors(s.LoadMoreButtonSelector)
}

// ClippedClasses возвращает классы-признаки уже активированного купона.
// Из ".btn-clip.added" получается "btn-clip added": все классы должны присутствовать.
func (s *SiteProfile) ClippedClasses() [][]string {
	var out [][]string
	for _, sel := range ParseSelectors(s.CouponClippedIndicator) {
		var classes []string
		css := attrOrNotRe.ReplaceAllString(sel.CSS, "")
		for _, token := range classTokenRe.FindAllStringSubmatch(css, -1) {
			classes = append(classes, token[1])
		}
		if len(classes) > 0 {
			out = append(out, classes)
		}
	}
	return out
}

var (
	classTokenRe = regexp.MustCompile(`\.([A-Za-z0-9_-]+)`)
	attrOrNotRe  = regexp.MustCompile(`\[[^\]]*\]|:not\([^)]*\)`)
)

// DisplayName возвращает имя для меню.
func (s *SiteProfile) DisplayName(key string) string {
	if s.Name != "" {
		return s.Name
	}
	return key
}

// Strategy возвращает стратегию клика с учётом значения по умолчанию.
func (s *SiteProfile) Strategy() string {
	if s.SiteSpecificSettings.ClickStrategy == "" {
		return ClickStandard
	}
	return s.SiteSpecificSettings.ClickStrategy
}

// FinderKind возвращает стратегию поиска кнопок.
func (s *SiteProfile) FinderKind() string {
	if s.SiteSpecificSettings.Finder == "" {
		return FinderGeneric
	}
	return s.SiteSpecificSettings.Finder
}

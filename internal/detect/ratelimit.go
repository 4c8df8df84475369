package detect

import (
	"strings"
	"sync"

	"coupon-clipper/internal/config"
	"coupon-clipper/internal/normalize"
)

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"too many attempts",
	"try again later",
	"temporarily blocked",
}

// RateLimiter распознаёт ограничение частоты запросов.
// Индикаторы сайта срабатывают сразу; общие фразы: только после threshold проверок подряд.
type RateLimiter struct {
	mu        sync.Mutex
	threshold int
	mainOnly  bool
	count     int
}

func NewRateLimiter(settings config.Settings) *RateLimiter {
	threshold := settings.RateLimitThreshold
	if threshold <= 0 {
		threshold = 1
	}
	return &RateLimiter{threshold: threshold, mainOnly: settings.RateLimitCheckMainContentOnly}
}

// Check проверяет снимок страницы после клика.
func (r *RateLimiter) Check(html string, site *config.SiteProfile) (Finding, error) {
	var indicators []string
	if site != nil {
		indicators = site.RateLimitIndicators
	}

	if !r.mainOnly {
		// Исходник страницы сравнивается с учётом регистра, общие фразы не проверяются
		for _, indicator := range indicators {
			if indicator != "" && strings.Contains(html, indicator) {
				return Finding{Detected: true, Kind: KindRateLimit, Via: indicator}, nil
			}
		}
		return Finding{}, nil
	}

	doc, err := normalize.ParseDocument(html)
	if err != nil {
		return Finding{}, err
	}
	text := normalize.VisibleText(mainContent(doc, mainContentSelectors))

	if indicator, ok := normalize.ContainsAny(text, indicators); ok {
		return Finding{Detected: true, Kind: KindRateLimit, Via: indicator}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	phrase, ok := normalize.ContainsAny(text, rateLimitPhrases)
	if !ok {
		r.count = 0
		return Finding{}, nil
	}

	r.count++
	if r.count >= r.threshold {
		return Finding{Detected: true, Kind: KindRateLimit, Via: phrase}, nil
	}
	return Finding{Kind: KindRateLimit, Via: phrase}, nil
}

// Count: сколько проверок подряд встречалась общая фраза.
func (r *RateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *RateLimiter) Threshold() int {
	return r.threshold
}

func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}

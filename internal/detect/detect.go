// Package detect распознаёт по снимку HTML страницы CAPTCHA, rate limit,
// требование входа и уже активированные купоны.
package detect

import (
	"github.com/PuerkitoBio/goquery"

	"coupon-clipper/internal/normalize"
)

// Finding: результат проверки страницы.
type Finding struct {
	Detected bool
	// Kind: "cloudflare", "captcha", "rate_limit", "login"
	Kind string
	// Via: селектор или фраза, по которой сработала проверка
	Via string
}

const (
	KindCloudflare = "cloudflare"
	KindCaptcha    = "captcha"
	KindRateLimit  = "rate_limit"
	KindLogin      = "login"
)

var mainContentSelectors = []string{"main", "#main", ".main-content", "#content", ".content", "article"}

// anyVisible: есть ли по селектору хотя бы один видимый элемент.
func anyVisible(doc *goquery.Document, selector string) bool {
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !normalize.IsHidden(sel) {
			found = true
			return false
		}
		return true
	})
	return found
}

// mainContent: первая видимая область основного контента, иначе body.
func mainContent(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		var match *goquery.Selection
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if !normalize.IsHidden(sel) {
				match = sel
				return false
			}
			return true
		})
		if match != nil {
			return match
		}
	}
	return doc.Find("body")
}

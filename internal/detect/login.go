package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"coupon-clipper/internal/normalize"
)

var loginFormSelectors = []string{
	"form[action*='login']",
	"form[action*='signin']",
	"form.login-form",
	"#login-form",
	".login-form",
	"form.signin-form",
	"#signin-form",
	".signin-form",
}

var loginButtonTexts = []string{"sign in", "log in"}

var loginPhrases = []string{
	"please log in to view coupons",
	"please sign in to view coupons",
	"login required to see coupons",
	"sign in required to see coupons",
	"log in to clip coupons",
	"sign in to clip coupons",
}

const chromeSelector = "header, nav, footer"

// LoginRequired: видна ли форма входа или призыв войти в основном контенте.
// Ссылки "Sign In" в шапке и подвале не считаются.
func LoginRequired(html string) (Finding, error) {
	doc, err := normalize.ParseDocument(html)
	if err != nil {
		return Finding{}, err
	}

	for _, selector := range loginFormSelectors {
		if firstOutsideChrome(doc.Find(selector)) {
			return Finding{Detected: true, Kind: KindLogin, Via: selector}, nil
		}
	}

	for _, selector := range mainContentSelectors[:5] {
		var via string
		doc.Find(selector).EachWithBreak(func(_ int, area *goquery.Selection) bool {
			if normalize.IsHidden(area) || area.Closest(chromeSelector).Length() > 0 {
				return true
			}
			area.Find("button, a").EachWithBreak(func(_ int, btn *goquery.Selection) bool {
				if normalize.IsHidden(btn) || btn.Closest(chromeSelector).Length() > 0 {
					return true
				}
				text := strings.ToLower(normalize.Clean(btn.Text()))
				for _, want := range loginButtonTexts {
					if text == want {
						via = selector + " " + goquery.NodeName(btn) + ":" + want
						return false
					}
				}
				return true
			})
			if via != "" {
				return false
			}
			if phrase, ok := normalize.ContainsAny(normalize.VisibleText(area), loginPhrases); ok {
				via = phrase
				return false
			}
			return true
		})
		if via != "" {
			return Finding{Detected: true, Kind: KindLogin, Via: via}, nil
		}
	}

	return Finding{}, nil
}

func firstOutsideChrome(sel *goquery.Selection) bool {
	found := false
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !normalize.IsHidden(s) && s.Closest(chromeSelector).Length() == 0 {
			found = true
			return false
		}
		return true
	})
	return found
}

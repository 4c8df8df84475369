package detect

import (
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/normalize"
)

var cloudflareIndicators = []string{
	"#challenge-running",
	"#challenge-form",
	".cf-browser-verification",
	"#cf-please-wait",
	"#cf-content",
}

var genericCaptchaSelectors = []string{
	".g-recaptcha",
	"#captcha",
	"[name='captcha']",
	"[id*='captcha']",
	"[class*='captcha']",
	".recaptcha-checkbox",
}

var captchaPhrases = []string{
	"complete the captcha",
	"solve the captcha",
	"i'm not a robot",
	"security check",
	"checking your browser",
	"please enable javascript",
	"please wait while we verify",
	"please wait...",
}

// Captcha ищет видимую CAPTCHA: CloudFlare, индикаторы сайта, общие селекторы, затем фразы в тексте.
func Captcha(html string, site *config.SiteProfile) (Finding, error) {
	doc, err := normalize.ParseDocument(html)
	if err != nil {
		return Finding{}, err
	}

	for _, indicator := range cloudflareIndicators {
		if anyVisible(doc, indicator) {
			return Finding{Detected: true, Kind: KindCloudflare, Via: indicator}, nil
		}
	}

	var siteIndicators []string
	if site != nil {
		siteIndicators = site.CaptchaIndicators
	}
	for _, group := range [][]string{siteIndicators, genericCaptchaSelectors} {
		for _, indicator := range group {
			if anyVisible(doc, indicator) {
				return Finding{Detected: true, Kind: KindCaptcha, Via: indicator}, nil
			}
		}
	}

	text := normalize.VisibleText(doc.Find("body"))
	if phrase, ok := normalize.ContainsAny(text, captchaPhrases); ok {
		return Finding{Detected: true, Kind: KindCaptcha, Via: phrase}, nil
	}

	return Finding{}, nil
}

// CloudflareActive: присутствует ли на странице проверка CloudFlare (видимая или нет).
func CloudflareActive(html string) bool {
	doc, err := normalize.ParseDocument(html)
	if err != nil {
		return false
	}
	for _, indicator := range cloudflareIndicators {
		if doc.Find(indicator).Length() > 0 {
			return true
		}
	}
	return false
}

// CaptchaPresent: остались ли элементы CAPTCHA после обновления страницы.
func CaptchaPresent(html string, site *config.SiteProfile) bool {
	doc, err := normalize.ParseDocument(html)
	if err != nil {
		return false
	}
	selectors := append([]string(nil), genericCaptchaSelectors...)
	if site != nil {
		selectors = append(selectors, site.CaptchaIndicators...)
	}
	for _, selector := range selectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

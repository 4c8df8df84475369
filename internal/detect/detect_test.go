package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coupon-clipper/internal/config"
)

func site(t *testing.T, key string) *config.SiteProfile {
	t.Helper()
	cfg := config.DefaultConfig()
	s, ok := cfg.Site(key)
	require.True(t, ok)
	return s
}

func TestCaptchaCloudflare(t *testing.T) {
	html := `<html><body><div id="challenge-running">Checking your browser before accessing</div></body></html>`

	f, err := Captcha(html, site(t, "weis"))
	require.NoError(t, err)
	assert.True(t, f.Detected)
	assert.Equal(t, KindCloudflare, f.Kind)
	assert.True(t, CloudflareActive(html))
}

func TestCaptchaIgnoresHiddenElements(t *testing.T) {
	html := `<html><body>
		<textarea id="g-recaptcha-response" style="display: none"></textarea>
		<div hidden><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe></div>
		<main><button class="btn-clip">Clip Coupon</button></main>
	</body></html>`

	f, err := Captcha(html, site(t, "weis"))
	require.NoError(t, err)
	assert.False(t, f.Detected, "matched via %q", f.Via)
	// Для проверки после обновления видимость не важна
	assert.True(t, CaptchaPresent(html, site(t, "weis")))
}

func TestCaptchaSiteIndicatorAndPhrase(t *testing.T) {
	f, err := Captcha(`<body><iframe title="Human verification challenge"></iframe></body>`, site(t, "walmart"))
	require.NoError(t, err)
	assert.True(t, f.Detected)
	assert.Equal(t, KindCaptcha, f.Kind)

	f, err = Captcha(`<body><p>Please confirm: I'm not a robot</p></body>`, nil)
	require.NoError(t, err)
	assert.True(t, f.Detected)
	assert.Equal(t, "i'm not a robot", f.Via)

	f, err = Captcha(`<body><p>Save $2 on cereal</p></body>`, site(t, "foodlion"))
	require.NoError(t, err)
	assert.False(t, f.Detected)
}

func TestRateLimiterThreshold(t *testing.T) {
	settings := config.DefaultSettings()
	rl := NewRateLimiter(settings)
	s := site(t, "foodlion")
	limited := `<body><main><p>Something went wrong, try again later.</p></main></body>`
	clean := `<body><main><p>Coupons</p></main></body>`

	for i := 1; i < settings.RateLimitThreshold; i++ {
		f, err := rl.Check(limited, s)
		require.NoError(t, err)
		assert.False(t, f.Detected)
		assert.Equal(t, i, rl.Count())
	}

	// Чистая проверка сбрасывает счётчик
	_, err := rl.Check(clean, s)
	require.NoError(t, err)
	assert.Equal(t, 0, rl.Count())

	var f Finding
	for i := 0; i < settings.RateLimitThreshold; i++ {
		f, err = rl.Check(limited, s)
		require.NoError(t, err)
	}
	assert.True(t, f.Detected)
	assert.Equal(t, "try again later", f.Via)
}

func TestRateLimiterSiteIndicatorFiresImmediately(t *testing.T) {
	rl := NewRateLimiter(config.DefaultSettings())
	f, err := rl.Check(`<body><div class="content"><h2>You are being RATE LIMITED</h2></div></body>`, site(t, "weis"))
	require.NoError(t, err)
	assert.True(t, f.Detected)
	assert.Equal(t, "You are being rate limited", f.Via)
}

func TestRateLimiterMainContentOnly(t *testing.T) {
	rl := NewRateLimiter(config.DefaultSettings())
	html := `<body><main><p>Coupons</p></main><footer>Too many requests? Contact support</footer></body>`

	f, err := rl.Check(html, site(t, "foodlion"))
	require.NoError(t, err)
	assert.False(t, f.Detected)
	assert.Equal(t, 0, rl.Count())
}

func TestRateLimiterPageSource(t *testing.T) {
	settings := config.DefaultSettings()
	settings.RateLimitCheckMainContentOnly = false
	rl := NewRateLimiter(settings)
	s := &config.SiteProfile{RateLimitIndicators: []string{"Too many requests"}}

	f, err := rl.Check(`<footer>Too many requests</footer>`, s)
	require.NoError(t, err)
	assert.True(t, f.Detected)

	f, err = rl.Check(`<footer>too many requests</footer>`, s)
	require.NoError(t, err)
	assert.False(t, f.Detected, "page source match is case sensitive")
}

func TestLoginRequired(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected bool
	}{
		{"form", `<body><form action="/account/login"><input type="password"></form></body>`, true},
		{"header sign in link", `<body><header><a href="/login">Sign In</a></header><main>Coupons</main></body>`, false},
		{"main sign in button", `<body><main><button>Sign In</button></main></body>`, true},
		{"phrase", `<body><div id="content"><p>Please sign in to view coupons.</p></div></body>`, true},
		{"hidden modal form", `<body><div style="display:none"><form class="login-form"></form></div></body>`, false},
		{"no login", `<body><main><button>Clip</button></main></body>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := LoginRequired(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f.Detected, "via %q", f.Via)
		})
	}
}

func TestIsClipped(t *testing.T) {
	tests := []struct {
		name     string
		site     string
		state    ButtonState
		expected bool
	}{
		{"unclip", "harris_teeter", ButtonState{Text: "Unclip"}, true},
		{"clip", "harris_teeter", ButtonState{Text: "Clip"}, false},
		{"indicator classes", "weis", ButtonState{Text: "Coupon", Class: "btn btn-clip added"}, true},
		{"partial classes", "weis", ButtonState{Text: "Coupon", Class: "btn-clip"}, false},
		{"indicator text", "walmart", ButtonState{Text: "Offer claimed"}, true},
		{"clipped term", "foodlion", ButtonState{Text: "Added to card"}, true},
		{"disabled empty", "foodlion", ButtonState{Text: "Clip", HasDisabled: true}, true},
		{"disabled false", "foodlion", ButtonState{Text: "Clip", HasDisabled: true, Disabled: "false"}, false},
		{"aria disabled", "foodlion", ButtonState{Text: "Clip", AriaDisabled: "true"}, true},
		{"plain", "foodlion", ButtonState{Text: "Clip Coupon", Class: "kds-Button--primary"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := IsClipped(tt.state, site(t, tt.site))
			assert.Equal(t, tt.expected, got, "reason %q", reason)
		})
	}
}

package config

var defaultCaptchaIndicators = []string{
	"iframe[title*='recaptcha']",
	"iframe[src*='recaptcha']",
	"iframe[src*='captcha']",
	"iframe[src*='cloudflare']",
}

var defaultRateLimitIndicators = []string{
	"Too many requests",
	"Please try again later",
}

// DefaultSiteProfile: значения, которые наследует каждый сайт, если они не заданы.
func DefaultSiteProfile() SiteProfile {
	return SiteProfile{
		LoadMoreButtonSelector: "button.load-more, button:contains('Load More')",
		CaptchaIndicators:      append([]string(nil), defaultCaptchaIndicators...),
		RateLimitIndicators:    append([]string(nil), defaultRateLimitIndicators...),
		SiteSpecificSettings: SiteSettings{
			ClickStrategy: ClickStandard,
			Finder:        FinderGeneric,
		},
	}
}

func ptr(v float64) *float64 { return &v }

// DefaultConfig: конфигурация на случай отсутствия файла.
func DefaultConfig() *Config {
	return &Config{
		SiteOrder: []string{"foodlion", "safeway", "weis", "giant", "harris_teeter", "walmart"},
		Websites: map[string]*SiteProfile{
			"foodlion": {
				Name:                   "Food Lion",
				URL:                    "https://foodlion.com/savings/coupons/browse",
				CouponButtonSelector:   ".kds-Button--primary",
				CouponClippedIndicator: ".kds-Button--secondary",
				LoadMoreButtonSelector: "button.kds-Load-More, button.load-more, button:contains('Load More')",
			},
			"safeway": {
				Name:                   "Safeway",
				URL:                    "https://www.safeway.com/foru/coupons-deals.html",
				CouponButtonSelector:   "button.btn.btn-default.btn-block",
				CouponClippedIndicator: "button.btn-tag-primary.disabled",
				LoadMoreButtonSelector: ".load-more-btn, button.load-more, #loadMoreButton",
			},
			"weis": {
				Name:                   "Weis Markets",
				URL:                    "https://www.weismarkets.com/coupons/",
				CouponButtonSelector:   ".btn-clip, button.add-coupon, .coupon-btn:not(.added), .coupon-item__add, [data-testid='add-coupon']",
				CouponClippedIndicator: ".btn-clip.added, .coupon-btn.added, .coupon-item__added, [data-testid='added-coupon']",
				LoadMoreButtonSelector: ".btn-load-more, .load-more-coupons, button:contains('Load More')",
				CaptchaIndicators: append(append([]string(nil), defaultCaptchaIndicators...),
					"#challenge-running",
					"#challenge-form",
					".cf-browser-verification",
				),
				RateLimitIndicators: []string{
					"You are being rate limited",
					"Too many requests in a short time",
					"Rate limit exceeded",
				},
				SiteSpecificSettings: SiteSettings{
					ClickStrategy:    ClickEnhanced,
					Finder:           FinderWeis,
					AskRateLimitMode: true,
				},
			},
			"giant": {
				Name:                   "Giant Food",
				URL:                    "https://giantfood.com/savings/coupons/browse/",
				CouponButtonSelector:   "button.coupon-clip-btn:not(.is-clipped)",
				CouponClippedIndicator: "button.coupon-clip-btn.is-clipped",
				LoadMoreButtonSelector: ".load-more, #load-more, button.show-more, button:contains('Show More')",
			},
			"harris_teeter": {
				Name:                   "Harris Teeter",
				URL:                    "https://www.harristeeter.com/savings/cl/coupons/",
				CouponButtonSelector:   "button:contains('Clip'), button.kds-Button--primary:not([disabled])",
				CouponClippedIndicator: "button:contains('Unclip')",
				LoadMoreButtonSelector: "button.kds-Load-More, button.load-more, button:contains('Load More')",
				CaptchaIndicators:      append(append([]string(nil), defaultCaptchaIndicators...), "div.g-recaptcha"),
				SiteSpecificSettings: SiteSettings{
					RapidModeCompatible: true,
					MinDelayOverride:    ptr(0.1),
					MaxDelayOverride:    ptr(0.3),
					ClickStrategy:       ClickEnhanced,
					Finder:              FinderHarrisTeeter,
				},
			},
			"walmart": {
				Name:                   "Walmart",
				URL:                    "https://www.walmart.com/offer/all-offers",
				CouponButtonSelector:   "button:contains('Get this offer'), button.button--primary",
				CouponClippedIndicator: "button:contains('Offer claimed')",
				LoadMoreButtonSelector: "button.load-more-button, button.show-more, button:contains('Load More')",
				CaptchaIndicators:      append(append([]string(nil), defaultCaptchaIndicators...), "iframe[title*='Human verification challenge']"),
			},
		},
		Settings: DefaultSettings(),
		Browser: BrowserConfig{
			DebugAddress: "127.0.0.1",
			DebugPort:    9222,
			PageTimeoutS: 30,
			LaunchWaitS:  3,
		},
		Storage: StorageConfig{
			Driver:           "file",
			Path:             "coupon_progress.json",
			CommandTimeoutMS: 5000,
		},
		Observability: ObservabilityConfig{
			LogPath:       "coupon_clipper.log",
			LogLevel:      "info",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			Console:       true,
		},
	}
}

func DefaultSettings() Settings {
	return Settings{
		MaxRetries:                    5,
		MaxBackoffTime:                30,
		RandomDelayMin:                0.5,
		RandomDelayMax:                1.5,
		ScrollPauseTime:               0.8,
		ScrollIncrement:               500,
		LoadMoreMaxAttempts:           10,
		SlowStart:                     true,
		AccelerationThreshold:         3,
		AdaptiveDelay:                 true,
		EnableRateLimitDetection:      true,
		RateLimitThreshold:            3,
		RateLimitCheckMainContentOnly: true,
		RateLimitBackoffFactor:        1.5,
		BackoffJitterPct:              10,
		FastScroll:                    true,
		EnableRapidMode:               false,
		MaxRecoveryAttempts:           3,
		ConnectionCheckInterval:       5,
		RapidModeMinDelay:             0.05,
		RapidModeMaxDelay:             0.2,
	}
}

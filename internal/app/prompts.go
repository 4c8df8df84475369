package app

import (
	"context"
	"fmt"

	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/human"
)

type speedPreset struct {
	label    string
	min, max float64
}

var speedPresets = map[string]speedPreset{
	"1": {"Slow", 1.5, 3.0},
	"2": {"Medium", 0.5, 1.5},
	"3": {"Fast", 0.1, 0.5},
}

const (
	customMinDefault = 0.5
	customMaxDefault = 1.5
	customMinFloor   = 0.1
)

// askRateLimitMode спрашивает режим детекции rate limit для сайтов с ask_rate_limit_mode.
func (c *Cycle) askRateLimitMode(ctx context.Context) (Result, bool) {
	if !c.site.SiteSpecificSettings.AskRateLimitMode {
		return Result{}, false
	}

	c.prompter.Printf("\n%s may have issues with automatic rate limit detection.\n", c.site.DisplayName(c.key))
	c.prompter.Println("1. Enable automatic rate limit detection (default)")
	c.prompter.Println("2. Disable automatic rate limit detection")
	c.prompter.Println("3. Manual mode - ask before applying rate limits")

	choice, err := c.prompter.Choose(ctx, "\nSelect option (1-3, default: 1): ", []string{"1", "2", "3"}, "1")
	if err != nil {
		return c.fail(ctx, err), true
	}

	switch choice {
	case "2":
		c.rateLimitDetect = false
		c.prompter.Println("Automatic rate limit detection disabled.")
	case "3":
		c.rateLimitDetect, c.manualRateLimit = true, true
		c.prompter.Println("Manual rate limit confirmation enabled.")
	default:
		c.rateLimitDetect, c.manualRateLimit = true, false
		c.prompter.Println("Automatic rate limit detection enabled.")
	}
	return Result{}, false
}

// askSpeed выбирает окно задержки между кликами.
func (c *Cycle) askSpeed(ctx context.Context) (Result, bool) {
	compatible := c.site.SiteSpecificSettings.RapidModeCompatible

	c.prompter.Println("\nSelect clipping speed:")
	c.prompter.Println("1. Slow (safe, fewer rate limits)")
	c.prompter.Println("2. Medium (balanced)")
	c.prompter.Println("3. Fast (aggressive, may hit rate limits)")
	c.prompter.Println("4. Custom (specify your own timing)")

	valid := []string{"1", "2", "3", "4"}
	def := "2"
	if compatible {
		c.prompter.Printf("5. Ultra Fast (Rapid Mode - optimized for %s)\n", c.site.DisplayName(c.key))
		valid = append(valid, "5")
		if c.settings.EnableRapidMode {
			def = "5"
		}
	}

	answer, err := c.prompter.Ask(ctx, fmt.Sprintf("Select option (1-%d, default: %s): ", len(valid), def))
	if err != nil {
		return c.fail(ctx, err), true
	}
	if answer == "" {
		answer = def
	}

	c.rapid = false
	switch answer {
	case "4":
		lo, err := c.prompter.Float(ctx, "Enter minimum delay in seconds (default: 0.5): ", customMinDefault, customMinFloor)
		if err != nil {
			return c.fail(ctx, err), true
		}
		hi, err := c.prompter.Float(ctx, "Enter maximum delay in seconds (default: 1.5): ", customMaxDefault, lo)
		if err != nil {
			return c.fail(ctx, err), true
		}
		c.emu.Pacer.SetWindow(lo, hi)
		c.prompter.Printf("Custom timing set: %.2f-%.2f seconds.\n", lo, hi)
	case "5":
		if !compatible {
			c.setPreset("2")
			break
		}
		c.rapid = true
		c.emu.Pacer.SetRapid()
		c.prompter.Printf("Rapid mode enabled! Using ultra-fast timings optimized for %s.\n", c.site.DisplayName(c.key))
		c.prompter.Println("This mode skips certain checks for maximum speed.")
	default:
		c.setPreset(answer)
	}

	lo, hi := c.emu.Pacer.Window()
	c.logger.Info("Clipping speed selected", "min_delay", lo, "max_delay", hi, "rapid", c.rapid)
	return Result{}, false
}

// setPreset применяет пресет 1-3; неизвестный выбор: средняя скорость.
// Переопределения сайта имеют приоритет над пресетом.
func (c *Cycle) setPreset(choice string) {
	preset, ok := speedPresets[choice]
	if !ok {
		if choice != "" {
			c.prompter.Println("Invalid choice, using medium speed.")
		}
		preset = speedPresets["2"]
	}
	lo, hi := human.ApplyOverrides(c.site, preset.min, preset.max)
	c.emu.Pacer.SetWindow(lo, hi)
	c.prompter.Printf("%s clipping speed selected.\n", preset.label)
	if lo != preset.min || hi != preset.max {
		c.prompter.Printf("Applied %s-specific delays: %.2f-%.2fs\n", c.key, lo, hi)
	}
}

// askForButtons просит оператора указать кнопку, если автоматический поиск ничего не дал.
// Ctrl+C здесь означает пропуск сайта.
func (c *Cycle) askForButtons(ctx context.Context) ([]browser.Element, error) {
	c.prompter.Println(console.Banner(console.ToneWarn, "Automatic button detection failed. Would you like to:",
		"1. Tell me what to click (recommended)",
		"2. Skip this website",
	))

	choice, err := c.prompter.Choose(ctx, "Enter your choice (1-2, default: 1): ", []string{"1", "2"}, "1")
	if err != nil {
		return nil, c.skipOnInterrupt(err)
	}
	if choice == "2" {
		return nil, nil
	}

	c.prompter.Println("\nPlease look at the webpage and tell me what to click.")
	c.prompter.Println("1. Describe a CSS selector (e.g., 'button.clip-coupon')")
	c.prompter.Println("2. Describe text on the button (e.g., 'Clip Coupon')")
	how, err := c.prompter.Choose(ctx, "Enter your choice (1-2, default: 2): ", []string{"1", "2"}, "2")
	if err != nil {
		return nil, c.skipOnInterrupt(err)
	}

	var css, text string
	if how == "1" {
		css, err = c.prompter.Ask(ctx, "Enter the CSS selector: ")
	} else {
		text, err = c.prompter.Ask(ctx, "Enter the text on the button: ")
	}
	if err != nil {
		return nil, c.skipOnInterrupt(err)
	}
	if css == "" && text == "" {
		return nil, nil
	}

	buttons, err := c.finder.ByOperator(ctx, c.page, css, text)
	if err != nil {
		return nil, err
	}
	if len(buttons) == 0 {
		c.prompter.Println("No buttons found.")
		return nil, nil
	}
	c.logger.Info("Found buttons from operator input", "count", len(buttons), "selector", css, "text", text)
	return buttons, nil
}

func (c *Cycle) skipOnInterrupt(err error) error {
	if c.interruptedBy(err) {
		return nil
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"coupon-clipper/internal/app"
	"coupon-clipper/internal/browser"
	"coupon-clipper/internal/config"
	"coupon-clipper/internal/console"
	"coupon-clipper/internal/observability"
	"coupon-clipper/internal/storage/backend"
)

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flags.stateFile != "" {
		cfg.Storage.Path = flags.stateFile
	}
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}

	logger := observability.NewLogger(observability.Options{
		Path:       cfg.Observability.LogPath,
		Level:      cfg.Observability.LogLevel,
		MaxSizeMB:  cfg.Observability.LogMaxSizeMB,
		MaxBackups: cfg.Observability.LogMaxBackups,
		Console:    cfg.Observability.Console,
	})
	defer logger.Close()
	// Сторонний код, пишущий через slog по умолчанию, попадает в тот же лог
	slog.SetDefault(logger.Slog())

	// Запускаем мониторинг сигналов
	interrupts := app.NewInterrupts()
	ctx, cancel := app.WatchSignals(ctx, logger, interrupts)
	defer cancel()

	prompter := console.NewPrompter(os.Stdin, os.Stdout, interrupts.C())

	opts, err := browserOptions(ctx, cfg, prompter)
	if err != nil {
		return err
	}

	manager := browser.NewManager(opts, logger)
	if err := manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	store, err := backend.Open(cfg.Storage, logger)
	if err != nil {
		_ = manager.Close()
		return fmt.Errorf("failed to open progress store: %w", err)
	}

	runner := app.NewRunner(cfg, manager, store, prompter, interrupts, logger, app.RunnerOptions{Site: flags.site})
	return runner.Run(ctx)
}

// browserOptions собирает параметры запуска Chrome; режим и профиль спрашиваются, если не заданы.
func browserOptions(ctx context.Context, cfg *config.Config, prompter *console.Prompter) (browser.Options, error) {
	opts := browser.Options{
		ChromePath:          cfg.Browser.ChromePath,
		UserDataDir:         cfg.Browser.UserDataDir,
		DebugAddress:        cfg.GetDebugAddress(),
		DebugPort:           cfg.Browser.DebugPort,
		LaunchWait:          cfg.GetLaunchWait(),
		PageTimeout:         cfg.GetPageTimeout(),
		MaxRecoveryAttempts: cfg.Settings.MaxRecoveryAttempts,
	}
	if opts.ChromePath == "" {
		opts.ChromePath = browser.FindChromePath(runtime.GOOS)
	}

	mode, err := launchMode(ctx, prompter)
	if err != nil {
		return opts, err
	}
	opts.Mode = mode

	switch mode {
	case browser.ModeClean:
		opts.UserDataDir = browser.CleanUserDataDir()
	case browser.ModeDefault:
		if opts.UserDataDir == "" {
			opts.UserDataDir = browser.DefaultUserDataDir(runtime.GOOS)
		}
		if opts.ProfileDir, err = chooseProfile(ctx, prompter, opts.UserDataDir); err != nil {
			return opts, err
		}
	}

	if mode != browser.ModeAttach && opts.ChromePath == "" {
		return opts, fmt.Errorf("chrome executable not found, set browser.chrome_path in %s", flags.configPath)
	}
	return opts, nil
}

func launchMode(ctx context.Context, prompter *console.Prompter) (browser.LaunchMode, error) {
	if flags.mode != "" {
		return browser.ParseLaunchMode(flags.mode)
	}

	prompter.Println("\nHow should the browser be started?")
	prompter.Println("1. Use your Chrome profile (saved logins)")
	prompter.Println("2. Use a clean Chrome profile")
	prompter.Println("3. Attach to a Chrome already running with --remote-debugging-port")
	choice, err := prompter.Choose(ctx, "Select option (1-3, default: 1): ", []string{"1", "2", "3"}, "1")
	if err != nil {
		return "", err
	}
	switch choice {
	case "2":
		return browser.ModeClean, nil
	case "3":
		return browser.ModeAttach, nil
	}
	return browser.ModeDefault, nil
}

func chooseProfile(ctx context.Context, prompter *console.Prompter, userDataDir string) (string, error) {
	profiles := browser.ListProfiles(userDataDir)
	if len(profiles) == 1 {
		return profiles[0], nil
	}

	prompter.Println("\nAvailable Chrome profiles:")
	valid := make([]string, 0, len(profiles))
	for i, name := range profiles {
		prompter.Printf("%d. %s\n", i+1, name)
		valid = append(valid, strconv.Itoa(i+1))
	}
	choice, err := prompter.Choose(ctx, fmt.Sprintf("Select profile (1-%d, default: 1): ", len(profiles)), valid, "1")
	if err != nil {
		return "", err
	}
	idx, _ := strconv.Atoi(choice)
	return profiles[idx-1], nil
}

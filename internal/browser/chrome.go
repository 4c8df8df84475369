package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// chromeCandidates возвращает известные пути установки Chrome для ОС.
func chromeCandidates(goos string) []string {
	home, _ := os.UserHomeDir()
	switch goos {
	case "windows":
		return []string{
			filepath.Join(envOr("PROGRAMFILES", `C:\Program Files`), `Google\Chrome\Application\chrome.exe`),
			filepath.Join(envOr("PROGRAMFILES(X86)", `C:\Program Files (x86)`), `Google\Chrome\Application\chrome.exe`),
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chrome",
			"/snap/bin/chromium",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	}
}

// FindChromePath ищет исполняемый файл Chrome. Пустая строка: не найден.
func FindChromePath(goos string) string {
	for _, path := range chromeCandidates(goos) {
		if fileExists(path) {
			return path
		}
	}
	if goos != "windows" && goos != "darwin" {
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
			if path, err := exec.LookPath(name); err == nil {
				return path
			}
		}
	}
	return ""
}

// DefaultUserDataDir: каталог профилей Chrome пользователя.
func DefaultUserDataDir(goos string) string {
	home, _ := os.UserHomeDir()
	switch goos {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\User Data`)
	case "darwin":
		return filepath.Join(home, "Library/Application Support/Google/Chrome")
	default:
		return filepath.Join(home, ".config/google-chrome")
	}
}

// CleanUserDataDir: отдельный профиль без сохранённых логинов.
func CleanUserDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "ChromeDebugProfile")
}

// ListProfiles возвращает "Default" и все каталоги "Profile N".
func ListProfiles(userDataDir string) []string {
	profiles := []string{"Default"}

	entries, err := os.ReadDir(userDataDir)
	if err != nil {
		return profiles
	}

	var extra []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "Profile ") {
			extra = append(extra, entry.Name())
		}
	}
	sort.Strings(extra)
	return append(profiles, extra...)
}

// ProfileInUse проверяет, запущен ли уже Chrome с этим каталогом профилей.
func ProfileInUse(ctx context.Context, userDataDir string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.Contains(strings.ToLower(name), "chrom") {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, userDataDir) {
			return true, nil
		}
	}
	return false, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

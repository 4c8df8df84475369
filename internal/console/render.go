package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	accent  = lipgloss.Color("39")
	warning = lipgloss.Color("214")
	danger  = lipgloss.Color("203")
)

type Tone int

const (
	ToneInfo Tone = iota
	ToneWarn
	ToneError
)

// Banner рисует рамку с заголовком и строками.
func Banner(tone Tone, title string, lines ...string) string {
	color := accent
	switch tone {
	case ToneWarn:
		color = warning
	case ToneError:
		color = danger
	}

	var content strings.Builder
	content.WriteString(lipgloss.NewStyle().Bold(true).Foreground(color).Render(title))
	for _, line := range lines {
		content.WriteString("\n")
		content.WriteString(line)
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)

	return "\n" + boxStyle.Render(content.String()) + "\n"
}

type SiteRow struct {
	Index    int
	Key      string
	Name     string
	URL      string
	Rapid    bool
	Progress string
}

// SiteTable: главное меню выбора сайта.
func SiteTable(rows []SiteRow) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Website", "Key", "Rapid", "Saved progress", "URL"})
	for _, r := range rows {
		rapid := ""
		if r.Rapid {
			rapid = "yes"
		}
		t.AppendRow(table.Row{r.Index, r.Name, r.Key, rapid, r.Progress, r.URL})
	}
	t.AppendFooter(table.Row{0, "Exit", "", "", "", ""})
	t.SetStyle(table.StyleRounded)
	return t.Render()
}

type SummaryRow struct {
	Site           string
	Found          int
	Clipped        int
	AlreadyClipped int
	Failed         int
	Duration       time.Duration
	Stopped        string
}

// SummaryTable: итоги по сайтам за запуск.
func SummaryTable(rows []SummaryRow) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Website", "Found", "Clipped", "Already clipped", "Failed", "Time", "Stopped"})

	var clipped, already, failed int
	for _, r := range rows {
		t.AppendRow(table.Row{r.Site, r.Found, r.Clipped, r.AlreadyClipped, r.Failed, r.Duration.Round(time.Second), r.Stopped})
		clipped += r.Clipped
		already += r.AlreadyClipped
		failed += r.Failed
	}
	t.AppendFooter(table.Row{"Total", "", clipped, already, failed, "", ""})
	t.SetStyle(table.StyleRounded)
	return t.Render()
}

// Progress форматирует сохранённое состояние для таблицы сайтов.
func Progress(clipped, position int, updated time.Time) string {
	if updated.IsZero() {
		return ""
	}
	stamp := updated.Local().Format("Jan 2 15:04")
	if position <= 0 {
		return fmt.Sprintf("%d clipped (%s)", clipped, stamp)
	}
	return fmt.Sprintf("%d clipped at #%d (%s)", clipped, position, stamp)
}

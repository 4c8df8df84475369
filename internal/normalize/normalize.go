package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var spacesRe = regexp.MustCompile(`\s+`)

// hiddenSelector: элементы, текст которых оператор не видит.
const hiddenSelector = "script, style, noscript, template, [hidden], [aria-hidden='true'], [style*='display:none'], [style*='display: none'], [style*='visibility:hidden'], [style*='visibility: hidden']"

// ParseDocument разбирает снимок страницы.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// VisibleText возвращает текст выборки без скрытых блоков, в нижнем регистре и со схлопнутыми пробелами.
func VisibleText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find(hiddenSelector).Remove()
	return Clean(strings.ToLower(clone.Text()))
}

// IsHidden проверяет, скрыт ли элемент им самим или одним из предков.
func IsHidden(sel *goquery.Selection) bool {
	for node := sel.First(); node.Length() > 0; node = node.Parent() {
		if node.Is(hiddenSelector) {
			return true
		}
		if goquery.NodeName(node) == "body" {
			break
		}
	}
	return false
}

// Clean заменяет NBSP и схлопывает пробелы.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\u00A0", " ")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ContainsAny возвращает первую найденную фразу.
func ContainsAny(text string, phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// Truncate обрезает текст до maxChars рун для логов и таблиц.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	// Находим последний пробел перед лимитом
	truncated := string(runes[:maxChars])
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > 0 {
		return truncated[:lastSpace] + "…"
	}

	return truncated + "…"
}

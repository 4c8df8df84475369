package checksum

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// CouponFingerprint генерирует SHA256 отпечаток позиции в списке купонов для маркера прогресса.
// Формула: SHA256(site|text|index); текст без регистра и лишних пробелов.
func (g *Generator) CouponFingerprint(site, text string, index int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")

	// Конкатенируем: site|text|index
	content := fmt.Sprintf("%s|%s|%d", site, normalized, index)

	hash := sha256.Sum256([]byte(content))

	return fmt.Sprintf("%x", hash)
}

// VerifyFingerprint проверяет соответствие отпечатка
func (g *Generator) VerifyFingerprint(expected, site, text string, index int) bool {
	return g.CouponFingerprint(site, text, index) == expected
}

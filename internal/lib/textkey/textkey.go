// Package textkey приводит свободный текст категорий и городов к каноническому
// ключу сравнения. Ключ используется только для сравнения на равенство и
// никогда не сохраняется как исходное значение.
package textkey

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spacedDash = regexp.MustCompile(`\s*-\s*`)

// Normalize возвращает нормализованный ключ: без диакритики, с ASCII-дефисом
// вместо любых вариантов тире, с одним пробелом между словами и " - " вокруг
// дефиса, в нижнем регистре. Функция чистая и идемпотентная.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	// Chain хранит состояние, поэтому собирается на каждый вызов.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	s = strings.Map(dashToHyphen, s)
	s = collapseSpaces(s)
	s = spacedDash.ReplaceAllString(s, " - ")
	return collapseSpaces(s)
}

func dashToHyphen(r rune) rune {
	switch r {
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015',
		'\u2212', '\ufe58', '\ufe63', '\uff0d':
		return '-'
	}
	return r
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package util

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// TruncateRunes — безопасное усечение по рунам
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// SafeFilename оставляет от присланного имени только базовое имя файла.
// Пустая строка значит, что имя непригодно.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	name = strings.ReplaceAll(name, "\x00", "")
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

// HasExt сравнивает расширение без учёта регистра
func HasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

package pdf

import (
	"fmt"
	"math"
	"os"
	"strings"

	rscpdf "rsc.io/pdf"
)

// Page — текст одной страницы PDF, номера страниц с 1.
type Page struct {
	Number int
	Text   string
}

// ExtractPages читает PDF постранично. Страницы без текста пропускаются.
func ExtractPages(path string) (pages []Page, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// rsc.io/pdf паникует на битых потоках
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := rscpdf.NewReader(f, fi.Size())
	if err != nil {
		return nil, err
	}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt := Sanitize(pageText(p.Content().Text))
		if txt == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: txt})
	}
	return pages, nil
}

// pageText собирает строки из отдельных глифов по их координатам.
func pageText(texts []rscpdf.Text) string {
	var sb strings.Builder
	var prev *rscpdf.Text
	for i := range texts {
		t := &texts[i]
		if prev != nil {
			size := math.Max(prev.FontSize, 1)
			dy := math.Abs(t.Y - prev.Y)
			switch {
			case dy > size*1.8:
				sb.WriteString("\n\n")
			case dy > size*0.5:
				sb.WriteString("\n")
			case t.X-(prev.X+prev.W) > math.Max(t.FontSize, 1)*0.15:
				sb.WriteString(" ")
			}
		}
		sb.WriteString(t.S)
		prev = t
	}
	return sb.String()
}

// Sanitize убирает нулевые байты и лишние пробелы, сохраняя переводы строк
// и пустые строки между абзацами.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

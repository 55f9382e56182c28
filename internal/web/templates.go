package web

import (
	"bytes"
	"html/template"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/edvart/property-listings/internal/store"
)

// LoadTemplates loads all templates from the filesystem.
func LoadTemplates(templatesFS fs.FS) (*template.Template, error) {
	funcs := templateFuncs()

	tmpl := template.New("").Funcs(funcs)

	// Parse all template files
	patterns := []string{
		"layouts/*.html",
		"pages/*.html",
		"partials/*.html",
	}

	for _, pattern := range patterns {
		matches, err := fs.Glob(templatesFS, pattern)
		if err != nil {
			return nil, err
		}

		for _, match := range matches {
			content, err := fs.ReadFile(templatesFS, match)
			if err != nil {
				return nil, err
			}

			_, err = tmpl.Parse(string(content))
			if err != nil {
				return nil, err
			}
		}
	}

	return tmpl, nil
}

// LoadTemplatesFromDir loads templates from a directory on the filesystem.
func LoadTemplatesFromDir(dir string) (*template.Template, error) {
	funcs := templateFuncs()

	tmpl := template.New("").Funcs(funcs)

	// Walk the templates directory and parse all .html files
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".html" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		_, err = tmpl.Parse(string(content))
		return err
	})

	if err != nil {
		return nil, err
	}

	return tmpl, nil
}

// templateFuncs returns the common template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"statusLabel": func(s store.Status) string {
			return s.Label()
		},
		"statusClass": func(s store.Status) string {
			return "status-" + string(s)
		},
		"markdown": renderMarkdown,
		"str": func(p *string) string {
			if p == nil {
				return ""
			}
			return *p
		},
		"num": func(p *float64) string {
			if p == nil {
				return ""
			}
			return strconv.FormatFloat(*p, 'f', -1, 64)
		},
		"price": formatPrice,
		"isSelected": func(a, b store.Status) bool {
			return a == b
		},
	}
}

// renderMarkdown renders a description. Raw HTML in the source is dropped
// by goldmark's default renderer.
func renderMarkdown(p *string) template.HTML {
	if p == nil || *p == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(*p), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(*p))
	}
	return template.HTML(buf.String())
}

// formatPrice prints an amount with '.' as thousands separator, the way
// prices are written on the site.
func formatPrice(currency *string, amount *float64) string {
	if amount == nil || math.IsNaN(*amount) || math.IsInf(*amount, 0) {
		return "Consultar"
	}
	whole := strconv.FormatFloat(math.Trunc(*amount), 'f', 0, 64)

	var b strings.Builder
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}

	out := b.String()
	if neg {
		out = "-" + out
	}
	if currency != nil && *currency != "" {
		out = *currency + " " + out
	}
	return out
}

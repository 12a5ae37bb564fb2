package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxSlugLen = 50

// slug turns a query into a lowercase, dash separated file name part.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if runes := []rune(out); len(runes) > maxSlugLen {
		out = strings.TrimRight(string(runes[:maxSlugLen]), "-")
	}
	if out == "" {
		return "research"
	}
	return out
}

func writeReport(dir, query, report string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, "report_"+slug(query)+".md")
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

package documents

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/ledgerclaw/internal/types"
)

// DefaultPreviewLimit bounds previews handed to the matcher and the model.
const DefaultPreviewLimit = 4000

// Preview extracts a text preview of an upload. Binary formats such as PDF and
// images yield "" and are left to the extractor.
func Preview(file *types.UploadedFile, content []byte, limit int) (string, error) {
	if file == nil || len(content) == 0 {
		return "", nil
	}
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	var text string
	switch kind(file) {
	case "html":
		md, err := htmltomarkdown.ConvertString(string(content))
		if err != nil {
			return "", fmt.Errorf("convert html: %w", err)
		}
		text = md
	case "text":
		if !utf8.Valid(content) {
			return "", nil
		}
		text = string(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")))
	default:
		return "", nil
	}

	text = strings.TrimSpace(text)
	if len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text, nil
}

func kind(file *types.UploadedFile) string {
	ct := strings.ToLower(file.ContentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return "html"
	case strings.HasPrefix(ct, "text/"), ct == "application/json", ct == "application/xml":
		return "text"
	}
	switch strings.ToLower(filepath.Ext(file.FileName)) {
	case ".html", ".htm":
		return "html"
	case ".txt", ".csv", ".tsv", ".json", ".xml", ".md":
		return "text"
	}
	return ""
}

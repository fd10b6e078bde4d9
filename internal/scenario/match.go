package scenario

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
)

// FileInput is what the file matcher sees of an upload.
type FileInput struct {
	FileName    string
	ContentType string
	Preview     string
	// Analysis is the parsed document, used by fieldEquals filters.
	Analysis json.RawMessage
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

// compile caches patterns; invalid patterns never match.
func compile(pattern string) *regexp.Regexp {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	regexCache[pattern] = re
	return re
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func regexAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if re := compile(p); re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchesMessage reports whether m selects a free-text message.
func (m Matcher) MatchesMessage(text string) bool {
	if !m.appliesTo(AppliesMessage) {
		return false
	}
	if containsAny(text, m.ExcludeKeywords) {
		return false
	}
	return m.Always || containsAny(text, m.IncludeKeywords) || regexAny(text, m.RegexPatterns)
}

// MatchesFile reports whether m selects an uploaded file.
func (m Matcher) MatchesFile(in FileInput) bool {
	if !m.appliesTo(AppliesFile) {
		return false
	}
	text := in.FileName + "\n" + in.Preview
	if containsAny(text, m.ExcludeKeywords) {
		return false
	}
	if len(m.MimeTypes) > 0 && !mimeAllowed(in.ContentType, m.MimeTypes) {
		return false
	}
	if m.FieldEquals != nil && !fieldEquals(in.Analysis, m.FieldEquals) {
		return false
	}
	return m.Always ||
		containsAny(text, m.IncludeKeywords) ||
		regexAny(text, m.RegexPatterns) ||
		containsAny(in.FileName, m.FileNameContains) ||
		containsAny(in.Preview, m.ContentContains)
}

func mimeAllowed(contentType string, allowed []string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" {
		return false
	}
	for _, pattern := range allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if ok, _ := path.Match(pattern, ct); ok {
			return true
		}
	}
	return false
}

func fieldEquals(analysis json.RawMessage, f *FieldFilter) bool {
	if len(analysis) == 0 || f.Field == "" {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(analysis, &fields); err != nil {
		return false
	}
	v, ok := fields[f.Field]
	if !ok || v == nil {
		return false
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", x), "0"), ".")
	case bool:
		s = fmt.Sprint(x)
	default:
		return false
	}
	return strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(f.Equals))
}

// MatchMessage returns the active scenarios whose message rules select text,
// in catalog order.
func (c *Catalog) MatchMessage(text string) []*Definition {
	var out []*Definition
	for _, d := range c.Active() {
		if d.Metadata.Matcher.MatchesMessage(text) {
			out = append(out, d)
		}
	}
	return out
}

// MatchFile returns the active scenarios whose file rules select in, in catalog order.
func (c *Catalog) MatchFile(in FileInput) []*Definition {
	var out []*Definition
	for _, d := range c.Active() {
		if d.Metadata.Matcher.MatchesFile(in) {
			out = append(out, d)
		}
	}
	return out
}

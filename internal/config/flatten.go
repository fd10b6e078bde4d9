package config

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// masker hides a secret value for display.
type masker func(string) string

// secrets maps dot-keys to the way their values are hidden. Tokens keep a
// short suffix so two keys can be told apart; connection strings keep
// everything except the password.
var secrets = map[string]masker{
	"llm.api_key":    maskTail,
	"telegram.token": maskTail,
	"database_url":   maskDSN,
}

// IsSecretKey reports whether the dot-key holds a credential.
func IsSecretKey(key string) bool {
	_, ok := secrets[key]
	return ok
}

// Flatten turns {"llm": {"model": "x"}} into {"llm.model": "x"}. Empty
// sections disappear.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A dot-key that runs through a scalar
// replaces the scalar with a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range SortedKeys(flat) {
		parts := strings.Split(k, ".")
		section := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := section[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				section[part] = next
			}
			section = next
		}
		section[parts[len(parts)-1]] = flat[k]
	}
	return out
}

// SortedKeys returns the keys of flat in lexical order.
func SortedKeys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaskSecrets returns a copy of flat with every non-empty credential hidden.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		mask, ok := secrets[k]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			out[k] = mask(s)
		}
	}
	return out
}

func maskTail(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)('[^']*'|\S+)`)

// maskDSN hides the password of a URL or key=value connection string. A
// string that is neither falls back to maskTail.
func maskDSN(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
		return u.String()
	}
	if dsnPassword.MatchString(s) {
		return dsnPassword.ReplaceAllString(s, "${1}***")
	}
	return maskTail(s)
}

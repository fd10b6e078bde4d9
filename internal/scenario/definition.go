// Package scenario holds the per-company catalog of business procedures and
// decides which of them applies to a message or an uploaded file.
package scenario

import (
	"sort"
	"time"
)

// AppliesTo values for a matcher.
const (
	AppliesMessage = "message"
	AppliesFile    = "file"
	AppliesBoth    = "both"
)

// Definition is one catalog entry.
type Definition struct {
	Key          string    `json:"scenarioKey"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	Priority     int       `json:"priority"`
	IsActive     bool      `json:"isActive"`
	ToolHints    []string  `json:"toolHints,omitempty"`
	Metadata     Metadata  `json:"metadata"`
	UpdatedAt    time.Time `json:"updatedAt"`
	// Ephemeral scenarios are synthesized in memory and never persisted.
	Ephemeral bool `json:"-"`
}

// Metadata carries the matcher rules and extra prompt context.
type Metadata struct {
	Matcher         Matcher          `json:"matcher"`
	ContextMessages []ContextMessage `json:"contextMessages,omitempty"`
}

// ContextMessage is a canned message prepended to the conversation.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Matcher declares when a scenario applies. Keyword checks are case-insensitive.
type Matcher struct {
	AppliesTo        string       `json:"appliesTo,omitempty"`
	Always           bool         `json:"always,omitempty"`
	IncludeKeywords  []string     `json:"includeKeywords,omitempty"`
	ExcludeKeywords  []string     `json:"excludeKeywords,omitempty"`
	RegexPatterns    []string     `json:"regexPatterns,omitempty"`
	MimeTypes        []string     `json:"mimeTypes,omitempty"`
	FileNameContains []string     `json:"fileNameContains,omitempty"`
	ContentContains  []string     `json:"contentContains,omitempty"`
	FieldEquals      *FieldFilter `json:"fieldEquals,omitempty"`
}

// FieldFilter compares a top-level field of the parsed document.
type FieldFilter struct {
	Field  string `json:"field"`
	Equals string `json:"equals"`
}

func (m Matcher) appliesTo(axis string) bool {
	switch m.AppliesTo {
	case "", AppliesBoth:
		return true
	default:
		return m.AppliesTo == axis
	}
}

// Catalog is an immutable, ordered set of definitions.
type Catalog struct {
	defs  []*Definition
	byKey map[string]*Definition
}

// NewCatalog orders defs by ascending priority, most recently updated first on ties.
func NewCatalog(defs []*Definition) *Catalog {
	sorted := append([]*Definition(nil), defs...)
	Sort(sorted)
	c := &Catalog{defs: sorted, byKey: make(map[string]*Definition, len(sorted))}
	for _, d := range sorted {
		c.byKey[d.Key] = d
	}
	return c
}

// Sort applies catalog ordering in place.
func Sort(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority < defs[j].Priority
		}
		return defs[i].UpdatedAt.After(defs[j].UpdatedAt)
	})
}

// All returns every definition in catalog order.
func (c *Catalog) All() []*Definition {
	if c == nil {
		return nil
	}
	return append([]*Definition(nil), c.defs...)
}

// Active returns the active definitions in catalog order.
func (c *Catalog) Active() []*Definition {
	if c == nil {
		return nil
	}
	var out []*Definition
	for _, d := range c.defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

// Get looks a definition up by key.
func (c *Catalog) Get(key string) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.byKey[key]
	return d, ok
}

// Len reports the number of definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// Package planner partitions a batch of uploaded documents into task groups,
// one per scenario and document session.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// Document is one uploaded file as the planner sees it.
type Document struct {
	FileID            types.FileID
	DocumentSessionID types.DocumentSessionID
	Label             string
	FileName          string
	SuggestedScenario string
	Preview           string
}

// Group is one task: a scenario applied to one document session.
type Group struct {
	ScenarioKey       string                  `json:"scenarioKey"`
	DocumentSessionID types.DocumentSessionID `json:"documentSessionId"`
	DocumentIDs       []types.FileID          `json:"documentIds"`
	Reason            string                  `json:"reason,omitempty"`
	MessageOverride   string                  `json:"messageOverride,omitempty"`
}

// Plan is the planner output. Suppressed documents were excluded by a focus
// filter; Unassigned documents could not be placed and must be surfaced.
type Plan struct {
	Groups     []Group
	Unassigned []types.FileID
	Suppressed []types.FileID
	UsedModel  bool
}

// Request is one planning call.
type Request struct {
	Documents []Document
	Catalog   *scenario.Catalog
	// Focus narrows the working set to one document session.
	Focus types.DocumentSessionID
	Text  string
}

// Planner groups documents. A nil provider disables the model path.
type Planner struct {
	provider llm.Provider
	logger   *zap.Logger
}

// New creates a Planner.
func New(provider llm.Provider, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{provider: provider, logger: logger}
}

// Plan partitions req.Documents.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	plan := &Plan{}
	working := make([]Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.DocumentSessionID == "" {
			d.DocumentSessionID = types.DocumentSessionFor(d.FileID)
		}
		if req.Focus != "" && d.DocumentSessionID != req.Focus {
			plan.Suppressed = append(plan.Suppressed, d.FileID)
			continue
		}
		working = append(working, d)
	}
	if len(working) == 0 {
		return plan, nil
	}

	if allSuggested(working, req.Catalog) {
		plan.Groups = groupBySuggestion(working)
		return plan, nil
	}

	if p.provider == nil {
		p.degrade(plan, working, req.Catalog)
		return plan, nil
	}
	proposed, err := p.ask(ctx, req, working)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Warn("model planning failed, grouping by suggestion", zap.Error(err))
		p.degrade(plan, working, req.Catalog)
		return plan, nil
	}
	plan.UsedModel = true
	p.apply(plan, working, req.Catalog, proposed)
	return plan, nil
}

func validKey(catalog *scenario.Catalog, key string) bool {
	if catalog == nil || key == "" {
		return false
	}
	d, ok := catalog.Get(key)
	return ok && d.IsActive
}

// allSuggested reports whether the shortcut applies: every document carries
// a suggestion that exists in the catalog.
func allSuggested(docs []Document, catalog *scenario.Catalog) bool {
	for _, d := range docs {
		if !validKey(catalog, d.SuggestedScenario) {
			return false
		}
	}
	return true
}

type groupKey struct {
	scenario   string
	docSession types.DocumentSessionID
}

// groupBySuggestion groups in first-seen order.
func groupBySuggestion(docs []Document) []Group {
	var groups []Group
	index := make(map[groupKey]int)
	for _, d := range docs {
		k := groupKey{d.SuggestedScenario, d.DocumentSessionID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{
				ScenarioKey:       d.SuggestedScenario,
				DocumentSessionID: d.DocumentSessionID,
				Reason:            "suggested at upload",
			})
		}
		groups[i].DocumentIDs = append(groups[i].DocumentIDs, d.FileID)
	}
	return groups
}

func (p *Planner) degrade(plan *Plan, docs []Document, catalog *scenario.Catalog) {
	var placed []Document
	for _, d := range docs {
		if validKey(catalog, d.SuggestedScenario) {
			placed = append(placed, d)
		} else {
			plan.Unassigned = append(plan.Unassigned, d.FileID)
		}
	}
	plan.Groups = groupBySuggestion(placed)
}

type modelPlan struct {
	Groups []struct {
		ScenarioKey     string   `json:"scenarioKey"`
		DocumentIDs     []string `json:"documentIds"`
		Reason          string   `json:"reason"`
		MessageOverride string   `json:"messageOverride"`
	} `json:"groups"`
	Unassigned []string `json:"unassigned"`
}

const planPrompt = `You plan accounting work for a batch of uploaded documents.
Assign each document to exactly one scenario from the list. Documents that belong to no scenario go in "unassigned".
Answer with JSON only: {"groups":[{"scenarioKey":"...","documentIds":["..."],"reason":"...","messageOverride":"optional instruction for this group"}],"unassigned":["..."]}`

func (p *Planner) ask(ctx context.Context, req Request, docs []Document) (*modelPlan, error) {
	var b strings.Builder
	b.WriteString("Scenarios:\n")
	if req.Catalog != nil {
		for _, d := range req.Catalog.Active() {
			fmt.Fprintf(&b, "- %s: %s\n", d.Key, d.Title)
		}
	}
	b.WriteString("\nDocuments:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- id=%s document=%s", d.FileID, d.DocumentSessionID)
		if d.Label != "" {
			fmt.Fprintf(&b, " label=%s", d.Label)
		}
		if d.FileName != "" {
			fmt.Fprintf(&b, " name=%q", d.FileName)
		}
		if d.SuggestedScenario != "" {
			fmt.Fprintf(&b, " suggested=%s", d.SuggestedScenario)
		}
		b.WriteByte('\n')
		if d.Preview != "" {
			fmt.Fprintf(&b, "  preview: %s\n", truncate(d.Preview, 400))
		}
	}
	if req.Text != "" {
		fmt.Fprintf(&b, "\nUser message: %s\n", req.Text)
	}

	resp, err := llm.Ask(ctx, p.provider, planPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("plan task groups: %w", err)
	}
	var out modelPlan
	if err := llm.DecodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &out, nil
}

// apply turns the model plan into groups. Groups spanning several document
// sessions are split, unknown scenario keys and unplaced documents become
// unassigned, and a document claimed twice stays in its first group.
func (p *Planner) apply(plan *Plan, docs []Document, catalog *scenario.Catalog, proposed *modelPlan) {
	byID := make(map[types.FileID]Document, len(docs))
	for _, d := range docs {
		byID[d.FileID] = d
	}
	placed := make(map[types.FileID]bool)
	index := make(map[groupKey]int)

	for _, g := range proposed.Groups {
		key := strings.TrimSpace(g.ScenarioKey)
		if !validKey(catalog, key) {
			p.logger.Debug("planner dropped unknown scenario", zap.String("scenario", key))
			continue
		}
		for _, raw := range g.DocumentIDs {
			id := types.FileID(strings.TrimSpace(raw))
			d, ok := byID[id]
			if !ok || placed[id] {
				continue
			}
			placed[id] = true
			k := groupKey{key, d.DocumentSessionID}
			i, seen := index[k]
			if !seen {
				i = len(plan.Groups)
				index[k] = i
				plan.Groups = append(plan.Groups, Group{
					ScenarioKey:       key,
					DocumentSessionID: d.DocumentSessionID,
					Reason:            g.Reason,
					MessageOverride:   g.MessageOverride,
				})
			}
			plan.Groups[i].DocumentIDs = append(plan.Groups[i].DocumentIDs, id)
		}
	}
	for _, d := range docs {
		if !placed[d.FileID] {
			plan.Unassigned = append(plan.Unassigned, d.FileID)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

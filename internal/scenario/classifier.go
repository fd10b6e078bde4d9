package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/ledgerclaw/pkg/llm"
)

// Candidate is one ranked guess from a classifier.
type Candidate struct {
	Key        string  `json:"scenarioKey"`
	Confidence float64 `json:"confidence"`
}

// Classification is the model's pick plus its runners-up.
type Classification struct {
	Key          string      `json:"scenarioKey"`
	Confidence   float64     `json:"confidence"`
	Reason       string      `json:"reason,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// ClassifyInput is either a message or a file.
type ClassifyInput struct {
	Text string
	File *FileInput
}

// Classifier picks a scenario from candidates when no rule matched.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput, candidates []*Definition) (*Classification, error)
}

// ModelClassifier asks the reasoning model for a JSON classification.
type ModelClassifier struct {
	provider llm.Provider
}

// NewModelClassifier returns a classifier backed by provider.
func NewModelClassifier(provider llm.Provider) *ModelClassifier {
	return &ModelClassifier{provider: provider}
}

const classifyPrompt = `You route accounting requests to business scenarios.
Pick the single best scenario for the input from the list below.
Answer with JSON only: {"scenarioKey": "...", "confidence": 0.0-1.0, "reason": "...", "alternatives": [{"scenarioKey": "...", "confidence": 0.0}]}
Use only keys from the list.`

// Classify sends the candidate list and the input to the model.
func (m *ModelClassifier) Classify(ctx context.Context, in ClassifyInput, candidates []*Definition) (*Classification, error) {
	var b strings.Builder
	b.WriteString("Scenarios:\n")
	for _, d := range candidates {
		fmt.Fprintf(&b, "- %s: %s", d.Key, d.Title)
		if d.Description != "" {
			fmt.Fprintf(&b, " (%s)", d.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nInput:\n")
	if in.File != nil {
		fmt.Fprintf(&b, "file name: %s\ncontent type: %s\n", in.File.FileName, in.File.ContentType)
		if in.File.Preview != "" {
			fmt.Fprintf(&b, "preview:\n%s\n", in.File.Preview)
		}
		if len(in.File.Analysis) > 0 {
			fmt.Fprintf(&b, "extracted fields: %s\n", in.File.Analysis)
		}
	}
	if in.Text != "" {
		fmt.Fprintf(&b, "message: %s\n", in.Text)
	}

	resp, err := llm.Ask(ctx, m.provider, classifyPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("classify scenario: %w", err)
	}

	var out Classification
	if err := llm.DecodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	out.Key = strings.TrimSpace(out.Key)
	return &out, nil
}

// StaticClassifier always answers with the same classification.
type StaticClassifier Classification

func (s StaticClassifier) Classify(context.Context, ClassifyInput, []*Definition) (*Classification, error) {
	c := Classification(s)
	return &c, nil
}

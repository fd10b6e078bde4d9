package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/types"
)

// DefaultThreshold is the confidence at which a classification auto-selects.
const DefaultThreshold = 0.90

// SelectDetailPrefix marks scenario confirmation questions.
const SelectDetailPrefix = "scenario_select:"

// SalesOrderKey is the key of the sales-order scenario, catalogued or synthesized.
const SalesOrderKey = "sales.order"

var salesOrderTriggers = []string{"受注登録", "受注", "create a sales order", "sales order", "创建订单", "销售订单"}

// RouteInput is the request being routed.
type RouteInput struct {
	Text string
	// ScenarioKey forces a catalog entry when it exists.
	ScenarioKey string
	File        *FileInput
}

// Decision is the routing result. Exactly one of Scenarios or Clarification
// is set when something was decided.
type Decision struct {
	Scenarios     []*Definition
	Forced        bool
	Classified    bool
	Confidence    float64
	Clarification *types.ClarificationRequest
}

// Primary returns the first selected scenario, or nil.
func (d *Decision) Primary() *Definition {
	if d == nil || len(d.Scenarios) == 0 {
		return nil
	}
	return d.Scenarios[0]
}

// Router applies forced overrides, rules, then the model fallback.
type Router struct {
	classifier Classifier
	threshold  float64
	logger     *zap.Logger
}

// NewRouter creates a Router. A nil classifier disables the model fallback.
func NewRouter(classifier Classifier, threshold float64, logger *zap.Logger) *Router {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{classifier: classifier, threshold: threshold, logger: logger}
}

// Threshold returns the auto-select confidence.
func (r *Router) Threshold() float64 {
	return r.threshold
}

// Route picks the scenarios for in.
func (r *Router) Route(ctx context.Context, catalog *Catalog, in RouteInput) (*Decision, error) {
	if key := strings.TrimSpace(in.ScenarioKey); key != "" {
		if d, ok := catalog.Get(key); ok {
			return &Decision{Scenarios: []*Definition{d}, Forced: true, Confidence: 1}, nil
		}
		r.logger.Warn("ignoring unknown forced scenario", zap.String("scenario", key))
	}

	if in.File == nil && IsSalesOrderRequest(in.Text) {
		return &Decision{Scenarios: []*Definition{SalesOrder(catalog)}, Forced: true, Confidence: 1}, nil
	}

	var matched []*Definition
	if in.File != nil {
		matched = catalog.MatchFile(*in.File)
	} else {
		matched = catalog.MatchMessage(in.Text)
	}
	if len(matched) > 0 {
		return &Decision{Scenarios: matched, Confidence: 1}, nil
	}

	return r.classify(ctx, catalog, in)
}

func (r *Router) classify(ctx context.Context, catalog *Catalog, in RouteInput) (*Decision, error) {
	active := catalog.Active()
	if r.classifier == nil || len(active) == 0 {
		return &Decision{}, nil
	}

	result, err := r.classifier.Classify(ctx, ClassifyInput{Text: in.Text, File: in.File}, active)
	if err != nil {
		return nil, err
	}

	chosen := findActive(active, result.Key)
	if chosen == nil {
		r.logger.Info("discarding classification outside catalog", zap.String("scenario", result.Key))
		return &Decision{}, nil
	}

	if result.Confidence >= r.threshold {
		return &Decision{Scenarios: []*Definition{chosen}, Classified: true, Confidence: result.Confidence}, nil
	}

	return &Decision{
		Classified:    true,
		Confidence:    result.Confidence,
		Clarification: confirmQuestion(chosen, result, active),
	}, nil
}

func findActive(active []*Definition, key string) *Definition {
	for _, d := range active {
		if strings.EqualFold(d.Key, key) {
			return d
		}
	}
	return nil
}

// confirmQuestion builds the "is this X?" clarification with up to three options.
func confirmQuestion(chosen *Definition, result *Classification, active []*Definition) *types.ClarificationRequest {
	options := []types.Option{{Key: chosen.Key, Title: chosen.Title, Confidence: result.Confidence}}
	alts := append([]Candidate(nil), result.Alternatives...)
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Confidence > alts[j].Confidence })
	for _, alt := range alts {
		if len(options) == 3 {
			break
		}
		d := findActive(active, alt.Key)
		if d == nil || hasOption(options, d.Key) {
			continue
		}
		options = append(options, types.Option{Key: d.Key, Title: d.Title, Confidence: alt.Confidence})
	}
	for _, d := range active {
		if len(options) == 3 {
			break
		}
		if !hasOption(options, d.Key) {
			options = append(options, types.Option{Key: d.Key, Title: d.Title})
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This looks like %q (confidence %.0f%%). Reply \"yes\" to continue, or pick one of:", chosen.Title, result.Confidence*100)
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, o.Title, o.Key)
	}

	return &types.ClarificationRequest{
		QuestionID:  types.NewQuestionID(),
		Question:    b.String(),
		Detail:      SelectDetailPrefix + chosen.Key,
		ScenarioKey: chosen.Key,
		Options:     options,
		State:       types.ClarificationOpen,
	}
}

func hasOption(options []types.Option, key string) bool {
	for _, o := range options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// IsSalesOrderRequest reports whether text carries the hard-coded sales-order trigger.
func IsSalesOrderRequest(text string) bool {
	return containsAny(text, salesOrderTriggers)
}

// SalesOrder returns the catalog's sales-order scenario or an ephemeral one.
func SalesOrder(catalog *Catalog) *Definition {
	if d, ok := catalog.Get(SalesOrderKey); ok {
		return d
	}
	return &Definition{
		Key:   SalesOrderKey,
		Title: "Sales order registration",
		Instructions: "Register a sales order. Resolve the customer with lookup_customer, " +
			"then call create_sales_order with customerCode and lines (materialCode, quantity > 0). " +
			"Ask for anything missing with request_clarification.",
		Priority:  0,
		IsActive:  true,
		ToolHints: []string{"lookup_customer", "create_sales_order", "request_clarification"},
		Ephemeral: true,
	}
}

package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/governance"
	"github.com/rahul/contentcal/internal/pipeline"
)

// Generator produces a structured object for a prompt.
type Generator interface {
	GenerateStructured(ctx context.Context, prompt string, schema agent.Schema) (map[string]any, error)
}

// Instructions supplies per-step prompt overrides.
type Instructions interface {
	StepInstructions(key, def string) string
}

// TrendSource looks up live industry trends.
type TrendSource interface {
	Trends(ctx context.Context, industry string, keywords []string) (string, error)
}

// Deps are the collaborators shared by all twelve steps. Only Generator
// is required.
type Deps struct {
	Generator Generator
	Prompts   Instructions
	Trends    TrendSource
	Policy    governance.PolicyEngine
}

type base struct {
	desc pipeline.Descriptor
	deps Deps
}

func newBase(id pipeline.StepID, deps Deps) base {
	return base{desc: pipeline.MustDescriptor(id), deps: deps}
}

func (b base) Descriptor() pipeline.Descriptor { return b.desc }

func (b base) Healthy() error {
	if b.deps.Generator == nil {
		return errors.New("no generator configured")
	}
	if hc, ok := b.deps.Generator.(pipeline.HealthChecker); ok {
		return hc.Healthy()
	}
	return nil
}

func (b base) instructions(def string) string {
	if b.deps.Prompts == nil {
		return def
	}
	return b.deps.Prompts.StepInstructions(b.desc.Key, def)
}

// generate renders the prompt for this step and asks the generator for an
// object matching schema. Generator failures are transient; the error
// handler decides whether to retry.
func (b base) generate(ctx context.Context, snap *pipeline.Snapshot, instructions string, inputs map[string]any, schema agent.Schema) (map[string]any, error) {
	if b.deps.Generator == nil {
		return nil, pipeline.Transientf("%s: no generator configured", b.desc)
	}

	prompt, err := renderPrompt(snap, instructions, inputs)
	if err != nil {
		return nil, pipeline.Fatal(err)
	}

	out, err := b.deps.Generator.GenerateStructured(ctx, prompt, schema)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		return nil, pipeline.Transient(fmt.Errorf("%s: %w", b.desc.Key, err))
	}
	return out, nil
}

func renderPrompt(snap *pipeline.Snapshot, instructions string, inputs map[string]any) (string, error) {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\n## Business\n")
	fmt.Fprintf(&sb, "- Industry: %s\n", orDefault(snap.Industry, "unspecified"))
	fmt.Fprintf(&sb, "- Business size: %s\n", orDefault(snap.BusinessSize, "unspecified"))
	fmt.Fprintf(&sb, "- Calendar: %s (%d days)\n", snap.CalendarType, snap.DurationDays)
	if snap.Onboarding.CompanyName != "" {
		fmt.Fprintf(&sb, "- Company: %s\n", snap.Onboarding.CompanyName)
	}
	if snap.Onboarding.BrandVoice != "" {
		fmt.Fprintf(&sb, "- Brand voice: %s\n", snap.Onboarding.BrandVoice)
	}

	if len(inputs) > 0 {
		data, err := json.MarshalIndent(inputs, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode step inputs: %w", err)
		}
		sb.WriteString("\n## Inputs\n```json\n")
		sb.Write(data)
		sb.WriteString("\n```\n")
	}
	return sb.String(), nil
}

// completeness is the share of required fields holding a non-empty value.
func completeness(payload map[string]any, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	filled := 0
	for _, k := range required {
		if !isEmpty(payload[k]) {
			filled++
		}
	}
	return float64(filled) / float64(len(required))
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func ratio(got, want int) float64 {
	if want <= 0 {
		return 1
	}
	return clamp(float64(got) / float64(want))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) != "" {
			return []string{t}
		}
	}
	return nil
}

func listOf(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func intOf(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	}
	return 0
}

func floatOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// names pulls the "name" field out of a list of objects.
func names(items []map[string]any) []string {
	var out []string
	for _, it := range items {
		if n := stringOf(it["name"]); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func policyViolations(ctx context.Context, engine governance.PolicyEngine, field string, texts []string) []string {
	v := governance.Violations(ctx, engine, field, texts)
	if len(v) > 0 {
		log.Printf("[Steps] %d %s item(s) rejected by content policy", len(v), field)
	}
	return v
}

var (
	stringList = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	str        = map[string]any{"type": "string"}
	integer    = map[string]any{"type": "integer"}
	number     = map[string]any{"type": "number"}
)

func objectList(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

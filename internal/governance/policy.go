package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one piece of generated content to be checked.
type Request struct {
	Field string
	Text  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates generated content against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// ContentPolicy denies content containing blocked terms or matching
// blocked patterns.
type ContentPolicy struct {
	DeniedTerms []string
	DeniedRegex []*regexp.Regexp
}

func NewContentPolicy() *ContentPolicy {
	return &ContentPolicy{
		DeniedTerms: make([]string, 0),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// DenyTerm blocks a case-insensitive substring.
func (p *ContentPolicy) DenyTerm(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term != "" {
		p.DeniedTerms = append(p.DeniedTerms, term)
	}
}

func (p *ContentPolicy) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.DeniedRegex = append(p.DeniedRegex, re)
	return nil
}

func (p *ContentPolicy) Evaluate(ctx context.Context, req Request) (Result, error) {
	lower := strings.ToLower(req.Text)
	for _, term := range p.DeniedTerms {
		if strings.Contains(lower, term) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("%s contains restricted term '%s'", req.Field, term),
			}, nil
		}
	}

	for _, re := range p.DeniedRegex {
		if re.MatchString(req.Text) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("%s matches restricted pattern: %s", req.Field, re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by content policy",
	}, nil
}

// Violations evaluates every text and returns the deny reasons.
func Violations(ctx context.Context, engine PolicyEngine, field string, texts []string) []string {
	if engine == nil {
		return nil
	}
	var out []string
	for _, t := range texts {
		res, err := engine.Evaluate(ctx, Request{Field: field, Text: t})
		if err != nil {
			out = append(out, fmt.Sprintf("%s: policy evaluation failed: %v", field, err))
			continue
		}
		if res.Effect == EffectDeny {
			out = append(out, res.Reason)
		}
	}
	return out
}

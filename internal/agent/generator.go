package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/rahul/contentcal/internal/observability"
)

var (
	ErrEmptyResponse   = errors.New("model returned no choices")
	ErrMalformedOutput = errors.New("model output does not match schema")
)

// Schema describes the structured object a prompt must produce.
type Schema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// JSONSchema renders s as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.Properties,
		"required":   s.Required,
	}
}

type sessionKey struct{}

// WithSessionID tags ctx so LLM transcripts can be attributed to a session.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Generator turns prompts into structured objects using a chat model.
type Generator struct {
	Model     llms.Model
	ModelName string
	Prompts   *PromptManager
	Limiter   *rate.Limiter
	Logger    *observability.Logger
}

func NewGenerator(model llms.Model, modelName string, prompts *PromptManager, limiter *rate.Limiter, logger *observability.Logger) *Generator {
	return &Generator{
		Model:     model,
		ModelName: modelName,
		Prompts:   prompts,
		Limiter:   limiter,
		Logger:    logger,
	}
}

// Healthy reports whether the generator can be called.
func (g *Generator) Healthy() error {
	if g == nil || g.Model == nil {
		return errors.New("no language model configured")
	}
	return nil
}

// GenerateStructured asks the model to submit an object matching schema
// through a function call, falling back to parsing JSON from the text reply.
func (g *Generator) GenerateStructured(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	if err := g.Healthy(); err != nil {
		return nil, err
	}
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var messages []llms.MessageContent
	if g.Prompts != nil {
		systemPrompt, err := g.Prompts.GetSystemPrompt()
		if err != nil {
			log.Printf("Warning: Failed to load system prompt: %v", err)
		}
		if systemPrompt != "" {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	toolName := "submit_" + schema.Name
	submit := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        toolName,
				Description: schema.Description,
				Parameters:  schema.JSONSchema(),
			},
		},
	}

	resp, err := g.Model.GenerateContent(ctx, messages, llms.WithTools(submit))
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]

	sessionID := SessionIDFrom(ctx)
	g.Logger.LogLLM(sessionID, prompt, choice.Content, choice.ToolCalls)
	g.logCost(sessionID, choice)

	var raw string
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == toolName {
			raw = tc.FunctionCall.Arguments
			break
		}
	}
	if raw == "" {
		raw = extractJSON(choice.Content)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: no %s call and no JSON in reply", ErrMalformedOutput, toolName)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	for _, field := range schema.Required {
		if _, ok := out[field]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", ErrMalformedOutput, field)
		}
	}
	return out, nil
}

func (g *Generator) logCost(sessionID string, choice *llms.ContentChoice) {
	if choice.GenerationInfo == nil {
		return
	}
	prompt, _ := choice.GenerationInfo["PromptTokens"].(int)
	completion, _ := choice.GenerationInfo["CompletionTokens"].(int)
	if prompt == 0 && completion == 0 {
		return
	}
	g.Logger.LogCost(sessionID, prompt, completion, g.ModelName)
}

// extractJSON returns the outermost JSON object in s, tolerating markdown
// code fences around it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

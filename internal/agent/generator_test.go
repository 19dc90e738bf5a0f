package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/contentcal/internal/observability"
)

type scriptedModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var themeSchema = Schema{
	Name:        "weekly_themes",
	Description: "Submit weekly themes",
	Properties: map[string]any{
		"themes": map[string]any{"type": "array"},
	},
	Required: []string{"themes"},
}

func newTestGenerator(t *testing.T, model llms.Model) *Generator {
	return NewGenerator(model, "test-model", nil, nil, observability.NewLoggerTo(&bytes.Buffer{}, t.TempDir()))
}

func TestGenerateStructured_ToolCall(t *testing.T) {
	model := &scriptedModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "submit_weekly_themes",
				Arguments: `{"themes": ["launch", "education"]}`,
			},
		}},
	}}}}

	out, err := newTestGenerator(t, model).GenerateStructured(context.Background(), "plan themes", themeSchema)
	require.NoError(t, err)
	assert.Equal(t, []any{"launch", "education"}, out["themes"])
	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
}

func TestGenerateStructured_FencedJSONReply(t *testing.T) {
	model := &scriptedModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "Here you go:\n```json\n{\"themes\": [\"q3 recap\"]}\n```",
	}}}}

	out, err := newTestGenerator(t, model).GenerateStructured(context.Background(), "plan themes", themeSchema)
	require.NoError(t, err)
	assert.Equal(t, []any{"q3 recap"}, out["themes"])
}

func TestGenerateStructured_MissingRequiredField(t *testing.T) {
	model := &scriptedModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: `{"other": 1}`,
	}}}}

	_, err := newTestGenerator(t, model).GenerateStructured(context.Background(), "plan themes", themeSchema)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestGenerateStructured_ModelErrorAndEmptyResponse(t *testing.T) {
	boom := errors.New("503 service unavailable")
	_, err := newTestGenerator(t, &scriptedModel{err: boom}).GenerateStructured(context.Background(), "p", themeSchema)
	assert.ErrorIs(t, err, boom)

	_, err = newTestGenerator(t, &scriptedModel{resp: &llms.ContentResponse{}}).GenerateStructured(context.Background(), "p", themeSchema)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateStructured_NoModel(t *testing.T) {
	var g *Generator
	assert.Error(t, g.Healthy())

	_, err := NewGenerator(nil, "", nil, nil, nil).GenerateStructured(context.Background(), "p", themeSchema)
	assert.Error(t, err)
}

func TestSessionIDContext(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess-1")
	assert.Equal(t, "sess-1", SessionIDFrom(ctx))
	assert.Equal(t, "", SessionIDFrom(context.Background()))
}

package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/procureflow/agent/internal/domain"
)

const clarifyToolName = "ask_clarification"

const systemPrompt = `You map procurement requests onto a fixed catalog of operations.
Call exactly one tool. Pick the catalog operation the user is asking for and
extract its parameters from the conversation; leave out parameters the user
has not provided. If the request matches no operation or is too vague to pick
one, call ` + clarifyToolName + ` with a short question for the user.`

// OpenAIInterpreter implements Interpreter on the OpenAI chat completions API
// using one tool definition per catalog intent. Any OpenAI-compatible
// endpoint works via the base URL.
type OpenAIInterpreter struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIInterpreter builds the interpreter. baseURL may be empty for the
// public API.
func NewOpenAIInterpreter(baseURL, apiKey, model string, logger *slog.Logger) *OpenAIInterpreter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIInterpreter{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Interpret runs one chat completion with tool calling and converts the tool
// call back into a candidate interpretation.
func (o *OpenAIInterpreter) Interpret(ctx context.Context, req Request) (*Interpretation, error) {
	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    buildMessages(req),
		Tools:       buildTools(req.Intents),
		Temperature: openai.Float(0),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		// The model answered in prose; treat it as an ambiguity signal and
		// let the resolver surface the text as a clarifying question.
		return &Interpretation{Ambiguous: true, ClarifyingQuestion: msg.Content}, nil
	}

	call := msg.ToolCalls[0]
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		o.logger.Warn("interpreter returned unparseable tool arguments",
			"tool", call.Function.Name, "error", err)
		args = map[string]any{}
	}

	if call.Function.Name == clarifyToolName {
		question, _ := args["question"].(string)
		return &Interpretation{Ambiguous: true, ClarifyingQuestion: question}, nil
	}
	return &Interpretation{
		IntentName: call.Function.Name,
		Slots:      args,
		Confidence: 1,
	}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	for _, turn := range req.History {
		switch turn.Role {
		case domain.TurnRoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case domain.TurnRoleAssistant, domain.TurnRoleClarification:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		}
	}
	return append(messages, openai.UserMessage(req.Text))
}

func buildTools(intents []domain.IntentSummary) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(intents)+1)
	for _, sum := range intents {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        sum.Name,
				Description: openai.String(sum.Description),
				Parameters:  slotSchema(sum.Fields),
			},
		})
	}
	tools = append(tools, openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        clarifyToolName,
			Description: openai.String("Ask the user a question when the request matches no operation or is too vague."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
				},
				"required": []string{"question"},
			},
		},
	})
	return tools
}

// slotSchema renders an intent's field specs as a JSON schema. Required is
// deliberately left empty: the model should report what it found and let the
// resolver decide what is missing, rather than hallucinate values to satisfy
// the schema.
func slotSchema(fields []domain.FieldSpec) openai.FunctionParameters {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		p := map[string]any{"description": f.Description}
		switch f.Type {
		case domain.FieldTypeInt:
			p["type"] = "integer"
		case domain.FieldTypeNumber:
			p["type"] = "number"
		case domain.FieldTypeBool:
			p["type"] = "boolean"
		default:
			p["type"] = "string"
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
	}
	return openai.FunctionParameters{
		"type":       "object",
		"properties": props,
	}
}

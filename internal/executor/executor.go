// Package executor runs pipeline stages against an OpenAI-compatible chat
// completion endpoint using go-openai. Responses are streamed so progress can
// be reported while the model is still writing.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/JaimeStill/refine/internal/pipeline"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/formatting"
)

// ErrEmptyResponse is recorded when the model returns no content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Executor implements pipeline.Executor over go-openai.
type Executor struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates an Executor for cfg. cfg must already be finalized.
func New(cfg *Config, logger *slog.Logger) *Executor {
	oc := openai.DefaultConfig(cfg.Token)
	oc.BaseURL = cfg.BaseURL

	return &Executor{
		client: openai.NewClientWithConfig(oc),
		cfg:    *cfg,
		logger: logger.With("system", "executor"),
	}
}

// Execute streams one stage completion. Transport failures are returned as
// errors; a response that fails structured-output validation is returned as
// a failed result.
func (e *Executor) Execute(
	ctx context.Context,
	sc pipeline.StageContext,
	deps pipeline.Dependencies,
	opts pipeline.Options,
) (stages.Result, error) {
	input, err := ComposePrompt(sc, deps)
	if err != nil {
		return stages.Result{}, err
	}

	req, err := e.request(sc, deps, input)
	if err != nil {
		return stages.Result{Input: input}, err
	}

	if d := e.cfg.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	opts.Progress(fmt.Sprintf("requesting %s", e.cfg.Model))

	output, err := e.stream(ctx, req, opts)
	if err != nil {
		return stages.Result{Input: input}, err
	}

	if strings.TrimSpace(output) == "" {
		return stages.NewErrorResult(sc.Stage, input, ErrEmptyResponse.Error()), nil
	}

	if sc.Config.StructuredOutput {
		raw, err := formatting.Parse[json.RawMessage](output)
		if err != nil {
			e.logger.Warn("structured output rejected", "stage", sc.Stage, "error", err)
			r := stages.NewErrorResult(sc.Stage, input, err.Error())
			r.Output = output
			return r, nil
		}
		output = string(raw)
	}

	return stages.NewResult(sc.Stage, input, output), nil
}

func (e *Executor) request(sc pipeline.StageContext, deps pipeline.Dependencies, input string) (openai.ChatCompletionRequest, error) {
	var messages []openai.ChatCompletionMessage
	if deps.SystemPrompt != nil {
		if system := deps.SystemPrompt(); system != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})

	req := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Messages:    messages,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Stream:      true,
	}

	if sc.Config.StructuredOutput {
		schema, err := deps.LookupSchema(sc.Config.SchemaSource, sc.Stage)
		if err != nil {
			return req, fmt.Errorf("load schema for %s: %w", sc.Stage, err)
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   string(sc.Stage) + "_result",
				Schema: json.RawMessage(schema),
				Strict: true,
			},
		}
	}

	return req, nil
}

func (e *Executor) stream(ctx context.Context, req openai.ChatCompletionRequest, opts pipeline.Options) (string, error) {
	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("start completion: %w", err)
	}
	defer stream.Close()

	var (
		sb     strings.Builder
		chunks int
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read completion: %w", err)
		}

		for _, choice := range resp.Choices {
			sb.WriteString(choice.Delta.Content)
		}

		chunks++
		if chunks%e.cfg.ProgressInterval == 0 {
			opts.Progress(fmt.Sprintf("received %d chunks", chunks))
		}
	}

	e.logger.Debug("completion streamed", "model", req.Model, "chunks", chunks, "bytes", sb.Len())
	return sb.String(), nil
}

var _ pipeline.Executor = (*Executor)(nil)

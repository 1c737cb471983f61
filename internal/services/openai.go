package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the stream.Generator interface for OpenAI's chat models, or any
// service that speaks the same API when a base URL is given.
type OpenAI struct {
	model string

	params LLMParameters

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key, base URL, and model name. An empty
// baseURL targets the OpenAI API.
func NewOpenAI(apiKey, baseURL, model string, params LLMParameters, logger *slog.Logger) (OpenAI, error) {
	if apiKey == "" {
		return OpenAI{}, ConfigurationError{Provider: "openai", Reason: "OPENAI_API_KEY is not set"}
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return OpenAI{
		model:  model,
		params: params,
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(slog.String("module", "openai")),
	}, nil
}

func openAIMessages(instruction string, messages []models.Message) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(messages)+1)
	for _, msg := range messages {
		if msg.Role == models.RoleModel {
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: msg.Text,
			})
			continue
		}

		if len(msg.Images) == 0 {
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: msg.Text,
			})
			continue
		}

		parts := []goopenai.ChatMessagePart{{Type: goopenai.ChatMessagePartTypeText, Text: msg.Text}}
		for _, img := range msg.Images {
			parts = append(parts, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    img.DataURL(),
					Detail: goopenai.ImageURLDetailAuto,
				},
			})
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:         goopenai.ChatMessageRoleUser,
			MultiContent: parts,
		})
	}

	if instruction != "" {
		msgs = slices.Insert(msgs, 0, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: instruction,
		})
	}
	return msgs
}

// Stream is a wrapper around the OpenAI streaming chat completion API.
func (o OpenAI) Stream(ctx context.Context, r stream.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := o.chatRequest(openAIMessages(r.Instruction, r.History))

		if o.logger.Enabled(ctx, slog.LevelDebug) {
			reqJSON, err := json.Marshal(req)
			if err == nil {
				o.logger.Debug("Request", slog.Int("bytes", len(reqJSON)), slog.String("model", req.Model))
			}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		s, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer s.Close()

		for {
			response, err := s.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			if !yield(response.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}
	if o.params.PresencePenalty != nil {
		req.PresencePenalty = *o.params.PresencePenalty
	}
	if o.params.Seed != nil {
		req.Seed = o.params.Seed
	}
	if o.params.FrequencyPenalty != nil {
		req.FrequencyPenalty = *o.params.FrequencyPenalty
	}
	if o.params.LogitBias != nil {
		req.LogitBias = o.params.LogitBias
	}
	if o.params.Logprobs != nil {
		req.LogProbs = *o.params.Logprobs
	}
	if o.params.TopLogprobs != nil {
		req.TopLogProbs = *o.params.TopLogprobs
	}

	return req
}

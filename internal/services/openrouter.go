package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter provides an implementation of the stream.Generator interface for models routed through
// OpenRouter.
type OpenRouter struct {
	apiKey   string
	model    string
	endpoint string

	client *http.Client

	logger *slog.Logger
}

type openRouterChatRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
	Plugins  []openRouterPlugin  `json:"plugins,omitempty"`
	Stream   bool                `json:"stream"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openRouterPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterPlugin struct {
	ID string `json:"id"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterStreamingChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance with the specified API key and model name. An empty
// endpoint targets the public API.
func NewOpenRouter(apiKey, endpoint, model string, logger *slog.Logger) (OpenRouter, error) {
	if apiKey == "" {
		return OpenRouter{}, ConfigurationError{Provider: "openrouter", Reason: "OPENROUTER_API_KEY is not set"}
	}
	if endpoint == "" {
		endpoint = openRouterAPIEndpoint
	}
	return OpenRouter{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "openrouter")),
	}, nil
}

// Stream streams responses from the OpenRouter API. Web search is delegated to OpenRouter's web plugin.
func (o OpenRouter) Stream(ctx context.Context, r stream.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.doRequest(ctx, r)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			o.logger.Debug("Received event",
				slog.String("event", ev.Data),
			)

			if ev.Data == "[DONE]" {
				return
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", fmt.Errorf("error unmarshaling response: %w", err))
				return
			}
			if res.Error != nil {
				yield("", fmt.Errorf("openrouter error %d: %s", res.Error.Code, res.Error.Message))
				return
			}

			if len(res.Choices) == 0 {
				continue
			}

			if !yield(res.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func openRouterMessages(instruction string, messages []models.Message) []openRouterMessage {
	msgs := make([]openRouterMessage, 0, len(messages)+1)
	for _, msg := range messages {
		if msg.Role == models.RoleModel {
			msgs = append(msgs, openRouterMessage{Role: "assistant", Content: msg.Text})
			continue
		}
		if len(msg.Images) == 0 {
			msgs = append(msgs, openRouterMessage{Role: "user", Content: msg.Text})
			continue
		}

		parts := []openRouterPart{{Type: "text", Text: msg.Text}}
		for _, img := range msg.Images {
			parts = append(parts, openRouterPart{
				Type:     "image_url",
				ImageURL: &openRouterImageURL{URL: img.DataURL()},
			})
		}
		msgs = append(msgs, openRouterMessage{Role: "user", Content: parts})
	}
	if instruction != "" {
		msgs = slices.Insert(msgs, 0, openRouterMessage{
			Role:    "system",
			Content: instruction,
		})
	}
	return msgs
}

func (o OpenRouter) doRequest(ctx context.Context, r stream.Request) (*http.Response, error) {
	reqBody := openRouterChatRequest{
		Model:    o.model,
		Messages: openRouterMessages(r.Instruction, r.History),
		Stream:   true,
	}
	if r.Options.EnableWebSearch {
		reqBody.Plugins = []openRouterPlugin{{ID: "web"}}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request Body", slog.Int("bytes", len(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.endpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("X-Title", "Rimns AI")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

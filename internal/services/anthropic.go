package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an implementation of the stream.Generator interface for the Anthropic Messages API,
// streaming completions from Claude models.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string

	client *http.Client
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
)

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum token
// limit. An empty endpoint targets the public API.
func NewAnthropic(apiKey, endpoint, model string, maxTokens int) (Anthropic, error) {
	if apiKey == "" {
		return Anthropic{}, ConfigurationError{Provider: "anthropic", Reason: "ANTHROPIC_API_KEY is not set"}
	}
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  endpoint,
		client:    &http.Client{},
	}, nil
}

// anthropicMessages converts the history. The API requires the conversation to open with a user turn, so
// leading model messages such as the greeting are dropped.
func anthropicMessages(messages []models.Message) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if len(msgs) == 0 && msg.Role == models.RoleModel {
			continue
		}
		role := "user"
		if msg.Role == models.RoleModel {
			role = "assistant"
		}

		var content []anthropicContent
		for _, img := range msg.Images {
			content = append(content, anthropicContent{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: img.MIMEType,
					Data:      img.Data,
				},
			})
		}
		content = append(content, anthropicContent{Type: "text", Text: msg.Text})

		msgs = append(msgs, anthropicMessage{Role: role, Content: content})
	}
	return msgs
}

// Stream streams responses from the Anthropic API for the request history. The context can be used to
// cancel ongoing requests. Web search is not supported and is ignored.
func (a Anthropic) Stream(ctx context.Context, r stream.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reqBody := anthropicChatRequest{
			Model:     a.model,
			Messages:  anthropicMessages(r.History),
			Stream:    true,
			System:    r.Instruction,
			MaxTokens: a.maxTokens,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := a.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				continue
			}
		}
	}
}

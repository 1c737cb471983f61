package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"

	"github.com/ollama/ollama/api"
	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
)

// Ollama provides an implementation of the stream.Generator interface for models served by an Ollama
// instance.
type Ollama struct {
	host  string
	model string

	client *api.Client
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host must be a
// valid URL pointing to an Ollama server.
func NewOllama(host, model string) (Ollama, error) {
	if host == "" {
		return Ollama{}, ConfigurationError{Provider: "ollama", Reason: "OLLAMA_HOST is not set"}
	}
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, ConfigurationError{Provider: "ollama", Reason: fmt.Sprintf("invalid host %q: %v", host, err)}
	}

	return Ollama{
		host:   host,
		model:  model,
		client: api.NewClient(u, &http.Client{}),
	}, nil
}

func ollamaMessages(instruction string, messages []models.Message) ([]api.Message, error) {
	msgs := make([]api.Message, len(messages))
	for i, msg := range messages {
		role := "user"
		if msg.Role == models.RoleModel {
			role = "assistant"
		}
		m := api.Message{
			Role:    role,
			Content: msg.Text,
		}
		for _, img := range msg.Images {
			data, err := img.Bytes()
			if err != nil {
				return nil, fmt.Errorf("error decoding image: %w", err)
			}
			m.Images = append(m.Images, api.ImageData(data))
		}
		msgs[i] = m
	}
	if instruction != "" {
		msgs = slices.Insert(msgs, 0, api.Message{
			Role:    "system",
			Content: instruction,
		})
	}
	return msgs, nil
}

// Stream streams a reply from the Ollama model. Web search is not supported and is ignored.
func (o Ollama) Stream(ctx context.Context, r stream.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs, err := ollamaMessages(r.Instruction, r.History)
		if err != nil {
			yield("", fmt.Errorf("error creating ollama messages: %w", err))
			return
		}

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			if stopped || errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

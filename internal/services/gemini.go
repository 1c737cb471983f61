package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"google.golang.org/genai"
)

// Gemini provides an implementation of the stream.Generator interface on top of the Gemini API. It also
// generates images on request.
type Gemini struct {
	model      string
	imageModel string

	client *genai.Client

	logger *slog.Logger
}

// GeminiConfig configures a Gemini client. BaseURL and HTTPClient are optional.
type GeminiConfig struct {
	APIKey     string
	Model      string
	ImageModel string
	BaseURL    string
	HTTPClient *http.Client
}

const (
	defaultGeminiModel      = "gemini-3.1-pro-preview"
	defaultGeminiImageModel = "gemini-2.5-flash-image"
)

// ErrNoImage is returned by GenerateImage when the response carries no inline image.
var ErrNoImage = errors.New("no image generated")

// NewGemini creates a Gemini client. It fails with a ConfigurationError when no API key is given.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (Gemini, error) {
	if cfg.APIKey == "" {
		return Gemini{}, ConfigurationError{Provider: "gemini", Reason: "GEMINI_API_KEY is not set"}
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultGeminiImageModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return Gemini{}, fmt.Errorf("error creating gemini client: %w", err)
	}

	return Gemini{
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		client:     client,
		logger:     logger.With(slog.String("module", "gemini")),
	}, nil
}

func geminiContents(messages []models.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		parts := []*genai.Part{genai.NewPartFromText(msg.Text)}
		for _, img := range msg.Images {
			data, err := img.Bytes()
			if err != nil {
				return nil, fmt.Errorf("error decoding image: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, img.MIMEType))
		}

		var role genai.Role = genai.RoleUser
		if msg.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents, nil
}

// Stream streams a reply from the configured Gemini model. Web search is enabled through the Google
// Search tool when the request asks for it.
func (g Gemini) Stream(ctx context.Context, req stream.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, err := geminiContents(req.History)
		if err != nil {
			yield("", fmt.Errorf("error creating gemini contents: %w", err))
			return
		}

		cfg := &genai.GenerateContentConfig{}
		if req.Instruction != "" {
			cfg.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
		}
		if req.Options.EnableWebSearch {
			cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		}

		g.logger.Debug("Request",
			slog.String("model", g.model),
			slog.Int("contents", len(contents)),
			slog.Bool("webSearch", req.Options.EnableWebSearch))

		for res, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			if !yield(res.Text(), nil) {
				return
			}
		}
	}
}

// GenerateImage asks the image model for a picture matching prompt and returns it inline.
func (g Gemini) GenerateImage(ctx context.Context, prompt string) (models.Image, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.imageModel,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	if err != nil {
		return models.Image{}, fmt.Errorf("error sending request: %w", err)
	}

	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return models.Image{
				MIMEType: mime,
				Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
			}, nil
		}
	}
	return models.Image{}, ErrNoImage
}

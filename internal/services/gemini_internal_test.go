package services

import (
	"testing"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"google.golang.org/genai"
)

func TestGeminiContents(t *testing.T) {
	contents, err := geminiContents([]models.Message{
		{Role: models.RoleModel, Text: "Hello!"},
		{Role: models.RoleUser, Text: "What is this?", Images: []models.Image{{MIMEType: "image/png", Data: "aGVsbG8="}}},
	})
	if err != nil {
		t.Fatalf("geminiContents() error = %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("geminiContents() len = %d, want 2", len(contents))
	}
	if contents[0].Role != string(genai.RoleModel) || contents[1].Role != string(genai.RoleUser) {
		t.Errorf("roles = %v, %v", contents[0].Role, contents[1].Role)
	}

	parts := contents[1].Parts
	if len(parts) != 2 {
		t.Fatalf("parts len = %d, want text and image", len(parts))
	}
	if parts[0].Text != "What is this?" {
		t.Errorf("text part = %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || string(parts[1].InlineData.Data) != "hello" || parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("image part = %+v", parts[1].InlineData)
	}

	if _, err := geminiContents([]models.Message{{Role: models.RoleUser, Images: []models.Image{{Data: "!!"}}}}); err == nil {
		t.Error("geminiContents() should reject undecodable images")
	}
}

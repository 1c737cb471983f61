package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/services"
)

func TestBoltArchive(t *testing.T) {
	archive, err := services.NewBoltArchive(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewBoltArchive() error = %v", err)
	}
	defer archive.Close()

	ctx := context.Background()
	first := models.Transcript{
		ID:   "a",
		Mode: "general",
		Messages: []models.Message{
			{Role: models.RoleModel, Text: "Hello!"},
			{Role: models.RoleUser, Text: "Hi", Images: []models.Image{{MIMEType: "image/png", Data: "aGVsbG8="}}},
		},
		ArchivedAt: time.Now(),
	}
	second := models.Transcript{ID: "b", Mode: "coding", ArchivedAt: time.Now()}

	for _, tr := range []models.Transcript{first, second} {
		if err := archive.Save(ctx, tr); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	transcripts, err := archive.Transcripts(ctx)
	if err != nil {
		t.Fatalf("Transcripts() error = %v", err)
	}
	if len(transcripts) != 2 {
		t.Fatalf("Transcripts() len = %d, want 2", len(transcripts))
	}
	if transcripts[0].Mode != "coding" || transcripts[1].Mode != "general" {
		t.Errorf("Transcripts() should be newest first, got %v then %v", transcripts[0].Mode, transcripts[1].Mode)
	}

	got, err := archive.Transcript(ctx, transcripts[1].ID)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Images[0].MIMEType != "image/png" {
		t.Errorf("Transcript() messages = %+v", got.Messages)
	}

	if _, err := archive.Transcript(ctx, "missing"); !errors.Is(err, models.ErrTranscriptNotFound) {
		t.Errorf("Transcript(missing) error = %v, want ErrTranscriptNotFound", err)
	}
}

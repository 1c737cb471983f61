package handlers

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/session"
)

type message struct {
	Index   int
	Role    string
	Label   string
	Content template.HTML
	Images  []template.URL

	// StreamingState is "loading" before the first fragment, "streaming" while fragments arrive, and
	// "ended" otherwise.
	StreamingState string
	Copyable       bool
}

type mode struct {
	ID     string
	Label  string
	Active bool
}

type chatboxData struct {
	Messages []message
	InFlight bool
}

type homePageData struct {
	Mode    models.Mode
	Modes   []mode
	Chatbox chatboxData

	ImagesEnabled  bool
	ArchiveEnabled bool
}

const (
	streamingStateLoading   = "loading"
	streamingStateStreaming = "streaming"
	streamingStateEnded     = "ended"
)

func (m Main) renderTemplate(name string, data any) (string, error) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return sb.String(), nil
}

func (m Main) messageView(snap session.Snapshot, i int) (message, error) {
	msg := snap.Messages[i]

	content, err := m.renderer.Render(msg.Text)
	if err != nil {
		return message{}, fmt.Errorf("failed to render message %d: %w", i, err)
	}

	state := streamingStateEnded
	// Only the last message can be the pending placeholder.
	if snap.State == session.StateStreaming && i == len(snap.Messages)-1 {
		state = streamingStateStreaming
		if msg.Text == "" {
			state = streamingStateLoading
		}
	}

	mv := message{
		Index:          i,
		Role:           string(msg.Role),
		Label:          "You",
		Content:        content,
		StreamingState: state,
	}
	if msg.Role == models.RoleModel {
		mv.Label = "Rimns AI"
		mv.Copyable = state == streamingStateEnded
	}
	for _, img := range msg.Images {
		// Images are validated as base64 image payloads when they are submitted.
		mv.Images = append(mv.Images, template.URL(img.DataURL())) //nolint:gosec
	}
	return mv, nil
}

func (m Main) chatboxData(snap session.Snapshot) chatboxData {
	data := chatboxData{
		Messages: make([]message, 0, len(snap.Messages)),
		InFlight: snap.InFlight(),
	}
	for i := range snap.Messages {
		mv, err := m.messageView(snap, i)
		if err != nil {
			// Fall back to the escaped raw text.
			mv = message{
				Index:          i,
				Role:           string(snap.Messages[i].Role),
				Content:        template.HTML(template.HTMLEscapeString(snap.Messages[i].Text)), //nolint:gosec
				StreamingState: streamingStateEnded,
			}
		}
		data.Messages = append(data.Messages, mv)
	}
	return data
}

func (m Main) homeData(snap session.Snapshot) homePageData {
	modes := make([]mode, len(models.Modes))
	for i, md := range models.Modes {
		modes[i] = mode{ID: md.ID, Label: md.Label, Active: md.ID == snap.Mode.ID}
	}
	return homePageData{
		Mode:           snap.Mode,
		Modes:          modes,
		Chatbox:        m.chatboxData(snap),
		ImagesEnabled:  m.imager != nil,
		ArchiveEnabled: m.archive != nil,
	}
}

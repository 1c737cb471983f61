package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/session"
)

const (
	maxFormMemory = 8 << 20
	maxImages     = 8
)

var errInvalidImage = errors.New("invalid image")

// HandleHome renders the chat page for the requesting browser session.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	cs := m.session(w, r)

	if err := m.templates.ExecuteTemplate(w, "home.html", m.homeData(cs.ctrl.Store().Snapshot())); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSSE streams the conversation of the requesting browser session. Every store transition is sent as
// a "message" event carrying the rendered message it touched, or as a "conversation" event carrying the
// whole chatbox after a reset.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	cs := m.session(w, r)

	m.mu.Lock()
	cs.conns++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		cs.conns--
		m.mu.Unlock()
	}()

	cs.sseSrv.ServeHTTP(w, r)
}

// HandleChats accepts a user submission through form data and starts the model turn answering it. The
// reply itself is streamed over SSE.
//
// The handler expects a "message" form field, an optional "web_search" flag, and optional images either
// as multipart "images" files or as repeated "image" data URL fields. It responds with 202 Accepted when
// the turn started, 204 No Content when the message is empty, 409 Conflict while another turn is in
// flight so the client keeps the input, and 413 when the body exceeds the upload limit.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > m.cfg.MaxUploadSize {
		http.Error(w, "Submission is too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, m.cfg.MaxUploadSize)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Submission is too large", http.StatusRequestEntityTooLarge)
			return
		}
		m.logger.Error("Failed to parse form", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	images, err := formImages(r)
	if err != nil {
		m.logger.Warn("Rejected images", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	webSearch, _ := strconv.ParseBool(r.FormValue("web_search"))
	sub := session.Submission{
		Text:      r.FormValue("message"),
		Images:    images,
		WebSearch: webSearch || r.FormValue("web_search") == "on",
	}

	cs := m.session(w, r)
	turn, err := cs.ctrl.Submit(m.ctx, sub)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, session.ErrTurnInFlight):
		http.Error(w, "A reply is still being generated", http.StatusConflict)
		return
	case err != nil:
		m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(struct {
		Turn  uint64 `json:"turn"`
		Index int    `json:"index"`
	}{turn.ID(), turn.Index()})
}

func formImages(r *http.Request) ([]models.Image, error) {
	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["images"]
	}
	if n := len(r.Form["image"]) + len(files); n > maxImages {
		return nil, fmt.Errorf("%w: at most %d images are allowed, got %d", errInvalidImage, maxImages, n)
	}

	images := make([]models.Image, 0, len(r.Form["image"])+len(files))
	for _, s := range r.Form["image"] {
		img, err := models.ParseDataURL(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidImage, err)
		}
		images = append(images, img)
	}

	for _, fh := range files {
		img, err := readImage(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	for _, img := range images {
		if !strings.HasPrefix(img.MIMEType, "image/") {
			return nil, fmt.Errorf("%w: unsupported type %s", errInvalidImage, img.MIMEType)
		}
	}
	return images, nil
}

// HandleStop cancels the reply being generated. The message keeps the text streamed so far.
func (m Main) HandleStop(w http.ResponseWriter, r *http.Request) {
	cs := m.session(w, r)
	if !cs.ctrl.Stop() {
		m.logger.Debug("Nothing to stop", slog.String("session", cs.id))
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset starts a new conversation in the active mode. The new chatbox is pushed over SSE.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	cs := m.session(w, r)
	cs.ctrl.Reset(m.ctx)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMode switches the session to the mode named by the "mode" form field and starts a new
// conversation in it.
func (m Main) HandleMode(w http.ResponseWriter, r *http.Request) {
	cs := m.session(w, r)
	if err := cs.ctrl.SetMode(m.ctx, r.FormValue("mode")); err != nil {
		m.logger.Warn("Failed to switch mode", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMessageText returns the raw text of the message at the given index, which backs the copy action
// of model replies.
func (m Main) HandleMessageText(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid message index", http.StatusBadRequest)
		return
	}

	cs := m.session(w, r)
	msg, ok := cs.ctrl.Store().Message(idx)
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msg.Text)
}

// HandleImages generates an image from the "prompt" form field.
func (m Main) HandleImages(w http.ResponseWriter, r *http.Request) {
	if m.imager == nil {
		http.Error(w, "Image generation is not available", http.StatusNotFound)
		return
	}

	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if prompt == "" {
		http.Error(w, "Prompt is required", http.StatusBadRequest)
		return
	}

	img, err := m.imager.GenerateImage(r.Context(), prompt)
	if err != nil {
		m.logger.Error("Failed to generate image",
			slog.String("prompt", prompt),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Failed to generate image", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		MIMEType string `json:"mimeType"`
		DataURL  string `json:"dataUrl"`
	}{img.MIMEType, img.DataURL()})
}

type transcriptSummary struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Messages   int    `json:"messages"`
	Title      string `json:"title"`
	ArchivedAt string `json:"archivedAt"`
}

// HandleArchive lists the archived conversations, newest first.
func (m Main) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if m.archive == nil {
		http.Error(w, "Archive is not enabled", http.StatusNotFound)
		return
	}

	transcripts, err := m.archive.Transcripts(r.Context())
	if err != nil {
		m.logger.Error("Failed to list transcripts", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]transcriptSummary, len(transcripts))
	for i, t := range transcripts {
		summaries[i] = summarize(t)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}

type transcriptMessage struct {
	Role   string   `json:"role"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// HandleTranscript returns one archived conversation with its messages.
func (m Main) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if m.archive == nil {
		http.Error(w, "Archive is not enabled", http.StatusNotFound)
		return
	}

	t, err := m.archive.Transcript(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrTranscriptNotFound) {
		http.Error(w, "Transcript not found", http.StatusNotFound)
		return
	}
	if err != nil {
		m.logger.Error("Failed to get transcript", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	messages := make([]transcriptMessage, len(t.Messages))
	for i, msg := range t.Messages {
		messages[i] = transcriptMessage{Role: string(msg.Role), Text: msg.Text}
		for _, img := range msg.Images {
			messages[i].Images = append(messages[i].Images, img.DataURL())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		transcriptSummary
		Conversation []transcriptMessage `json:"conversation"`
	}{summarize(t), messages})
}

func summarize(t models.Transcript) transcriptSummary {
	return transcriptSummary{
		ID:         t.ID,
		Mode:       t.Mode,
		Messages:   len(t.Messages),
		Title:      transcriptTitle(t),
		ArchivedAt: t.ArchivedAt.Format(time.RFC3339),
	}
}

// transcriptTitle is the first user message, cut to a single short line.
func transcriptTitle(t models.Transcript) string {
	for _, msg := range t.Messages {
		if msg.Role != models.RoleUser {
			continue
		}
		title, _, _ := strings.Cut(strings.TrimSpace(msg.Text), "\n")
		if r := []rune(title); len(r) > 60 {
			title = string(r[:60]) + "…"
		}
		return title
	}
	return ""
}

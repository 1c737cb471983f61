package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	rimnswebui "github.com/rimnsai/rimns-web-ui"
	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/session"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"github.com/tmaxmax/go-sse"
)

// Renderer turns message text into HTML.
type Renderer interface {
	Render(source string) (template.HTML, error)
}

// ImageGenerator produces an image from a text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (models.Image, error)
}

// Archive keeps the conversations users discard and lists them back.
type Archive interface {
	session.Archiver
	Transcripts(ctx context.Context) ([]models.Transcript, error)
	Transcript(ctx context.Context, id string) (models.Transcript, error)
}

// Config holds the per-session behaviour of Main.
type Config struct {
	// Instruction is the base system instruction sent with every turn.
	Instruction string
	// ErrorText replaces a model reply whose turn failed.
	ErrorText string
	// TurnTimeout bounds a single model turn. Zero means no limit.
	TurnTimeout time.Duration
	// SessionTTL is how long an idle browser session is kept. Zero keeps sessions forever.
	SessionTTL time.Duration
	// MaxUploadSize caps the body of a submission, images included. Zero means 32 MiB.
	MaxUploadSize int64
}

// Main handles the chat application: it owns one conversation per browser session, renders the page,
// accepts submissions, and streams every change of the conversation to the browser over server-sent
// events.
type Main struct {
	templates *template.Template

	gen      stream.Generator
	renderer Renderer
	archive  Archive
	imager   ImageGenerator

	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       *sync.Mutex
	sessions map[string]*chatSession

	logger *slog.Logger
}

type chatSession struct {
	id     string
	sseSrv *sse.Server
	ctrl   *session.Controller

	// lastSeen and conns are guarded by Main.mu.
	lastSeen time.Time
	conns    int
}

const (
	errLoggerKey = "err"

	sessionCookieName = "rimns_session"

	defaultMaxUploadSize = 32 << 20
	minSweepInterval     = time.Millisecond
)

// SSE event types for real-time updates.
var (
	conversationSSEType = sse.Type("conversation")
	messageSSEType      = sse.Type("message")
	statusSSEType       = sse.Type("status")
)

// NewMain creates a new Main instance. archive and imager are optional and may be nil, which disables
// the archive listing and image generation endpoints respectively.
func NewMain(
	gen stream.Generator,
	renderer Renderer,
	archive Archive,
	imager ImageGenerator,
	cfg Config,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		rimnswebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("error parsing templates: %w", err)
	}

	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := Main{
		templates: tmpl,
		gen:       gen,
		renderer:  renderer,
		archive:   archive,
		imager:    imager,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		mu:        &sync.Mutex{},
		sessions:  make(map[string]*chatSession),
		logger:    logger.With(slog.String("module", "main")),
	}

	if cfg.SessionTTL > 0 {
		go m.sweepSessions(cfg.SessionTTL)
	}

	return m, nil
}

// session returns the chat session of the requesting browser, creating one and setting its cookie when
// the request carries none or an unknown one.
func (m Main) session(w http.ResponseWriter, r *http.Request) *chatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, err := r.Cookie(sessionCookieName); err == nil {
		if cs, ok := m.sessions[c.Value]; ok {
			cs.lastSeen = time.Now()
			return cs
		}
	}

	cs := m.newSession()
	m.sessions[cs.id] = cs

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cs.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	m.logger.Info("New session", slog.String("session", cs.id))

	return cs
}

func (m Main) newSession() *chatSession {
	id := uuid.New().String()
	logger := m.logger.With(slog.String("session", id))

	store := session.NewStore(models.DefaultMode, logger)
	// Every entry point may be the first request of a session, so the greeting goes in before anyone
	// can submit.
	store.Seed()

	cfg := session.ControllerConfig{
		Instruction: m.cfg.Instruction,
		ErrorText:   m.cfg.ErrorText,
		Timeout:     m.cfg.TurnTimeout,
		Archive:     m.archive,
	}
	runner := stream.NewConsumer(m.gen, logger)

	cs := &chatSession{
		id:       id,
		sseSrv:   &sse.Server{},
		ctrl:     session.NewController(store, runner, cfg, logger),
		lastSeen: time.Now(),
	}
	store.Subscribe(func(snap session.Snapshot) {
		m.publishSnapshot(cs, snap)
	})

	return cs
}

// publishSnapshot forwards a store transition to the browser. A reset replaces the whole chatbox, every
// other transition replaces the single message it touched.
func (m Main) publishSnapshot(cs *chatSession, snap session.Snapshot) {
	var (
		msg sse.Message
		err error
	)
	if snap.Transition == session.TransitionReset {
		msg.Type = conversationSSEType
		var html string
		html, err = m.renderTemplate("chatbox", m.chatboxData(snap))
		msg.AppendData(html)
	} else {
		msg.Type = messageSSEType
		var mv message
		mv, err = m.messageView(snap, snap.Latest)
		if err == nil {
			var html string
			html, err = m.renderTemplate("message", mv)
			msg.AppendData(html)
		}
	}
	if err != nil {
		m.logger.Error("Failed to render snapshot",
			slog.String("session", cs.id),
			slog.String("transition", snap.Transition.String()),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	if err := cs.sseSrv.Publish(&msg); err != nil {
		m.logger.Error("Failed to publish snapshot",
			slog.String("session", cs.id),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	switch snap.Transition {
	case session.TransitionReset, session.TransitionUser, session.TransitionFinalize:
		status := sse.Message{Type: statusSSEType}
		status.AppendData(snap.State.String())
		if err := cs.sseSrv.Publish(&status); err != nil {
			m.logger.Error("Failed to publish status",
				slog.String("session", cs.id),
				slog.String(errLoggerKey, err.Error()))
		}
	}
}

func (m Main) sweepSessions(ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/2, minSweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		var expired []*chatSession
		for id, cs := range m.sessions {
			if cs.conns > 0 || time.Since(cs.lastSeen) < ttl || cs.ctrl.Store().InFlight() {
				continue
			}
			delete(m.sessions, id)
			expired = append(expired, cs)
		}
		m.mu.Unlock()

		for _, cs := range expired {
			m.logger.Info("Session expired", slog.String("session", cs.id))
			if err := m.shutdownSession(context.Background(), cs); err != nil {
				m.logger.Error("Failed to shutdown session",
					slog.String("session", cs.id),
					slog.String(errLoggerKey, err.Error()))
			}
		}
	}
}

func (m Main) shutdownSession(ctx context.Context, cs *chatSession) error {
	cs.ctrl.Stop()

	e := &sse.Message{Type: sse.Type("close")}
	// An event without data is never dispatched by the browser.
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = cs.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return cs.sseSrv.Shutdown(ctx)
}

// Shutdown gracefully terminates every session. Turns in flight are cancelled, a close message is
// broadcast to all connected clients, and each SSE server waits up to 5 seconds for its connections to
// terminate.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.Lock()
	sessions := make([]*chatSession, 0, len(m.sessions))
	for _, cs := range m.sessions {
		sessions = append(sessions, cs)
	}
	m.mu.Unlock()

	var firstErr error
	for _, cs := range sessions {
		if err := m.shutdownSession(ctx, cs); err != nil && firstErr == nil {
			firstErr = err
		}
		cs.ctrl.Wait()
	}
	return firstErr
}

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
)

// Runner runs a single model turn and relays its fragments. stream.Consumer implements it.
type Runner interface {
	RunTurn(ctx context.Context, req stream.Request, onFragment func(string)) error
}

// Archiver keeps conversations that are about to be discarded by a reset or a mode switch.
type Archiver interface {
	Save(ctx context.Context, t models.Transcript) error
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Instruction is the base system instruction. The active mode is appended on every turn.
	Instruction string
	// ErrorText replaces the model reply when a turn fails.
	ErrorText string
	// Timeout bounds a single turn. Zero means no limit.
	Timeout time.Duration
	// Archive is optional.
	Archive Archiver
}

// DefaultErrorText is shown in place of the model reply when a turn fails.
const DefaultErrorText = "I encountered an error. Please check your API key and try again."

// Submission is one user input: the message, optional inline images, and the per-turn switches.
type Submission struct {
	Text      string
	Images    []models.Image
	WebSearch bool
}

// Controller connects a Store to a Runner. It turns a submission into a user message plus a streamed model
// reply, and it owns the cancellation of the turn in flight.
type Controller struct {
	store  *Store
	runner Runner
	cfg    ControllerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger *slog.Logger
}

// NewController creates a Controller for store. An empty cfg.ErrorText falls back to DefaultErrorText.
func NewController(store *Store, runner Runner, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if cfg.ErrorText == "" {
		cfg.ErrorText = DefaultErrorText
	}
	return &Controller{
		store:  store,
		runner: runner,
		cfg:    cfg,
		logger: logger.With(slog.String("module", "controller")),
	}
}

// Store returns the store driven by the controller.
func (c *Controller) Store() *Store {
	return c.store
}

// Submit appends the user message and starts the model turn in the background. Validation and in-flight
// rejections are returned as is and leave the store untouched. ctx bounds the turn, so it must outlive the
// request that submitted it.
func (c *Controller) Submit(ctx context.Context, sub Submission) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.AppendUser(sub.Text, sub.Images); err != nil {
		return Turn{}, err
	}
	turn, err := c.store.BeginModelTurn()
	if err != nil {
		return Turn{}, err
	}
	history, err := c.store.History(turn)
	if err != nil {
		return Turn{}, err
	}

	req := stream.Request{
		Instruction: models.Instruction(c.cfg.Instruction, c.store.Mode()),
		History:     history,
		Options:     stream.Options{EnableWebSearch: sub.WebSearch},
	}

	var turnCtx context.Context
	var cancel context.CancelFunc
	if c.cfg.Timeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(turnCtx, cancel, done, turn, req)

	return turn, nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, turn Turn, req stream.Request) {
	defer func() {
		cancel()
		c.mu.Lock()
		if c.done == done {
			c.cancel = nil
			c.done = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	start := time.Now()
	err := c.runner.RunTurn(ctx, req, func(fragment string) {
		if err := c.store.AppendFragment(turn, fragment); err != nil {
			// The turn was discarded underneath us, stop pulling from the service.
			cancel()
		}
	})

	errorText := ""
	switch {
	case err == nil:
		c.logger.Info("Turn completed",
			slog.Uint64("turn", turn.ID()),
			slog.Duration("took", time.Since(start)))
	case errors.Is(err, context.Canceled):
		c.logger.Info("Turn stopped", slog.Uint64("turn", turn.ID()))
	default:
		c.logger.Error("Turn failed",
			slog.Uint64("turn", turn.ID()),
			slog.String(errLoggerKey, err.Error()))
		errorText = c.cfg.ErrorText
	}

	// A stale turn is expected after a reset, the store already logged it.
	_ = c.store.FinalizeTurn(turn, errorText)
}

// Stop cancels the turn in flight. The reply keeps whatever was streamed before the cancellation. It
// reports whether there was a turn to stop.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Wait blocks until the turn in flight, if any, has been finalized.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Reset starts a new conversation in the current mode.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.resetLocked(ctx, func() error {
		c.store.Reset(c.store.Mode())
		return nil
	})
}

// SetMode switches to the mode identified by id and starts a new conversation in it. An unknown id
// leaves the conversation and any turn in flight untouched.
func (c *Controller) SetMode(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resetLocked(ctx, func() error {
		return c.store.SetMode(id)
	})
}

// resetLocked applies reset and, once it succeeded, cancels the turn in flight and archives the outgoing
// conversation. The reset leaves the pending handle stale, so the cancelled turn cannot write back.
func (c *Controller) resetLocked(ctx context.Context, reset func() error) error {
	outgoing := c.store.Snapshot()
	if err := reset(); err != nil {
		return err
	}
	if c.cancel != nil {
		c.cancel()
	}

	if c.cfg.Archive == nil || !models.HasUserTurn(outgoing.Messages) {
		return nil
	}
	t := models.Transcript{
		ID:         uuid.New().String(),
		Mode:       outgoing.Mode.ID,
		Messages:   outgoing.Messages,
		ArchivedAt: time.Now(),
	}
	if err := c.cfg.Archive.Save(ctx, t); err != nil {
		c.logger.Error("Failed to archive conversation",
			slog.String("transcript", t.ID),
			slog.String(errLoggerKey, err.Error()))
	}
	return nil
}

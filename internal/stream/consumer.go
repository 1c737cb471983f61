package stream

import (
	"context"
	"iter"
	"log/slog"

	"github.com/rimnsai/rimns-web-ui/internal/models"
)

// Generator represents a hosted text generation service. Stream opens one generation for the request and
// returns an iterator that yields text fragments in arrival order. Breaking out of the iterator, or
// cancelling ctx, aborts the underlying transport.
type Generator interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Request is the payload of one model turn.
type Request struct {
	// Instruction is the system instruction, already combined with the active mode.
	Instruction string
	// History is the full conversation up to and including the latest user message.
	History []models.Message
	Options Options
}

// Options are per-turn switches.
type Options struct {
	EnableWebSearch bool
}

// Consumer drives a Generator for a single turn and relays its fragments.
type Consumer struct {
	gen    Generator
	logger *slog.Logger
}

// NewConsumer creates a Consumer on top of gen.
func NewConsumer(gen Generator, logger *slog.Logger) Consumer {
	return Consumer{
		gen:    gen,
		logger: logger.With(slog.String("module", "stream")),
	}
}

// RunTurn opens a stream for req and calls onFragment synchronously for every non-empty fragment, in the
// order the transport delivers them. It returns nil when the stream ends normally, ctx.Err() when the turn
// was cancelled, and a *NetworkError for any transport or service failure. There is no retry.
func (c Consumer) RunTurn(ctx context.Context, req Request, onFragment func(string)) error {
	fragments := 0
	for fragment, err := range c.gen.Stream(ctx, req) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Stream failed",
				slog.Int("fragments", fragments),
				slog.String(errLoggerKey, err.Error()))
			return &NetworkError{Cause: err}
		}
		if fragment == "" {
			continue
		}
		fragments++
		onFragment(fragment)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Debug("Stream ended", slog.Int("fragments", fragments))
	return nil
}

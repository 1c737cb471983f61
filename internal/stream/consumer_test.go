package stream_test

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"testing"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	fragments []string
	err       error
	// cancel is invoked after the fragment at cancelAt has been yielded.
	cancel   context.CancelFunc
	cancelAt int

	got stream.Request
}

func (m *mockGenerator) Stream(ctx context.Context, req stream.Request) iter.Seq2[string, error] {
	m.got = req
	return func(yield func(string, error) bool) {
		for i, f := range m.fragments {
			if ctx.Err() != nil {
				return
			}
			if !yield(f, nil) {
				return
			}
			if m.cancel != nil && i == m.cancelAt {
				m.cancel()
			}
		}
		if m.err != nil {
			yield("", m.err)
		}
	}
}

func TestRunTurn(t *testing.T) {
	gen := &mockGenerator{fragments: []string{"Hel", "", "lo!"}}
	c := stream.NewConsumer(gen, slog.Default())

	req := stream.Request{
		Instruction: "be nice",
		History:     []models.Message{{Role: models.RoleUser, Text: "Hi"}},
		Options:     stream.Options{EnableWebSearch: true},
	}

	var got []string
	err := c.RunTurn(context.Background(), req, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo!"}, got)
	assert.Equal(t, req, gen.got)
}

func TestRunTurnNetworkError(t *testing.T) {
	cause := errors.New("quota exceeded")
	gen := &mockGenerator{fragments: []string{"partial"}, err: cause}
	c := stream.NewConsumer(gen, slog.Default())

	var got []string
	err := c.RunTurn(context.Background(), stream.Request{}, func(s string) { got = append(got, s) })

	var netErr *stream.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, []string{"partial"}, got)
}

func TestRunTurnCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &mockGenerator{
		fragments: []string{"a", "b", "c"},
		cancel:    cancel,
		cancelAt:  0,
		err:       context.Canceled,
	}
	c := stream.NewConsumer(gen, slog.Default())

	var got []string
	err := c.RunTurn(ctx, stream.Request{}, func(s string) { got = append(got, s) })
	require.ErrorIs(t, err, context.Canceled)

	var netErr *stream.NetworkError
	assert.False(t, errors.As(err, &netErr))
	assert.Equal(t, []string{"a"}, got)
}

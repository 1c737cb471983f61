package session_test

import (
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	"github.com/rimnsai/rimns-web-ui/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps []session.Snapshot
}

func (r *recorder) observe(s session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Snapshot(nil), r.snaps...)
}

func newSeededStore(t *testing.T) (*session.Store, *recorder) {
	t.Helper()

	s := session.NewStore(models.DefaultMode, slog.Default())
	s.Seed()
	rec := &recorder{}
	s.Subscribe(rec.observe)
	return s, rec
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestStoreSeed(t *testing.T) {
	s := session.NewStore(models.DefaultMode, slog.Default())
	assert.Empty(t, s.Snapshot().Messages)

	s.Seed()
	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, models.RoleModel, snap.Messages[0].Role)
	assert.Equal(t, models.Greeting(models.DefaultMode), snap.Messages[0].Text)

	require.NoError(t, s.AppendUser("Hi", nil))
	s.Seed()
	assert.Len(t, s.Snapshot().Messages, 2, "Seed must not touch a started conversation")
}

func TestStoreFullTurn(t *testing.T) {
	s, rec := newSeededStore(t)

	require.NoError(t, s.AppendUser("Hi", nil))
	assert.True(t, s.InFlight())

	turn, err := s.BeginModelTurn()
	require.NoError(t, err)
	assert.Equal(t, 2, turn.Index())

	require.NoError(t, s.AppendFragment(turn, "Hel"))
	require.NoError(t, s.AppendFragment(turn, "lo!"))
	require.NoError(t, s.FinalizeTurn(turn, ""))

	snap := s.Snapshot()
	assert.Equal(t, []string{models.Greeting(models.DefaultMode), "Hi", "Hello!"}, texts(snap.Messages))
	assert.Equal(t, []models.Role{models.RoleModel, models.RoleUser, models.RoleModel},
		[]models.Role{snap.Messages[0].Role, snap.Messages[1].Role, snap.Messages[2].Role})
	assert.False(t, s.InFlight())
	assert.Equal(t, session.OutcomeCompleted, snap.Outcome)

	snaps := rec.all()
	require.Len(t, snaps, 5)
	wantTransitions := []session.Transition{
		session.TransitionUser,
		session.TransitionModelTurn,
		session.TransitionFragment,
		session.TransitionFragment,
		session.TransitionFinalize,
	}
	wantStates := []session.TurnState{
		session.StateUserSubmitted,
		session.StateStreaming,
		session.StateStreaming,
		session.StateStreaming,
		session.StateIdle,
	}
	for i, snap := range snaps {
		assert.Equal(t, wantTransitions[i], snap.Transition, "snapshot %d", i)
		assert.Equal(t, wantStates[i], snap.State, "snapshot %d", i)
		assert.Equal(t, len(snap.Messages)-1, snap.Latest, "snapshot %d", i)
	}
	assert.Equal(t, "Hel", snaps[2].Messages[2].Text)
	assert.Equal(t, "Hello!", snaps[3].Messages[2].Text)
}

func TestStoreFragmentBoundaries(t *testing.T) {
	splits := [][]string{
		{"Hello, world"},
		{"H", "e", "l", "l", "o", ",", " ", "w", "o", "r", "l", "d"},
		{"Hello", "", ", ", "world"},
		{"", "Hello, wor", "ld", ""},
	}

	for _, fragments := range splits {
		t.Run(strings.Join(fragments, "|"), func(t *testing.T) {
			s, rec := newSeededStore(t)
			require.NoError(t, s.AppendUser("q", nil))
			turn, err := s.BeginModelTurn()
			require.NoError(t, err)

			nonEmpty := 0
			for _, f := range fragments {
				require.NoError(t, s.AppendFragment(turn, f))
				if f != "" {
					nonEmpty++
				}
			}
			require.NoError(t, s.FinalizeTurn(turn, ""))

			msg, ok := s.Message(turn.Index())
			require.True(t, ok)
			assert.Equal(t, "Hello, world", msg.Text)

			fragmentSnaps := 0
			for _, snap := range rec.all() {
				if snap.Transition == session.TransitionFragment {
					fragmentSnaps++
				}
			}
			assert.Equal(t, nonEmpty, fragmentSnaps, "one snapshot per non-empty fragment")
		})
	}
}

func TestStoreAppendUserRejects(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		prepare func(*session.Store)
		wantErr error
	}{
		{
			name:    "Empty",
			text:    "",
			wantErr: session.ErrEmptyMessage,
		},
		{
			name:    "Whitespace only",
			text:    " \n\t ",
			wantErr: session.ErrEmptyMessage,
		},
		{
			name: "While user turn pending",
			text: "again",
			prepare: func(s *session.Store) {
				_ = s.AppendUser("first", nil)
			},
			wantErr: session.ErrTurnInFlight,
		},
		{
			name: "While streaming",
			text: "again",
			prepare: func(s *session.Store) {
				_ = s.AppendUser("first", nil)
				_, _ = s.BeginModelTurn()
			},
			wantErr: session.ErrTurnInFlight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.NewStore(models.DefaultMode, slog.Default())
			s.Seed()
			if tt.prepare != nil {
				tt.prepare(s)
			}
			before := s.Snapshot()

			rec := &recorder{}
			s.Subscribe(rec.observe)

			err := s.AppendUser(tt.text, nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, s.Snapshot())
			assert.Empty(t, rec.all(), "rejections must not notify")
		})
	}
}

func TestStoreAppendUserKeepsTextAndImages(t *testing.T) {
	s, _ := newSeededStore(t)
	img := models.Image{MIMEType: "image/png", Data: "aGVsbG8="}

	require.NoError(t, s.AppendUser("  look at this  ", []models.Image{img}))

	msg, ok := s.Message(1)
	require.True(t, ok)
	assert.Equal(t, "  look at this  ", msg.Text)
	assert.Equal(t, []models.Image{img}, msg.Images)
}

func TestStoreBeginModelTurnRequiresUserTurn(t *testing.T) {
	s, _ := newSeededStore(t)

	_, err := s.BeginModelTurn()
	require.ErrorIs(t, err, session.ErrNoUserTurn)

	require.NoError(t, s.AppendUser("Hi", nil))
	_, err = s.BeginModelTurn()
	require.NoError(t, err)

	_, err = s.BeginModelTurn()
	require.ErrorIs(t, err, session.ErrTurnInFlight)
	assert.Len(t, s.Snapshot().Messages, 3, "only one placeholder may be pending")
}

func TestStoreFinalizeWithError(t *testing.T) {
	s, rec := newSeededStore(t)
	require.NoError(t, s.AppendUser("Hi", nil))
	turn, err := s.BeginModelTurn()
	require.NoError(t, err)
	require.NoError(t, s.AppendFragment(turn, "partial answer"))

	require.NoError(t, s.FinalizeTurn(turn, session.DefaultErrorText))

	snap := s.Snapshot()
	assert.Equal(t, session.DefaultErrorText, snap.Messages[turn.Index()].Text)
	assert.Equal(t, session.OutcomeFailed, snap.Outcome)
	assert.False(t, snap.InFlight())

	snaps := rec.all()
	last := snaps[len(snaps)-1]
	assert.Equal(t, session.TransitionFinalize, last.Transition)
	assert.Equal(t, session.OutcomeFailed, last.Outcome)
}

func TestStoreStaleTurn(t *testing.T) {
	s, _ := newSeededStore(t)

	require.ErrorIs(t, s.AppendFragment(session.Turn{}, "x"), session.ErrNoPendingTurn)
	require.ErrorIs(t, s.FinalizeTurn(session.Turn{}, ""), session.ErrNoPendingTurn)

	require.NoError(t, s.AppendUser("Hi", nil))
	first, err := s.BeginModelTurn()
	require.NoError(t, err)
	require.NoError(t, s.FinalizeTurn(first, ""))

	require.NoError(t, s.AppendUser("Again", nil))
	second, err := s.BeginModelTurn()
	require.NoError(t, err)

	require.ErrorIs(t, s.AppendFragment(first, "late"), session.ErrStaleTurn)
	require.ErrorIs(t, s.FinalizeTurn(first, ""), session.ErrStaleTurn)
	assert.True(t, s.InFlight())

	require.NoError(t, s.AppendFragment(second, "fresh"))
	msg, _ := s.Message(second.Index())
	assert.Equal(t, "fresh", msg.Text)
}

func TestStoreReset(t *testing.T) {
	s, rec := newSeededStore(t)
	require.NoError(t, s.AppendUser("Hi", nil))
	turn, err := s.BeginModelTurn()
	require.NoError(t, err)
	require.NoError(t, s.AppendFragment(turn, "Hel"))

	s.Reset(s.Mode())

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, models.RoleModel, snap.Messages[0].Role)
	assert.False(t, snap.InFlight())

	require.ErrorIs(t, s.AppendFragment(turn, "lo"), session.ErrNoPendingTurn)
	require.ErrorIs(t, s.FinalizeTurn(turn, ""), session.ErrNoPendingTurn)
	assert.Len(t, s.Snapshot().Messages, 1)

	snaps := rec.all()
	assert.Equal(t, session.TransitionReset, snaps[len(snaps)-1].Transition)
}

func TestStoreSetMode(t *testing.T) {
	s, _ := newSeededStore(t)
	require.NoError(t, s.AppendUser("Hi", nil))

	require.NoError(t, s.SetMode("coding"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "coding", snap.Mode.ID)
	assert.Contains(t, snap.Messages[0].Text, "Coding")

	err := s.SetMode("poetry")
	require.ErrorIs(t, err, session.ErrUnknownMode)
	assert.Equal(t, "coding", s.Mode().ID)
}

func TestStoreSnapshotsAreImmutable(t *testing.T) {
	s, rec := newSeededStore(t)
	require.NoError(t, s.AppendUser("Hi", nil))
	turn, err := s.BeginModelTurn()
	require.NoError(t, err)
	require.NoError(t, s.AppendFragment(turn, "a"))
	require.NoError(t, s.AppendFragment(turn, "b"))

	snaps := rec.all()
	assert.Equal(t, "", snaps[1].Messages[2].Text)
	assert.Equal(t, "a", snaps[2].Messages[2].Text)
	assert.Equal(t, "ab", snaps[3].Messages[2].Text)

	snaps[3].Messages[2].Text = "mutated"
	msg, _ := s.Message(2)
	assert.Equal(t, "ab", msg.Text)
}

func TestStoreUnsubscribe(t *testing.T) {
	s := session.NewStore(models.DefaultMode, slog.Default())
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.observe)

	s.Seed()
	unsubscribe()
	s.Reset(models.DefaultMode)

	assert.Len(t, rec.all(), 1)
}

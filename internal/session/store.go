package session

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rimnsai/rimns-web-ui/internal/models"
)

// Observer receives every Snapshot the store produces, synchronously and in transition order. Observers
// must not call mutating Store methods.
type Observer func(Snapshot)

// Snapshot is an immutable view of the store taken right after a transition.
type Snapshot struct {
	Mode     models.Mode
	Messages []models.Message
	State    TurnState
	Outcome  Outcome
	// Latest is the index of the message the transition touched, or -1 for an empty conversation.
	Latest     int
	Transition Transition
}

// InFlight reports whether a model turn was pending when the snapshot was taken.
func (s Snapshot) InFlight() bool {
	return s.State != StateIdle
}

// Store is the single source of truth for one conversation. It holds the ordered messages, the active
// mode, and the pending model turn, and it notifies observers on every transition.
//
// Transitions are serialized, so a Store may be shared between the goroutine streaming a model turn and
// the HTTP handlers serving the same session.
type Store struct {
	// transitionMu serializes a transition together with its notification, so observers see snapshots
	// in the order the transitions happened.
	transitionMu sync.Mutex

	mu       sync.RWMutex
	mode     models.Mode
	messages []models.Message
	state    TurnState
	outcome  Outcome
	pending  *Turn
	seq      uint64

	observers   []observerEntry
	nextObserve int

	logger *slog.Logger
}

type observerEntry struct {
	id int
	fn Observer
}

// NewStore creates an empty store in the given mode. Call Seed or Reset to put the greeting in place.
func NewStore(mode models.Mode, logger *slog.Logger) *Store {
	return &Store{
		mode:   mode,
		state:  StateIdle,
		logger: logger.With(slog.String("module", "session")),
	}
}

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObserve
	s.nextObserve++
	s.observers = append(s.observers, observerEntry{id: id, fn: o})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(e observerEntry) bool { return e.id == id })
	}
}

// Seed puts the greeting of the current mode in place if the conversation is still empty.
func (s *Store) Seed() {
	_ = s.transition(func() (Transition, error) {
		if len(s.messages) > 0 {
			return transitionNone, nil
		}
		s.resetLocked(s.mode)
		return TransitionReset, nil
	})
}

// Reset replaces the conversation with the single greeting of mode. A pending turn is dropped and its
// handle becomes stale.
func (s *Store) Reset(mode models.Mode) {
	_ = s.transition(func() (Transition, error) {
		s.resetLocked(mode)
		return TransitionReset, nil
	})
}

// SetMode switches to the mode identified by id and resets the conversation.
func (s *Store) SetMode(id string) error {
	mode, ok := models.ModeByID(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, id)
	}
	s.Reset(mode)
	return nil
}

func (s *Store) resetLocked(mode models.Mode) {
	if s.pending != nil {
		s.logger.Info("Discarding pending turn", slog.Uint64("turn", s.pending.id))
	}
	s.mode = mode
	s.messages = []models.Message{{Role: models.RoleModel, Text: models.Greeting(mode)}}
	s.pending = nil
	s.state = StateIdle
	s.outcome = OutcomeNone
}

// AppendUser appends a user message. The text is stored as given, but it must contain something other
// than whitespace. Submissions are rejected while a model turn is in flight. A rejected call leaves the
// store untouched.
func (s *Store) AppendUser(text string, images []models.Image) error {
	return s.transition(func() (Transition, error) {
		if strings.TrimSpace(text) == "" {
			return transitionNone, ErrEmptyMessage
		}
		if s.state != StateIdle {
			return transitionNone, ErrTurnInFlight
		}
		s.messages = append(s.messages, models.Message{
			Role:   models.RoleUser,
			Text:   text,
			Images: slices.Clone(images),
		})
		s.state = StateUserSubmitted
		s.outcome = OutcomeNone
		return TransitionUser, nil
	})
}

// BeginModelTurn appends an empty model placeholder right after the accepted user message and returns the
// handle of the new turn.
func (s *Store) BeginModelTurn() (Turn, error) {
	var t Turn
	err := s.transition(func() (Transition, error) {
		if s.pending != nil {
			return transitionNone, ErrTurnInFlight
		}
		if s.state != StateUserSubmitted {
			return transitionNone, ErrNoUserTurn
		}
		s.seq++
		t = Turn{id: s.seq, index: len(s.messages)}
		s.messages = append(s.messages, models.Message{Role: models.RoleModel})
		s.pending = &t
		s.state = StateStreaming
		return TransitionModelTurn, nil
	})
	return t, err
}

// AppendFragment concatenates fragment onto the placeholder of turn t. Empty fragments are ignored and do
// not produce a snapshot.
func (s *Store) AppendFragment(t Turn, fragment string) error {
	err := s.transition(func() (Transition, error) {
		if err := s.checkTurnLocked(t); err != nil {
			return transitionNone, err
		}
		if fragment == "" {
			return transitionNone, nil
		}
		s.messages[t.index].Text += fragment
		return TransitionFragment, nil
	})
	if err != nil {
		s.logger.Warn("Dropping fragment", slog.Uint64("turn", t.id), slog.String(errLoggerKey, err.Error()))
	}
	return err
}

// FinalizeTurn ends turn t. A non-empty errorText replaces whatever was streamed so far and marks the turn
// as failed, otherwise the streamed text is kept. Either way the store returns to idle.
func (s *Store) FinalizeTurn(t Turn, errorText string) error {
	err := s.transition(func() (Transition, error) {
		if err := s.checkTurnLocked(t); err != nil {
			return transitionNone, err
		}
		s.outcome = OutcomeCompleted
		if errorText != "" {
			s.messages[t.index].Text = errorText
			s.outcome = OutcomeFailed
		}
		s.pending = nil
		s.state = StateIdle
		return TransitionFinalize, nil
	})
	if err != nil {
		s.logger.Warn("Ignoring finalize", slog.Uint64("turn", t.id), slog.String(errLoggerKey, err.Error()))
	}
	return err
}

func (s *Store) checkTurnLocked(t Turn) error {
	if s.pending == nil {
		return ErrNoPendingTurn
	}
	if *s.pending != t {
		return ErrStaleTurn
	}
	return nil
}

// History returns the conversation preceding the placeholder of turn t, which is what the model is asked
// to answer.
func (s *Store) History(t Turn) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkTurnLocked(t); err != nil {
		return nil, err
	}
	return cloneMessages(s.messages[:t.index]), nil
}

// Snapshot returns the current state of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked(transitionNone)
}

// Mode returns the active mode.
func (s *Store) Mode() models.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mode
}

// InFlight reports whether a submission has been accepted and its model turn is not finalized yet.
func (s *Store) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state != StateIdle
}

// Message returns the message at index i.
func (s *Store) Message(i int) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.messages) {
		return models.Message{}, false
	}
	m := s.messages[i]
	m.Images = slices.Clone(m.Images)
	return m, true
}

func (s *Store) snapshotLocked(tr Transition) Snapshot {
	return Snapshot{
		Mode:       s.mode,
		Messages:   cloneMessages(s.messages),
		State:      s.state,
		Outcome:    s.outcome,
		Latest:     len(s.messages) - 1,
		Transition: tr,
	}
}

// transition applies fn under the store locks and, unless fn reports transitionNone or an error, delivers
// the resulting snapshot to every observer before returning.
func (s *Store) transition(fn func() (Transition, error)) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	tr, err := fn()
	if err != nil || tr == transitionNone {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked(tr)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	s.logger.Debug("Transition",
		slog.String("transition", tr.String()),
		slog.String("state", snap.State.String()),
		slog.Int("messages", len(snap.Messages)))

	for _, o := range observers {
		o.fn(snap)
	}
	return nil
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.Images = slices.Clone(m.Images)
		out[i] = m
	}
	return out
}

package session

import "errors"

const errLoggerKey = "err"

var (
	// ErrEmptyMessage is returned when the submitted text is empty after trimming whitespace.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight is returned when a submission arrives while a model turn is still pending.
	ErrTurnInFlight = errors.New("a model turn is already in flight")
	// ErrNoUserTurn is returned by BeginModelTurn when it is not directly preceded by an accepted user turn.
	ErrNoUserTurn = errors.New("no user turn to answer")
	// ErrNoPendingTurn is returned when a fragment or finalize arrives while no model turn is pending.
	ErrNoPendingTurn = errors.New("no model turn is pending")
	// ErrStaleTurn is returned when the turn handle does not match the pending turn, for example after a
	// reset discarded it.
	ErrStaleTurn = errors.New("turn handle is stale")
	// ErrUnknownMode is returned when switching to a mode that does not exist.
	ErrUnknownMode = errors.New("unknown mode")
)

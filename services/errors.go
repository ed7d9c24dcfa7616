package services

import "errors"

// Engine error taxonomy. Handlers and the websocket hub translate these at
// the boundary; state is never left partially mutated when one is returned.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPackageNotFound    = errors.New("package not found")
	ErrSessionNotJoinable = errors.New("session is not accepting players")
	ErrInvalidTransition  = errors.New("command not allowed in current session status")
	ErrNotYourTurn        = errors.New("it is not this player's turn")
	ErrSelectionExhausted = errors.New("no candidate songs left")
	ErrExternalFetch      = errors.New("external playlist fetch failed")
)

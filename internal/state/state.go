package state

import "context"

// Store keeps per-user conversation state that must survive between update
// handlers: buffered message fragments waiting for the quiet-period reply,
// the monotonic token that invalidates stale reply timers, and the pause and
// block flags set by moderators.
type Store interface {
	// AppendPending buffers one inbound fragment and returns the new token.
	// Every append advances the token, so a reply scheduled for an older
	// token knows a newer message arrived.
	AppendPending(ctx context.Context, userID int64, text string) (int64, error)

	// PendingSnapshot returns the buffered fragments and the current token.
	PendingSnapshot(ctx context.Context, userID int64) ([]string, int64, error)

	CurrentToken(ctx context.Context, userID int64) (int64, error)

	// ClearPendingIf drops the buffered fragments only when the token is
	// still the expected one. false means a newer fragment arrived and its
	// own reply timer owns the buffer now.
	ClearPendingIf(ctx context.Context, userID int64, token int64) (bool, error)

	SetPaused(ctx context.Context, userID int64, paused bool) error
	IsPaused(ctx context.Context, userID int64) (bool, error)

	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	IsBlocked(ctx context.Context, userID int64) (bool, error)
}

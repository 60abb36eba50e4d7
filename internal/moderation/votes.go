package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
)

// MaxVoteCommentLength is the maximum length of a vote comment, in runes.
const MaxVoteCommentLength = 1000

// CastVote records or replaces the actor's vote on an open session. Only the
// latest value is kept and vote changes are not audited.
func (e *Engine) CastVote(ctx context.Context, actorID int64, sessionID int64, value VoteValue, comment string) (*Vote, error) {
	if err := e.authorize(ctx, actorID, CapReviewVote); err != nil {
		return nil, err
	}
	if !value.Valid() {
		return nil, invalidArg("vote must be %q or %q, got %q", VoteKeep, VoteRemove, value)
	}
	comment = strings.TrimSpace(comment)
	if len([]rune(comment)) > MaxVoteCommentLength {
		return nil, invalidArg("comment is longer than %d characters", MaxVoteCommentLength)
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrSessionClosed)
	}

	now := e.clock()
	vote := &Vote{
		SessionID: int64Ptr(sessionID),
		VoterID:   actorID,
		Value:     value,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// The upsert re-checks that the session is open in the same statement,
	// so a vote racing a close is rejected rather than written late.
	if err := e.store.UpsertVote(ctx, vote); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, fmt.Errorf("session %d: %w", sessionID, err)
		}
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	metrics.VotesCastTotal.WithLabelValues(string(value)).Inc()
	log.Debug().
		Int64("session_id", sessionID).
		Int64("voter_id", actorID).
		Str("value", string(value)).
		Msg("moderation: vote cast")
	return vote, nil
}

// ListVotes returns the current votes on a session.
func (e *Engine) ListVotes(ctx context.Context, actorID int64, sessionID int64) ([]Vote, error) {
	if err := e.authorize(ctx, actorID, CapReviewView); err != nil {
		return nil, err
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	votes, err := e.store.ListVotes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

// Tally counts the current votes on a session.
func (e *Engine) Tally(ctx context.Context, actorID int64, sessionID int64) (Tally, error) {
	if err := e.authorize(ctx, actorID, CapReviewView); err != nil {
		return Tally{}, err
	}
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return Tally{}, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	tally, err := e.store.TallyVotes(ctx, sessionID)
	if err != nil {
		return Tally{}, fmt.Errorf("tally votes: %w", err)
	}
	return tally, nil
}

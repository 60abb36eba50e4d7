package moderation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		tally         Tally
		extensionUsed bool
		want          Decision
	}{
		{"keep majority", Tally{Keep: 3}, false, Decision{DecideClose, OutcomeKeep, CloseReasonMajority}},
		{"remove majority", Tally{Remove: 3}, false, Decision{DecideClose, OutcomeRemove, CloseReasonMajority}},
		{"split majority", Tally{Keep: 2, Remove: 1}, false, Decision{DecideClose, OutcomeKeep, CloseReasonMajority}},
		{"majority after extension", Tally{Keep: 1, Remove: 2}, true, Decision{DecideClose, OutcomeRemove, CloseReasonMajority}},
		{"tie extends", Tally{Keep: 2, Remove: 2}, false, Decision{Kind: DecideExtend}},
		{"below quorum extends", Tally{Keep: 1, Remove: 1}, false, Decision{Kind: DecideExtend}},
		{"no votes extends", Tally{}, false, Decision{Kind: DecideExtend}},
		{"tie after extension keeps", Tally{Keep: 2, Remove: 2}, true, Decision{DecideClose, OutcomeKeep, CloseReasonDefault}},
		{"below quorum after extension keeps", Tally{Remove: 2}, true, Decision{DecideClose, OutcomeKeep, CloseReasonDefault}},
		{"no votes after extension keeps", Tally{}, true, Decision{DecideClose, OutcomeKeep, CloseReasonDefault}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.tally, tt.extensionUsed, DefaultQuorum))
		})
	}
}

func TestDecide_QuorumOfOne(t *testing.T) {
	assert.Equal(t, Decision{DecideClose, OutcomeRemove, CloseReasonMajority}, Decide(Tally{Remove: 1}, false, 1))
	assert.Equal(t, Decision{Kind: DecideExtend}, Decide(Tally{}, false, 1))
}

func TestSweepSummaryErr(t *testing.T) {
	var s SweepSummary
	assert.NoError(t, s.Err())

	s.Errors = []SessionError{{SessionID: 4, ContentID: 9, Err: ErrUpstream}}
	err := s.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "session 4 (content 9)")
}

func TestWindowFor(t *testing.T) {
	d, err := windowFor(nil, DefaultReviewWindow)
	require.NoError(t, err)
	assert.Equal(t, DefaultReviewWindow, d)

	two := 2
	d, err = windowFor(&two, DefaultReviewWindow)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	maxDays := MaxDeadlineDays
	d, err = windowFor(&maxDays, DefaultReviewWindow)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(MaxDeadlineDays)*24*time.Hour, d)

	for _, days := range []int{-1, 0, MaxDeadlineDays + 1, 200000} {
		_, err = windowFor(&days, DefaultReviewWindow)
		assert.ErrorIs(t, err, ErrInvalidArgument, "days=%d", days)
	}
}

func TestDecodeDetails(t *testing.T) {
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	known := []ActionDetails{
		ReportDismissDetails{Notes: "dup", RejectedSuggestions: 2},
		ReportActionDetails{PreviousStatus: VisibilityActive, NewStatus: VisibilityHidden},
		ReviewStartDetails{Type: ReviewAppropriateness, Deadline: deadline, Escalated: true, PreviousStatus: VisibilityHidden},
		ReviewCloseDetails{Outcome: OutcomeRemove, Reason: CloseReasonMajority, KeepVotes: 1, RemoveVotes: 3, Automatic: true},
		ReviewExtendDetails{PreviousDeadline: deadline, NewDeadline: deadline.Add(DefaultExtensionWindow), KeepVotes: 2, RemoveVotes: 2},
		TagSuggestionApplyDetails{Added: []int64{4}, Removed: []int64{}, Skipped: []int64{}, Rejected: []int64{7, 8}},
		ContentPurgeDetails{Reports: 3, Sessions: 1},
	}
	for _, d := range known {
		t.Run(string(d.ActionType()), func(t *testing.T) {
			raw, err := json.Marshal(d)
			require.NoError(t, err)
			got, err := DecodeDetails(d.ActionType(), raw)
			require.NoError(t, err)
			assert.Equal(t, d, got)
		})
	}

	t.Run("unknown type keeps the raw payload", func(t *testing.T) {
		got, err := DecodeDetails("comment_hide", []byte(`{"comment_id":12}`))
		require.NoError(t, err)
		unknown, ok := got.(UnknownDetails)
		require.True(t, ok)
		assert.Equal(t, ActionType("comment_hide"), unknown.ActionType())

		out, err := json.Marshal(unknown)
		require.NoError(t, err)
		assert.JSONEq(t, `{"comment_id":12}`, string(out))
	})

	t.Run("empty payload", func(t *testing.T) {
		got, err := DecodeDetails(ActionReviewVote, nil)
		require.NoError(t, err)
		assert.Equal(t, ReviewVoteDetails{}, got)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodeDetails(ActionReviewClose, []byte(`{"keep_votes":"many"}`))
		assert.Error(t, err)
	})
}

func TestParsers(t *testing.T) {
	assert.Equal(t, CategorySpam, ParseReportCategory("spam"))
	assert.Equal(t, CategoryOther, ParseReportCategory("SPAM"))
	assert.Equal(t, ActionReviewExtend, ParseActionType("review_extend"))
	assert.Equal(t, ActionUnknown, ParseActionType("image_delete"))
	assert.Equal(t, ReviewTypeUnknown, ParseReviewType("copyright"))
}

func TestFilterSuggestions(t *testing.T) {
	keep, skipped := filterSuggestions([]SuggestionInput{
		{TagID: 3, Direction: TagAdd},
		{TagID: 3, Direction: TagRemove},
		{TagID: 3, Direction: TagAdd},
		{TagID: 1, Direction: TagRemove},
	}, []int64{1})

	assert.Equal(t, []SuggestionInput{{TagID: 3, Direction: TagAdd}, {TagID: 1, Direction: TagRemove}}, keep)
	require.Len(t, skipped, 2)
	assert.Equal(t, SkipNotTagged, skipped[0].Reason)
	assert.Equal(t, SkipDuplicate, skipped[1].Reason)
}

func TestCleanReason(t *testing.T) {
	assert.Equal(t, "hi", cleanReason("  hi\n"))
	assert.Empty(t, cleanReason("   "))
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tangled.org/booru.social/booru/internal/moderation"
)

// timeLayout is fixed width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func ptrInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

// dbtx is the common subset of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements moderation.Queries over a connection or a transaction.
type queries struct {
	db   dbtx
	tids *syntax.TIDClock
}

// ModerationStore implements moderation.Store using SQLite.
type ModerationStore struct {
	*queries
	db *sql.DB
}

// NewModerationStore creates a ModerationStore backed by the given database.
// The database must already have the moderation schema applied (see Open).
func NewModerationStore(db *sql.DB) *ModerationStore {
	clock := syntax.NewTIDClock(0)
	return &ModerationStore{
		queries: &queries{db: db, tids: clock},
		db:      db,
	}
}

// Ensure ModerationStore implements the interface at compile time.
var _ moderation.Store = (*ModerationStore)(nil)

// RunInTx runs fn in a transaction. The connection string makes every
// transaction take the write lock at BEGIN.
func (s *ModerationStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx moderation.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, &queries{db: tx, tids: s.tids}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ========== Reports ==========

const reportColumns = `id, content_id, reporter_id, category, reason, status, admin_notes, reviewer_id, reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*moderation.Report, error) {
	var r moderation.Report
	var category, status, createdAt string
	var reviewer sql.NullInt64
	var reviewedAt sql.NullString
	if err := row.Scan(&r.ID, &r.ContentID, &r.ReporterID, &category, &r.Reason, &status,
		&r.AdminNotes, &reviewer, &reviewedAt, &createdAt); err != nil {
		return nil, err
	}
	r.Category = moderation.ParseReportCategory(category)
	r.Status = moderation.ReportStatus(status)
	r.ReviewerID = ptrInt(reviewer)
	var err error
	if r.ReviewedAt, err = parseNullTime(reviewedAt); err != nil {
		return nil, fmt.Errorf("report %d reviewed_at: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("report %d created_at: %w", r.ID, err)
	}
	return &r, nil
}

func (q *queries) CreateReport(ctx context.Context, report *moderation.Report) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO reports (content_id, reporter_id, category, reason, status, admin_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, report.ContentID, report.ReporterID, string(report.Category), report.Reason,
		string(report.Status), report.AdminNotes, formatTime(report.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return moderation.ErrDuplicateReport
		}
		return fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	report.ID = id
	return nil
}

func (q *queries) GetReport(ctx context.Context, id int64) (*moderation.Report, error) {
	r, err := scanReport(q.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, moderation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (q *queries) ListReports(ctx context.Context, filter moderation.ReportFilter) ([]moderation.Report, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.ContentID != 0 {
		where = append(where, "content_id = ?")
		args = append(args, filter.ContentID)
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []moderation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (q *queries) ResolveReport(ctx context.Context, id int64, params moderation.ResolveParams) error {
	if params.Status == moderation.ReportStatusPending {
		return fmt.Errorf("resolve report %d: target status must not be pending", id)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE reports
		SET status = ?, reviewer_id = ?, admin_notes = ?, reviewed_at = ?
		WHERE id = ? AND status = 'pending'
	`, string(params.Status), params.ReviewerID, params.Notes, formatTime(params.ReviewedAt), id)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	return q.checkCAS(ctx, res, `SELECT 1 FROM reports WHERE id = ?`, id, "report")
}

// checkCAS turns a zero-row conditional update into ErrStale, or ErrNotFound
// when the row does not exist at all.
func (q *queries) checkCAS(ctx context.Context, res sql.Result, existsQuery string, id int64, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = q.db.QueryRowContext(ctx, existsQuery, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, moderation.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s %d: %w", what, id, moderation.ErrStale)
}

// ========== Tag suggestions ==========

func (q *queries) CreateTagSuggestions(ctx context.Context, suggestions []moderation.TagSuggestion) error {
	for i := range suggestions {
		s := &suggestions[i]
		if s.Decision == "" {
			s.Decision = moderation.DecisionPending
		}
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO tag_suggestions (report_id, tag_id, direction, decision)
			VALUES (?, ?, ?, ?)
		`, s.ReportID, s.TagID, string(s.Direction), string(s.Decision))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("tag suggestion %d/%s: %w", s.TagID, s.Direction, moderation.ErrConflict)
			}
			return fmt.Errorf("insert tag suggestion: %w", err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert tag suggestion: %w", err)
		}
	}
	return nil
}

func (q *queries) ListTagSuggestions(ctx context.Context, reportID int64) ([]moderation.TagSuggestion, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, report_id, tag_id, direction, decision
		FROM tag_suggestions WHERE report_id = ? ORDER BY id
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list tag suggestions: %w", err)
	}
	defer rows.Close()

	var out []moderation.TagSuggestion
	for rows.Next() {
		var s moderation.TagSuggestion
		var direction, decision string
		if err := rows.Scan(&s.ID, &s.ReportID, &s.TagID, &direction, &decision); err != nil {
			return nil, fmt.Errorf("scan tag suggestion: %w", err)
		}
		s.Direction = moderation.TagDirection(direction)
		s.Decision = moderation.SuggestionDecision(decision)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) DecideTagSuggestion(ctx context.Context, id int64, decision moderation.SuggestionDecision) error {
	if decision == moderation.DecisionPending {
		return fmt.Errorf("decide tag suggestion %d: decision must not be pending", id)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE tag_suggestions SET decision = ? WHERE id = ? AND decision = 'pending'
	`, string(decision), id)
	if err != nil {
		return fmt.Errorf("decide tag suggestion: %w", err)
	}
	return q.checkCAS(ctx, res, `SELECT 1 FROM tag_suggestions WHERE id = ?`, id, "tag suggestion")
}

func (q *queries) RejectPendingTagSuggestions(ctx context.Context, reportID int64) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tag_suggestions SET decision = 'rejected' WHERE report_id = ? AND decision = 'pending'
	`, reportID)
	if err != nil {
		return 0, fmt.Errorf("reject tag suggestions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ========== Review sessions ==========

const sessionColumns = `id, content_id, source_report_id, initiator_id, type, deadline, extension_used, status, outcome, created_at, closed_at`

func scanSession(row rowScanner) (*moderation.ReviewSession, error) {
	var s moderation.ReviewSession
	var source sql.NullInt64
	var typ, deadline, status, outcome, createdAt string
	var extended int
	var closedAt sql.NullString
	if err := row.Scan(&s.ID, &s.ContentID, &source, &s.InitiatorID, &typ, &deadline, &extended,
		&status, &outcome, &createdAt, &closedAt); err != nil {
		return nil, err
	}
	s.SourceReportID = ptrInt(source)
	s.Type = moderation.ParseReviewType(typ)
	s.ExtensionUsed = extended == 1
	s.Status = moderation.SessionStatus(status)
	s.Outcome = moderation.Outcome(outcome)
	var err error
	if s.Deadline, err = parseTime(deadline); err != nil {
		return nil, fmt.Errorf("session %d deadline: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("session %d created_at: %w", s.ID, err)
	}
	if s.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("session %d closed_at: %w", s.ID, err)
	}
	return &s, nil
}

func (q *queries) listSessions(ctx context.Context, query string, args ...any) ([]moderation.ReviewSession, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []moderation.ReviewSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (q *queries) CreateSession(ctx context.Context, session *moderation.ReviewSession) error {
	extended := 0
	if session.ExtensionUsed {
		extended = 1
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO review_sessions
			(content_id, source_report_id, initiator_id, type, deadline, extension_used, status, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ContentID, nullInt(session.SourceReportID), session.InitiatorID, string(session.Type),
		formatTime(session.Deadline), extended, string(session.Status), string(session.Outcome),
		formatTime(session.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return moderation.ErrSessionOpen
		}
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.ID = id
	return nil
}

func (q *queries) GetSession(ctx context.Context, id int64) (*moderation.ReviewSession, error) {
	s, err := scanSession(q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM review_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, moderation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (q *queries) FindOpenSession(ctx context.Context, contentID int64) (*moderation.ReviewSession, error) {
	s, err := scanSession(q.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM review_sessions WHERE content_id = ? AND status = 'open'
	`, contentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open session for content %d: %w", contentID, moderation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return s, nil
}

func (q *queries) ListSessions(ctx context.Context, status moderation.SessionStatus) ([]moderation.ReviewSession, error) {
	if status == "" {
		return q.listSessions(ctx, `SELECT `+sessionColumns+` FROM review_sessions ORDER BY created_at DESC, id DESC`)
	}
	return q.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM review_sessions WHERE status = ? ORDER BY created_at DESC, id DESC
	`, string(status))
}

func (q *queries) ListExpiredSessions(ctx context.Context, now time.Time) ([]moderation.ReviewSession, error) {
	return q.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM review_sessions
		WHERE status = 'open' AND deadline < ?
		ORDER BY deadline, id
	`, formatTime(now))
}

func (q *queries) CloseSession(ctx context.Context, id int64, params moderation.CloseParams) error {
	if !params.Outcome.Valid() {
		return fmt.Errorf("close session %d: invalid outcome %q", id, params.Outcome)
	}
	query := `
		UPDATE review_sessions SET status = 'closed', outcome = ?, closed_at = ?
		WHERE id = ? AND status = 'open'`
	args := []any{string(params.Outcome), formatTime(params.ClosedAt), id}
	if params.ExpectDeadline != nil {
		query += ` AND deadline = ?`
		args = append(args, formatTime(*params.ExpectDeadline))
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return q.checkCAS(ctx, res, `SELECT 1 FROM review_sessions WHERE id = ?`, id, "session")
}

func (q *queries) ExtendSession(ctx context.Context, id int64, from, to time.Time) error {
	if !to.After(from) {
		return fmt.Errorf("extend session %d: new deadline %s is not after %s", id, to, from)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE review_sessions SET deadline = ?, extension_used = 1
		WHERE id = ? AND status = 'open' AND extension_used = 0 AND deadline = ?
	`, formatTime(to), id, formatTime(from))
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	return q.checkCAS(ctx, res, `SELECT 1 FROM review_sessions WHERE id = ?`, id, "session")
}

// ========== Votes ==========

// UpsertVote writes the vote only while its session is open, in one
// statement, so a vote cannot land after the close that froze the tally.
func (q *queries) UpsertVote(ctx context.Context, vote *moderation.Vote) error {
	if vote.SessionID == nil {
		return fmt.Errorf("upsert vote: session id is required")
	}
	var createdAt string
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO votes (session_id, voter_id, value, comment, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM review_sessions WHERE id = ? AND status = 'open')
		ON CONFLICT (session_id, voter_id) DO UPDATE SET
			value      = excluded.value,
			comment    = excluded.comment,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`, *vote.SessionID, vote.VoterID, string(vote.Value), vote.Comment,
		formatTime(vote.CreatedAt), formatTime(vote.UpdatedAt), *vote.SessionID).Scan(&vote.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.ErrSessionClosed
	}
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	if vote.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("vote created_at: %w", err)
	}
	return nil
}

func (q *queries) ListVotes(ctx context.Context, sessionID int64) ([]moderation.Vote, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, session_id, voter_id, value, comment, created_at, updated_at
		FROM votes WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []moderation.Vote
	for rows.Next() {
		var v moderation.Vote
		var session sql.NullInt64
		var value, createdAt, updatedAt string
		if err := rows.Scan(&v.ID, &session, &v.VoterID, &value, &v.Comment, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.SessionID = ptrInt(session)
		v.Value = moderation.VoteValue(value)
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("vote %d created_at: %w", v.ID, err)
		}
		if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("vote %d updated_at: %w", v.ID, err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (q *queries) TallyVotes(ctx context.Context, sessionID int64) (moderation.Tally, error) {
	var t moderation.Tally
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN value = 'keep' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN value = 'remove' THEN 1 ELSE 0 END), 0)
		FROM votes WHERE session_id = ?
	`, sessionID).Scan(&t.Keep, &t.Remove)
	if err != nil {
		return moderation.Tally{}, fmt.Errorf("tally votes: %w", err)
	}
	return t, nil
}

// ========== Audit Log ==========

func (q *queries) AppendAction(ctx context.Context, action *moderation.AdminAction) error {
	if action.ID == "" {
		action.ID = q.tids.Next().String()
	}
	details := []byte("{}")
	if action.Details != nil {
		var err error
		if details, err = json.Marshal(action.Details); err != nil {
			return fmt.Errorf("marshal action details: %w", err)
		}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO admin_actions (id, actor_id, action_type, report_id, session_id, content_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, action.ID, nullInt(action.Actor.Ptr()), string(action.Type), nullInt(action.ReportID),
		nullInt(action.SessionID), nullInt(action.ContentID), string(details), formatTime(action.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert admin action: %w", err)
	}
	return nil
}

func (q *queries) ListActions(ctx context.Context, filter moderation.ActionFilter) ([]moderation.AdminAction, error) {
	var where []string
	var args []any
	if filter.ReportID != 0 {
		where = append(where, "report_id = ?")
		args = append(args, filter.ReportID)
	}
	if filter.SessionID != 0 {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ContentID != 0 {
		where = append(where, "content_id = ?")
		args = append(args, filter.ContentID)
	}
	if filter.Type != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `SELECT id, actor_id, action_type, report_id, session_id, content_id, details, created_at FROM admin_actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list admin actions: %w", err)
	}
	defer rows.Close()

	var actions []moderation.AdminAction
	for rows.Next() {
		var a moderation.AdminAction
		var actor, report, session, content sql.NullInt64
		var actionType, details, createdAt string
		if err := rows.Scan(&a.ID, &actor, &actionType, &report, &session, &content, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan admin action: %w", err)
		}
		a.Actor = moderation.ActorFromPtr(ptrInt(actor))
		a.Type = moderation.ParseActionType(actionType)
		a.ReportID = ptrInt(report)
		a.SessionID = ptrInt(session)
		a.ContentID = ptrInt(content)
		if a.Details, err = moderation.DecodeDetails(moderation.ActionType(actionType), []byte(details)); err != nil {
			return nil, fmt.Errorf("admin action %s: %w", a.ID, err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("admin action %s created_at: %w", a.ID, err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ========== Housekeeping ==========

func (q *queries) PurgeContent(ctx context.Context, contentID int64) (reports, sessions int, err error) {
	// Sessions first: their source_report_id would otherwise be nulled one row at a time.
	res, err := q.db.ExecContext(ctx, `DELETE FROM review_sessions WHERE content_id = ?`, contentID)
	if err != nil {
		return 0, 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	sessions = int(n)

	res, err = q.db.ExecContext(ctx, `DELETE FROM reports WHERE content_id = ?`, contentID)
	if err != nil {
		return 0, 0, fmt.Errorf("purge reports: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}
	reports = int(n)
	return reports, sessions, nil
}

func (q *queries) Stats(ctx context.Context, now time.Time) (moderation.Stats, error) {
	var s moderation.Stats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reports WHERE status = 'pending'),
			(SELECT COUNT(*) FROM review_sessions WHERE status = 'open'),
			(SELECT COUNT(*) FROM review_sessions WHERE status = 'open' AND deadline < ?)
	`, formatTime(now)).Scan(&s.PendingReports, &s.OpenSessions, &s.ExpiredOpen)
	if err != nil {
		return moderation.Stats{}, fmt.Errorf("moderation stats: %w", err)
	}
	return s, nil
}

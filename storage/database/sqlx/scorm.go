package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

const (
	sessionColumns = `id, package_id, user_id, version, state, created_at, last_activity_at, terminated_at`

	trackingColumns = `session_id, version, revision, lesson_location, lesson_status, completion_status,
	success_status, score_raw, score_min, score_max, score_scaled, total_time, session_time, suspend_data,
	launch_data, entry, exit, learner_id, learner_name, credit, mode, updated_at`

	insertSessionQuery = `INSERT INTO scorm_session (` + sessionColumns + `)
	VALUES (:id, :package_id, :user_id, :version, :state, :created_at, :last_activity_at, :terminated_at)`

	insertTrackingQuery = `INSERT INTO scorm_tracking (` + trackingColumns + `)
	VALUES (:session_id, :version, :revision, :lesson_location, :lesson_status, :completion_status,
	:success_status, :score_raw, :score_min, :score_max, :score_scaled, :total_time, :session_time,
	:suspend_data, :launch_data, :entry, :exit, :learner_id, :learner_name, :credit, :mode, :updated_at)`

	updateTrackingQuery = `UPDATE scorm_tracking SET
	revision = :revision, lesson_location = :lesson_location, lesson_status = :lesson_status,
	completion_status = :completion_status, success_status = :success_status, score_raw = :score_raw,
	score_min = :score_min, score_max = :score_max, score_scaled = :score_scaled, total_time = :total_time,
	session_time = :session_time, suspend_data = :suspend_data, launch_data = :launch_data, entry = :entry,
	exit = :exit, learner_id = :learner_id, learner_name = :learner_name, credit = :credit, mode = :mode,
	updated_at = :updated_at
	WHERE session_id = :session_id`

	insertAttemptQuery = `INSERT INTO scorm_attempt (id, session_id, package_id, user_id, lesson_status,
	completion_status, score_raw, score_max, session_time, total_time, archived, terminated_at)
	VALUES (:id, :session_id, :package_id, :user_id, :lesson_status, :completion_status, :score_raw,
	:score_max, :session_time, :total_time, :archived, :terminated_at)`
)

type scormRepository struct {
	db *sqlx.DB
}

var _ scorm.Repository = (*scormRepository)(nil) // interface compliance check

func NewScormRepository(db *sqlx.DB) scorm.Repository {
	return &scormRepository{db: db}
}

// forUpdate locks the selected rows until the transaction ends. SQLite locks the whole database on write.
func (repo *scormRepository) forUpdate() string {
	if repo.db.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func (repo *scormRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// isUniqueViolation reports whether err was raised by a unique index.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func (repo *scormRepository) CreateSession(ctx context.Context, sess scorm.Session, t cmi.Tracking) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertSessionQuery, newSessionRow(sess)); err != nil {
			if isUniqueViolation(err) {
				return scorm.ErrActiveSessionExists
			}
			return errors.Wrap(err, "inserting session")
		}
		if _, err := tx.NamedExecContext(ctx, insertTrackingQuery, newTrackingRow(sess.ID, t)); err != nil {
			return errors.Wrap(err, "inserting tracking")
		}
		return nil
	})
}

func (repo *scormRepository) GetSession(ctx context.Context, id string) (scorm.Session, error) {
	var row sessionRow
	q := repo.db.Rebind(`SELECT ` + sessionColumns + ` FROM scorm_session WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return scorm.Session{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting session")
	}
	return row.session(), nil
}

func (repo *scormRepository) GetActiveSession(ctx context.Context, userID, packageID string) (scorm.Session, error) {
	var row sessionRow
	q := repo.db.Rebind(`SELECT ` + sessionColumns + ` FROM scorm_session
	WHERE user_id = ? AND package_id = ? AND state = ?`)
	if err := repo.db.GetContext(ctx, &row, q, userID, packageID, string(scorm.StateActive)); err != nil {
		return scorm.Session{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting active session")
	}
	return row.session(), nil
}

func (repo *scormRepository) GetTracking(ctx context.Context, sessionID string) (cmi.Tracking, error) {
	var row trackingRow
	q := repo.db.Rebind(`SELECT ` + trackingColumns + ` FROM scorm_tracking WHERE session_id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, sessionID); err != nil {
		return cmi.Tracking{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting tracking")
	}
	return row.tracking(), nil
}

func (repo *scormRepository) LatestTracking(ctx context.Context, userID, packageID string) (cmi.Tracking, error) {
	var row trackingRow
	q := repo.db.Rebind(`SELECT t.* FROM scorm_tracking t
	JOIN scorm_session s ON s.id = t.session_id
	WHERE s.user_id = ? AND s.package_id = ?
	ORDER BY t.updated_at DESC, s.created_at DESC
	LIMIT 1`)
	if err := repo.db.GetContext(ctx, &row, q, userID, packageID); err != nil {
		return cmi.Tracking{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting latest tracking")
	}
	return row.tracking(), nil
}

// lockActive loads the session and tracking to write to within tx.
func (repo *scormRepository) lockActive(ctx context.Context, tx *sqlx.Tx, sessionID string) (sessionRow, trackingRow, error) {
	var sess sessionRow
	q := tx.Rebind(`SELECT ` + sessionColumns + ` FROM scorm_session WHERE id = ?` + repo.forUpdate())
	if err := tx.GetContext(ctx, &sess, q, sessionID); err != nil {
		return sessionRow{}, trackingRow{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting session")
	}
	if sess.State != string(scorm.StateActive) {
		return sessionRow{}, trackingRow{}, scorm.ErrSessionTerminated
	}

	var t trackingRow
	q = tx.Rebind(`SELECT ` + trackingColumns + ` FROM scorm_tracking WHERE session_id = ?` + repo.forUpdate())
	if err := tx.GetContext(ctx, &t, q, sessionID); err != nil {
		return sessionRow{}, trackingRow{}, trapNoRowsErr(err, scorm.ErrNotFound, "selecting tracking")
	}
	return sess, t, nil
}

func (repo *scormRepository) UpdateTracking(
	ctx context.Context,
	sessionID string,
	at time.Time,
	mutate func(t *cmi.Tracking) error,
) (cmi.Tracking, error) {
	var res cmi.Tracking
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		_, row, err := repo.lockActive(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		t := row.tracking()
		if err = mutate(&t); err != nil {
			return err
		}
		if _, err = tx.NamedExecContext(ctx, updateTrackingQuery, newTrackingRow(sessionID, t)); err != nil {
			return errors.Wrap(err, "updating tracking")
		}
		q := tx.Rebind(`UPDATE scorm_session SET last_activity_at = ? WHERE id = ?`)
		if _, err = tx.ExecContext(ctx, q, toMillis(at), sessionID); err != nil {
			return errors.Wrap(err, "updating session activity")
		}
		res = t
		return nil
	})
	if err != nil {
		return cmi.Tracking{}, err
	}
	return res, nil
}

func (repo *scormRepository) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	q := repo.db.Rebind(`UPDATE scorm_session SET last_activity_at = ? WHERE id = ? AND state = ?`)
	res, err := repo.db.ExecContext(ctx, q, toMillis(at), sessionID, string(scorm.StateActive))
	if err != nil {
		return errors.Wrap(err, "updating session activity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating session activity")
	}
	if n > 0 {
		return nil
	}

	if _, err = repo.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return scorm.ErrSessionTerminated
}

func (repo *scormRepository) TerminateSession(
	ctx context.Context,
	sessionID string,
	at time.Time,
	mutate func(t *cmi.Tracking) error,
) (scorm.Attempt, error) {
	var a scorm.Attempt
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		srow, trow, err := repo.lockActive(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		t := trow.tracking()
		if err = mutate(&t); err != nil {
			return err
		}
		if _, err = tx.NamedExecContext(ctx, updateTrackingQuery, newTrackingRow(sessionID, t)); err != nil {
			return errors.Wrap(err, "updating tracking")
		}

		sess := srow.session()
		sess.State = scorm.StateTerminated
		sess.TerminatedAt = at.UTC()
		sess.LastActivityAt = at.UTC()
		q := tx.Rebind(`UPDATE scorm_session SET state = ?, terminated_at = ?, last_activity_at = ? WHERE id = ?`)
		if _, err = tx.ExecContext(ctx, q, string(sess.State), toMillis(at), toMillis(at), sessionID); err != nil {
			return errors.Wrap(err, "terminating session")
		}

		a = scorm.NewAttempt(sess, t, at)
		if _, err = tx.NamedExecContext(ctx, insertAttemptQuery, newAttemptRow(a)); err != nil {
			return errors.Wrap(err, "inserting attempt")
		}
		return nil
	})
	if err != nil {
		return scorm.Attempt{}, err
	}
	return a, nil
}

func (repo *scormRepository) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]scorm.Session, error) {
	var rows []sessionRow
	q := repo.db.Rebind(`SELECT ` + sessionColumns + ` FROM scorm_session
	WHERE state = ? AND last_activity_at < ?
	ORDER BY last_activity_at`)
	if err := repo.db.SelectContext(ctx, &rows, q, string(scorm.StateActive), toMillis(cutoff)); err != nil {
		return nil, errors.Wrap(err, "selecting idle sessions")
	}
	sessions := make([]scorm.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	return sessions, nil
}

func (repo *scormRepository) ListAttempts(ctx context.Context, userID, packageID string) ([]scorm.Attempt, error) {
	var rows []attemptRow
	q := repo.db.Rebind(`SELECT * FROM scorm_attempt
	WHERE user_id = ? AND package_id = ?
	ORDER BY terminated_at DESC, id DESC`)
	if err := repo.db.SelectContext(ctx, &rows, q, userID, packageID); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	attempts := make([]scorm.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.attempt())
	}
	return attempts, nil
}

func (repo *scormRepository) ListLatestTrackings(ctx context.Context, userID string) ([]scorm.PackageTracking, error) {
	var rows []packageTrackingRow
	q := repo.db.Rebind(`SELECT s.package_id, t.* FROM scorm_tracking t
	JOIN scorm_session s ON s.id = t.session_id
	WHERE s.user_id = ?
	ORDER BY s.package_id, t.updated_at DESC, s.created_at DESC`)
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting trackings")
	}

	pts := make([]scorm.PackageTracking, 0)
	for _, row := range rows {
		if n := len(pts); n > 0 && pts[n-1].PackageID == row.PackageID {
			continue
		}
		pts = append(pts, scorm.PackageTracking{PackageID: row.PackageID, Tracking: row.tracking()})
	}
	return pts, nil
}

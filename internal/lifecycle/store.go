package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventtrack/internal/store"
)

// SQLStore persists lifecycle state in Postgres. Each Transact call is one
// transaction; the ForUpdate queries lock the rows they read.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over the shared connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Transact implements Store.
func (s *SQLStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return store.RunInTx(ctx, s.db, nil, func(ctx context.Context, q store.Querier) error {
		return fn(&sqlTx{q: q})
	})
}

type sqlTx struct {
	q store.Querier
}

func (t *sqlTx) EventForUpdate(ctx context.Context, eventID int64) (*Event, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT event_id, volunteer_id, is_started, is_completed
		FROM events WHERE event_id = $1
		FOR UPDATE
	`, eventID)
	var ev Event
	if err := row.Scan(&ev.ID, &ev.VolunteerID, &ev.IsStarted, &ev.IsCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (t *sqlTx) SetEventStarted(ctx context.Context, eventID int64) error {
	_, err := t.q.ExecContext(ctx, `UPDATE events SET is_started = TRUE WHERE event_id = $1`, eventID)
	return err
}

func (t *sqlTx) SetEventCompleted(ctx context.Context, eventID int64) error {
	_, err := t.q.ExecContext(ctx, `UPDATE events SET is_completed = TRUE WHERE event_id = $1`, eventID)
	return err
}

func (t *sqlTx) Student(ctx context.Context, studentID int64) (*Student, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT student_id, volunteer_id FROM students WHERE student_id = $1
	`, studentID)
	var st Student
	if err := row.Scan(&st.ID, &st.VolunteerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (t *sqlTx) InsertSession(ctx context.Context, volunteerID, eventID int64, start time.Time, lat, lng float64) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO volunteer_attendance (volunteer_id, event_id, start_time, start_latitude, start_longitude)
		VALUES ($1, $2, $3, $4, $5)
	`, volunteerID, eventID, start, lat, lng)
	return err
}

func (t *sqlTx) OpenSession(ctx context.Context, volunteerID, eventID int64, lock bool) (*Session, error) {
	query := `
		SELECT volunteer_attendance_id, volunteer_id, event_id, start_time, end_time,
		       COALESCE(start_latitude, 0), COALESCE(start_longitude, 0)
		FROM volunteer_attendance
		WHERE volunteer_id = $1 AND event_id = $2 AND end_time IS NULL
	`
	if lock {
		query += ` FOR UPDATE`
	}
	row := t.q.QueryRowContext(ctx, query, volunteerID, eventID)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.VolunteerID, &sess.EventID, &sess.StartTime, &sess.EndTime, &sess.StartLatitude, &sess.StartLongitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (t *sqlTx) CloseSession(ctx context.Context, volunteerID, eventID int64, end time.Time, lat, lng float64) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE volunteer_attendance
		SET end_time = $3, end_latitude = $4, end_longitude = $5
		WHERE volunteer_id = $1 AND event_id = $2 AND end_time IS NULL
	`, volunteerID, eventID, end, lat, lng)
	return err
}

// SeedPending inserts a pending row per student supervised by the
// volunteer that has no row for this event yet. Insert-if-absent, so
// calling it again changes nothing.
func (t *sqlTx) SeedPending(ctx context.Context, eventID, volunteerID int64, lat, lng float64, at time.Time) (int64, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO attendance (student_id, event_id, volunteer_id, attendance_status, location_latitude, location_longitude, start_time)
		SELECT s.student_id, $1, $2, 'pending', $3, $4, $5
		FROM students s
		WHERE s.volunteer_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM attendance a
			WHERE a.student_id = s.student_id AND a.event_id = $1
		  )
	`, eventID, volunteerID, lat, lng, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) PendingForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error) {
	return t.recordForUpdate(ctx, studentID, eventID, `attendance_status = 'pending'`)
}

func (t *sqlTx) PresentForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error) {
	return t.recordForUpdate(ctx, studentID, eventID, `attendance_status = 'present' AND end_time IS NULL`)
}

func (t *sqlTx) recordForUpdate(ctx context.Context, studentID, eventID int64, cond string) (*Record, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT attendance_id, student_id, event_id, attendance_status, start_time, end_time
		FROM attendance
		WHERE student_id = $1 AND event_id = $2 AND `+cond+`
		FOR UPDATE
	`, studentID, eventID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.EventID, &rec.Status, &rec.StartTime, &rec.EndTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (t *sqlTx) MarkPresent(ctx context.Context, studentID, eventID int64, at time.Time, lat, lng float64) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE attendance
		SET attendance_status = 'present', start_time = $3, location_latitude = $4, location_longitude = $5
		WHERE student_id = $1 AND event_id = $2 AND attendance_status = 'pending'
	`, studentID, eventID, at, lat, lng)
	return err
}

func (t *sqlTx) MarkAbsent(ctx context.Context, studentID, eventID int64) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE attendance
		SET attendance_status = 'absent'
		WHERE student_id = $1 AND event_id = $2 AND attendance_status = 'pending'
	`, studentID, eventID)
	return err
}

func (t *sqlTx) MarkAllAbsent(ctx context.Context, eventID int64) (int64, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE attendance
		SET attendance_status = 'absent'
		WHERE event_id = $1 AND attendance_status = 'pending'
	`, eventID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) CloseRecord(ctx context.Context, studentID, eventID int64, end time.Time, lat, lng float64) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE attendance
		SET end_time = $3, location_latitude = $4, location_longitude = $5
		WHERE student_id = $1 AND event_id = $2 AND attendance_status = 'present' AND end_time IS NULL
	`, studentID, eventID, end, lat, lng)
	return err
}

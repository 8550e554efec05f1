// Package reports serves the read-side attendance views and the manual
// record inserts administrators use to correct data. The lifecycle engine
// owns all regular writes; nothing here mutates event flags.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StudentRow is one student attendance record joined with names.
type StudentRow struct {
	AttendanceID int64      `json:"attendance_id"`
	StudentID    int64      `json:"student_id"`
	EventID      int64      `json:"event_id"`
	Status       string     `json:"attendance_status"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Email        string     `json:"email"`
	EventName    *string    `json:"event_name,omitempty"`
}

// VolunteerRow is one volunteer session joined with names.
type VolunteerRow struct {
	SessionID int64      `json:"volunteer_attendance_id"`
	VolunteerID int64    `json:"volunteer_id"`
	EventID   int64      `json:"event_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Email     string     `json:"email"`
	EventName *string    `json:"event_name,omitempty"`
}

// HistoryRow is the student's own view of a record.
type HistoryRow struct {
	AttendanceID int64      `json:"attendance_id"`
	EventID      int64      `json:"event_id"`
	EventName    *string    `json:"event_name,omitempty"`
	Status       string     `json:"attendance_status"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Overview is the volunteer's combined view: own sessions plus the rows
// of every supervised student.
type Overview struct {
	VolunteerAttendance []VolunteerRow `json:"volunteer_attendance"`
	StudentAttendance   []StudentRow   `json:"student_attendance"`
}

// ErrUnknownAccount reports a manual insert against a missing email.
var ErrUnknownAccount = errors.New("account not found")

// Repository reads and corrects attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AllStudentRows returns every student attendance record for the admin
// report.
func (r *Repository) AllStudentRows(ctx context.Context) ([]StudentRow, error) {
	return r.studentRows(ctx, `
		SELECT a.attendance_id, a.student_id, a.event_id, a.attendance_status, a.start_time, a.end_time, s.email, e.event_name
		FROM attendance a
		JOIN students s ON a.student_id = s.student_id
		LEFT JOIN events e ON a.event_id = e.event_id
		ORDER BY a.attendance_id
	`)
}

// StudentRowsForVolunteer returns the rows of students supervised by the
// volunteer.
func (r *Repository) StudentRowsForVolunteer(ctx context.Context, volunteerID int64) ([]StudentRow, error) {
	return r.studentRows(ctx, `
		SELECT a.attendance_id, a.student_id, a.event_id, a.attendance_status, a.start_time, a.end_time, s.email, e.event_name
		FROM attendance a
		JOIN students s ON a.student_id = s.student_id
		LEFT JOIN events e ON a.event_id = e.event_id
		WHERE s.volunteer_id = $1
		ORDER BY a.attendance_id
	`, volunteerID)
}

func (r *Repository) studentRows(ctx context.Context, query string, args ...any) ([]StudentRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StudentRow
	for rows.Next() {
		var row StudentRow
		if err := rows.Scan(&row.AttendanceID, &row.StudentID, &row.EventID, &row.Status, &row.StartTime, &row.EndTime, &row.Email, &row.EventName); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AllVolunteerRows returns every volunteer session for the admin report.
func (r *Repository) AllVolunteerRows(ctx context.Context) ([]VolunteerRow, error) {
	return r.volunteerRows(ctx, `
		SELECT va.volunteer_attendance_id, va.volunteer_id, va.event_id, va.start_time, va.end_time, v.email, e.event_name
		FROM volunteer_attendance va
		JOIN volunteers v ON va.volunteer_id = v.volunteer_id
		LEFT JOIN events e ON va.event_id = e.event_id
		ORDER BY va.volunteer_attendance_id
	`)
}

// VolunteerRowsFor returns the volunteer's own sessions.
func (r *Repository) VolunteerRowsFor(ctx context.Context, volunteerID int64) ([]VolunteerRow, error) {
	return r.volunteerRows(ctx, `
		SELECT va.volunteer_attendance_id, va.volunteer_id, va.event_id, va.start_time, va.end_time, v.email, e.event_name
		FROM volunteer_attendance va
		JOIN volunteers v ON va.volunteer_id = v.volunteer_id
		LEFT JOIN events e ON va.event_id = e.event_id
		WHERE va.volunteer_id = $1
		ORDER BY va.volunteer_attendance_id
	`, volunteerID)
}

func (r *Repository) volunteerRows(ctx context.Context, query string, args ...any) ([]VolunteerRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VolunteerRow
	for rows.Next() {
		var row VolunteerRow
		if err := rows.Scan(&row.SessionID, &row.VolunteerID, &row.EventID, &row.StartTime, &row.EndTime, &row.Email, &row.EventName); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HistoryForStudent returns the student's own records.
func (r *Repository) HistoryForStudent(ctx context.Context, studentID int64) ([]HistoryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.attendance_id, a.event_id, e.event_name, a.attendance_status, a.start_time, a.end_time
		FROM attendance a
		LEFT JOIN events e ON a.event_id = e.event_id
		WHERE a.student_id = $1
		ORDER BY a.attendance_id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryRow
	for rows.Next() {
		var row HistoryRow
		if err := rows.Scan(&row.AttendanceID, &row.EventID, &row.EventName, &row.Status, &row.StartTime, &row.EndTime); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecordStudentPresence is the manual admin insert: marks a student
// present for an event right now, bypassing the window.
func (r *Repository) RecordStudentPresence(ctx context.Context, email string, eventID int64) error {
	var studentID int64
	err := r.db.QueryRowContext(ctx, `SELECT student_id FROM students WHERE email = $1`, email).Scan(&studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownAccount
	}
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance (student_id, event_id, attendance_status, start_time)
		VALUES ($1, $2, 'present', NOW())
		ON CONFLICT (student_id, event_id)
		DO UPDATE SET attendance_status = 'present', start_time = NOW()
	`, studentID, eventID)
	return err
}

// RecordVolunteerSession is the manual admin insert: opens a session at
// the given start time, or closes the open one at the given end time.
func (r *Repository) RecordVolunteerSession(ctx context.Context, email string, eventID int64, start, end *time.Time, lat, lng *float64) error {
	var volunteerID int64
	err := r.db.QueryRowContext(ctx, `SELECT volunteer_id FROM volunteers WHERE email = $1`, email).Scan(&volunteerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownAccount
	}
	if err != nil {
		return err
	}
	if start != nil {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO volunteer_attendance (volunteer_id, event_id, start_time, start_latitude, start_longitude)
			VALUES ($1, $2, $3, $4, $5)
		`, volunteerID, eventID, start, lat, lng)
		return err
	}
	if end != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE volunteer_attendance
			SET end_time = $3, end_latitude = $4, end_longitude = $5
			WHERE volunteer_id = $1 AND event_id = $2 AND end_time IS NULL
		`, volunteerID, eventID, end, lat, lng)
		return err
	}
	return nil
}

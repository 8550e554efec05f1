package events

import (
	"context"
	"database/sql"

	"eventtrack/internal/store"
)

const eventColumns = `event_id, event_name, event_description, event_date, event_time, volunteer_id, is_started, is_completed`

// Repository persists event data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns every event, soonest first.
func (r *Repository) List(ctx context.Context) ([]Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_date ASC`)
}

// UpcomingForVolunteer returns the volunteer's events from today on.
func (r *Repository) UpcomingForVolunteer(ctx context.Context, volunteerID int64) ([]Event, error) {
	return r.query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE volunteer_id = $1 AND event_date >= CURRENT_DATE
		ORDER BY event_date ASC
	`, volunteerID)
}

// ActiveForVolunteer returns the volunteer's events students can
// currently check in to: started but not completed.
func (r *Repository) ActiveForVolunteer(ctx context.Context, volunteerID int64) ([]Event, error) {
	return r.query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE volunteer_id = $1 AND is_started = TRUE AND is_completed = FALSE AND event_date >= CURRENT_DATE
		ORDER BY event_date ASC
	`, volunteerID)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Date, &e.Time, &e.VolunteerID, &e.IsStarted, &e.IsCompleted); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert creates an event in the not-started state.
func (r *Repository) Insert(ctx context.Context, req UpsertRequest) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO events (event_name, event_description, event_date, event_time, volunteer_id, is_started, is_completed)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)
		RETURNING event_id
	`, req.Name, req.Description, req.Date, req.Time, req.VolunteerID).Scan(&id)
	return id, err
}

// Update replaces the scheduling fields; the lifecycle flags are left
// alone.
func (r *Repository) Update(ctx context.Context, id int64, req UpsertRequest) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET event_name = $2, event_description = $3, event_date = $4, event_time = $5, volunteer_id = $6
		WHERE event_id = $1
	`, id, req.Name, req.Description, req.Date, req.Time, req.VolunteerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes the event and its attendance rows in one transaction.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := store.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx store.Querier) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE event_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM volunteer_attendance WHERE event_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE event_id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

// StudentVolunteer returns the volunteer a student is assigned to, or nil.
func (r *Repository) StudentVolunteer(ctx context.Context, studentID int64) (*int64, bool, error) {
	var volunteerID *int64
	err := r.db.QueryRowContext(ctx, `SELECT volunteer_id FROM students WHERE student_id = $1`, studentID).Scan(&volunteerID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return volunteerID, true, nil
}

package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventtrack/internal/store"
)

// Repository persists account data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// credentials is an account row reduced to what login needs.
type credentials struct {
	ID           int64
	PasswordHash string
}

func (r *Repository) StudentCredentials(ctx context.Context, email string) (*credentials, error) {
	return r.lookupCredentials(ctx, `SELECT student_id, password FROM students WHERE email = $1`, email)
}

func (r *Repository) VolunteerCredentials(ctx context.Context, email string) (*credentials, error) {
	return r.lookupCredentials(ctx, `SELECT volunteer_id, password FROM volunteers WHERE email = $1`, email)
}

func (r *Repository) lookupCredentials(ctx context.Context, query, email string) (*credentials, error) {
	var c credentials
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&c.ID, &c.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) StudentEmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM students WHERE email = $1`, email)
}

func (r *Repository) VolunteerEmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM volunteers WHERE email = $1`, email)
}

func (r *Repository) VolunteerExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM volunteers WHERE volunteer_id = $1`, id)
}

func (r *Repository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) InsertStudent(ctx context.Context, req RegisterRequest, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (first_name, last_name, email, password, phone_number, volunteer_id, registration_date)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING student_id
	`, req.FirstName, req.LastName, req.Email, passwordHash, req.PhoneNumber, req.VolunteerID).Scan(&id)
	return id, err
}

func (r *Repository) InsertVolunteer(ctx context.Context, req RegisterRequest, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO volunteers (first_name, last_name, email, password, phone_number, registration_date)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING volunteer_id
	`, req.FirstName, req.LastName, req.Email, passwordHash, req.PhoneNumber).Scan(&id)
	return id, err
}

func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, first_name, last_name, email, phone_number, volunteer_id, registration_date
		FROM students ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.PhoneNumber, &s.VolunteerID, &s.RegistrationDate); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) ListVolunteers(ctx context.Context) ([]Volunteer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT volunteer_id, first_name, last_name, email, phone_number, registration_date
		FROM volunteers ORDER BY volunteer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Volunteer
	for rows.Next() {
		var v Volunteer
		if err := rows.Scan(&v.ID, &v.FirstName, &v.LastName, &v.Email, &v.PhoneNumber, &v.RegistrationDate); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Directory lists volunteers by name only, for the registration picker.
func (r *Repository) Directory(ctx context.Context) ([]DirectoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT volunteer_id, first_name, last_name FROM volunteers ORDER BY first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DirectoryEntry
	for rows.Next() {
		var d DirectoryEntry
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) StudentProfile(ctx context.Context, id int64) (*StudentProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.student_id, s.first_name, s.last_name, s.email, s.phone_number, s.volunteer_id, s.registration_date,
		       TRIM(CONCAT(v.first_name, ' ', COALESCE(v.last_name, '')))
		FROM students s
		LEFT JOIN volunteers v ON s.volunteer_id = v.volunteer_id
		WHERE s.student_id = $1
	`, id)
	var p StudentProfile
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.PhoneNumber, &p.VolunteerID, &p.RegistrationDate, &p.VolunteerName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) VolunteerProfile(ctx context.Context, id int64) (*Volunteer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT volunteer_id, first_name, last_name, email, phone_number, registration_date
		FROM volunteers WHERE volunteer_id = $1
	`, id)
	var v Volunteer
	if err := row.Scan(&v.ID, &v.FirstName, &v.LastName, &v.Email, &v.PhoneNumber, &v.RegistrationDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repository) PasswordHashByID(ctx context.Context, table string, id int64) (string, error) {
	query := `SELECT password FROM students WHERE student_id = $1`
	if table == "volunteers" {
		query = `SELECT password FROM volunteers WHERE volunteer_id = $1`
	}
	var hash string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return hash, nil
}

// profilePatch carries the resolved partial update; nil fields are untouched.
type profilePatch struct {
	FirstName    *string
	LastName     *string
	PhoneNumber  *string
	PasswordHash *string
}

func (r *Repository) UpdateStudentFields(ctx context.Context, id int64, p profilePatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET
			first_name   = COALESCE($2, first_name),
			last_name    = COALESCE($3, last_name),
			phone_number = COALESCE($4, phone_number),
			password     = COALESCE($5, password)
		WHERE student_id = $1
	`, id, p.FirstName, p.LastName, p.PhoneNumber, p.PasswordHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) UpdateVolunteerFields(ctx context.Context, id int64, p profilePatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE volunteers SET
			first_name   = COALESCE($2, first_name),
			last_name    = COALESCE($3, last_name),
			phone_number = COALESCE($4, phone_number),
			password     = COALESCE($5, password)
		WHERE volunteer_id = $1
	`, id, p.FirstName, p.LastName, p.PhoneNumber, p.PasswordHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) AdminUpdateStudent(ctx context.Context, id int64, req AdminUpsertRequest, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET first_name = $2, last_name = $3, email = $4, password = $5, phone_number = $6
		WHERE student_id = $1
	`, id, req.FirstName, req.LastName, req.Email, passwordHash, req.PhoneNumber)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) AdminUpdateVolunteer(ctx context.Context, id int64, req AdminUpsertRequest, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE volunteers
		SET first_name = $2, last_name = $3, email = $4, password = $5, phone_number = $6
		WHERE volunteer_id = $1
	`, id, req.FirstName, req.LastName, req.Email, passwordHash, req.PhoneNumber)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteStudent removes the account and its attendance rows in one
// transaction.
func (r *Repository) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := store.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx store.Querier) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE student_id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

// DeleteVolunteer removes the account, its sessions, and clears event
// assignments in one transaction.
func (r *Repository) DeleteVolunteer(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := store.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx store.Querier) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM volunteer_attendance WHERE volunteer_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE events SET volunteer_id = NULL WHERE volunteer_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM volunteers WHERE volunteer_id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, subject, role, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (subject, role, token, expires_at)
		VALUES ($1, $2, $3, $4)
	`, subject, role, token, expiresAt)
	return err
}

// LiveRefreshToken returns the subject and role for a stored token that
// is neither revoked nor expired.
func (r *Repository) LiveRefreshToken(ctx context.Context, token string) (subject, role string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT subject, role FROM refresh_tokens
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
	`, token).Scan(&subject, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return subject, role, true, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

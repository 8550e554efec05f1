package accounts

import (
	"context"
	"errors"

	"eventtrack/internal/auth"
)

// Sentinel errors the handlers translate to HTTP statuses.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownVolunteer   = errors.New("invalid volunteer_id")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
	ErrNoFields           = errors.New("at least one field must be provided")
	ErrCurrentPassword    = errors.New("current password incorrect")
	ErrCurrentRequired    = errors.New("current password is required to update password")
)

// Service implements registration, login, and profile management for both
// roles.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// RegisterStudent creates a student account. A referenced volunteer must
// exist.
func (s *Service) RegisterStudent(ctx context.Context, req RegisterRequest) (int64, error) {
	taken, err := s.repo.StudentEmailExists(ctx, req.Email)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ErrEmailTaken
	}
	if req.VolunteerID != nil {
		ok, err := s.repo.VolunteerExists(ctx, *req.VolunteerID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrUnknownVolunteer
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}
	return s.repo.InsertStudent(ctx, req, hash)
}

// RegisterVolunteer creates a volunteer account.
func (s *Service) RegisterVolunteer(ctx context.Context, req RegisterRequest) (int64, error) {
	taken, err := s.repo.VolunteerEmailExists(ctx, req.Email)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ErrEmailTaken
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}
	return s.repo.InsertVolunteer(ctx, req, hash)
}

// LoginStudent verifies credentials and returns the student id.
func (s *Service) LoginStudent(ctx context.Context, req LoginRequest) (int64, error) {
	creds, err := s.repo.StudentCredentials(ctx, req.Email)
	if err != nil {
		return 0, err
	}
	if creds == nil || !auth.CheckPassword(creds.PasswordHash, req.Password) {
		return 0, ErrInvalidCredentials
	}
	return creds.ID, nil
}

// LoginVolunteer verifies credentials and returns the volunteer id.
func (s *Service) LoginVolunteer(ctx context.Context, req LoginRequest) (int64, error) {
	creds, err := s.repo.VolunteerCredentials(ctx, req.Email)
	if err != nil {
		return 0, err
	}
	if creds == nil || !auth.CheckPassword(creds.PasswordHash, req.Password) {
		return 0, ErrInvalidCredentials
	}
	return creds.ID, nil
}

// UpdateStudentProfile applies a partial self-service update.
func (s *Service) UpdateStudentProfile(ctx context.Context, id int64, req UpdateProfileRequest) error {
	patch, err := s.buildPatch(ctx, "students", id, req)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateStudentFields(ctx, id, patch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdateVolunteerProfile applies a partial self-service update.
func (s *Service) UpdateVolunteerProfile(ctx context.Context, id int64, req UpdateProfileRequest) error {
	patch, err := s.buildPatch(ctx, "volunteers", id, req)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateVolunteerFields(ctx, id, patch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// buildPatch validates the partial update and hashes a password change
// after checking the current one.
func (s *Service) buildPatch(ctx context.Context, table string, id int64, req UpdateProfileRequest) (profilePatch, error) {
	if req.FirstName == nil && req.LastName == nil && req.PhoneNumber == nil && req.Password == nil {
		return profilePatch{}, ErrNoFields
	}
	patch := profilePatch{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	}
	if req.Password != nil {
		if req.CurrentPassword == nil {
			return profilePatch{}, ErrCurrentRequired
		}
		hash, err := s.repo.PasswordHashByID(ctx, table, id)
		if err != nil {
			return profilePatch{}, err
		}
		if hash == "" {
			return profilePatch{}, ErrNotFound
		}
		if !auth.CheckPassword(hash, *req.CurrentPassword) {
			return profilePatch{}, ErrCurrentPassword
		}
		newHash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return profilePatch{}, err
		}
		patch.PasswordHash = &newHash
	}
	return patch, nil
}

// AdminCreateStudent creates a student on behalf of an administrator.
func (s *Service) AdminCreateStudent(ctx context.Context, req AdminUpsertRequest) (int64, error) {
	if req.VolunteerID != nil {
		ok, err := s.repo.VolunteerExists(ctx, *req.VolunteerID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrUnknownVolunteer
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}
	return s.repo.InsertStudent(ctx, RegisterRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		VolunteerID: req.VolunteerID,
	}, hash)
}

// AdminCreateVolunteer creates a volunteer on behalf of an administrator.
func (s *Service) AdminCreateVolunteer(ctx context.Context, req AdminUpsertRequest) (int64, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}
	return s.repo.InsertVolunteer(ctx, RegisterRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	}, hash)
}

// AdminUpdateStudent replaces the editable fields of a student.
func (s *Service) AdminUpdateStudent(ctx context.Context, id int64, req AdminUpsertRequest) error {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	ok, err := s.repo.AdminUpdateStudent(ctx, id, req, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// AdminUpdateVolunteer replaces the editable fields of a volunteer.
func (s *Service) AdminUpdateVolunteer(ctx context.Context, id int64, req AdminUpsertRequest) error {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	ok, err := s.repo.AdminUpdateVolunteer(ctx, id, req, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

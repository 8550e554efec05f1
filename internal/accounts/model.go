package accounts

import "time"

// Student is a registered student account. Passwords never leave the
// repository layer.
type Student struct {
	ID               int64     `json:"student_id"`
	FirstName        string    `json:"first_name"`
	LastName         *string   `json:"last_name,omitempty"`
	Email            string    `json:"email"`
	PhoneNumber      *string   `json:"phone_number,omitempty"`
	VolunteerID      *int64    `json:"volunteer_id,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
}

// StudentProfile is the student view of their own account, including the
// assigned volunteer's name.
type StudentProfile struct {
	Student
	VolunteerName *string `json:"volunteer_name,omitempty"`
}

// Volunteer is a registered volunteer account.
type Volunteer struct {
	ID               int64     `json:"volunteer_id"`
	FirstName        string    `json:"first_name"`
	LastName         *string   `json:"last_name,omitempty"`
	Email            string    `json:"email"`
	PhoneNumber      *string   `json:"phone_number,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
}

// DirectoryEntry is the public listing students pick a volunteer from
// during registration.
type DirectoryEntry struct {
	ID        int64   `json:"volunteer_id"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
}

// RegisterRequest covers both roles; VolunteerID only applies to students.
type RegisterRequest struct {
	FirstName   string  `json:"first_name" binding:"required"`
	LastName    *string `json:"last_name"`
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,min=6"`
	PhoneNumber *string `json:"phone_number"`
	VolunteerID *int64  `json:"volunteer_id"`
}

// LoginRequest carries credentials for either role.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is a partial self-service update. Changing the
// password requires the current one.
type UpdateProfileRequest struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	PhoneNumber     *string `json:"phone_number"`
	CurrentPassword *string `json:"current_password"`
	Password        *string `json:"password"`
}

// AdminUpsertRequest is the admin create/update payload. Admin-set
// passwords are hashed the same way as self-registered ones.
type AdminUpsertRequest struct {
	FirstName   string  `json:"first_name" binding:"required"`
	LastName    *string `json:"last_name"`
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required"`
	PhoneNumber *string `json:"phone_number"`
	VolunteerID *int64  `json:"volunteer_id"`
}

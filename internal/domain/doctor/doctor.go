// Package doctor provides the doctor directory consumed by the reschedule
// search: identity, specialties and contact details.
package doctor

import "errors"

var (
	ErrAlreadyExists = errors.New("doctor already exists")
	ErrNotFound      = errors.New("doctor not found")
)

// Contact holds optional reachability details
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Doctor is a directory entry
type Doctor struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Specialties []string `json:"specialties"`
	Description string   `json:"description,omitempty"`
	Contact     *Contact `json:"contact,omitempty"`
}

package models

// GraduateIdentity is the address/identity record kept per convocation number.
type GraduateIdentity struct {
	ConvocationNumber string  `db:"convocation_number" json:"convocationNumber"`
	Name              string  `db:"name" json:"name"`
	Email             *string `db:"email" json:"email,omitempty"`
	Course            *string `db:"course" json:"course,omitempty"`
}

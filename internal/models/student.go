package models

import "time"

// Student is the enrolled learner receiving reminders. Contact fields are
// nullable; a channel is attempted only when the contact exists and the
// matching opt-out flag is false.
type Student struct {
	ID                  string     `db:"id" json:"id"`
	FullName            string     `db:"full_name" json:"full_name"`
	Email               *string    `db:"email" json:"email,omitempty"`
	Phone               *string    `db:"phone" json:"phone,omitempty"`
	EmailOptOut         bool       `db:"email_opt_out" json:"email_opt_out"`
	SMSOptOut           bool       `db:"sms_opt_out" json:"sms_opt_out"`
	PendingOTP          *string    `db:"pending_otp" json:"-"`
	PendingOTPExpiresAt *time.Time `db:"pending_otp_expires_at" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// HasEmail reports whether an email contact is present.
func (s *Student) HasEmail() bool {
	return s.Email != nil && *s.Email != ""
}

// HasPhone reports whether a phone contact is present.
func (s *Student) HasPhone() bool {
	return s.Phone != nil && *s.Phone != ""
}

package models

import (
	"encoding/json"
	"time"
)

// VerificationPurpose names the gated action a session protects.
type VerificationPurpose string

const (
	PurposeRegistration VerificationPurpose = "REGISTRATION"
	PurposeOptOut       VerificationPurpose = "OPT_OUT"
)

// VerificationState tracks progress through the challenge.
type VerificationState string

const (
	VerificationCreated           VerificationState = "CREATED"
	VerificationPartiallyVerified VerificationState = "PARTIALLY_VERIFIED"
	VerificationVerified          VerificationState = "VERIFIED"
)

// VerificationSession is the ephemeral record of one in-progress one-time
// code challenge. It lives only in the session store and is deleted on
// success, exhaustion or expiry. The struct is JSON-serializable so the
// Redis-backed store can hold it.
type VerificationSession struct {
	Token           string              `json:"token"`
	Purpose         VerificationPurpose `json:"purpose"`
	State           VerificationState   `json:"state"`
	Email           string              `json:"email,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Code            string              `json:"code"`
	CurrentChannel  Channel             `json:"current_channel"`
	VerifiedChannel []Channel           `json:"verified_channels,omitempty"`
	Attempts        int                 `json:"attempts"`
	ResendCount     int                 `json:"resend_count"`
	LastResendAt    time.Time           `json:"last_resend_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Payload         json.RawMessage     `json:"payload,omitempty"`
}

// DualChannel reports whether the session must verify both contacts in
// sequence (registration with email and phone supplied).
func (s *VerificationSession) DualChannel() bool {
	return s.Purpose == PurposeRegistration && s.Email != "" && s.Phone != ""
}

// ExpiresAt returns the hard expiry instant for the given TTL. Resends and
// channel switches never extend it; total elapsed time is what counts.
func (s *VerificationSession) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Expired reports whether the session has outlived the TTL at the given
// instant.
func (s *VerificationSession) Expired(ttl time.Duration, now time.Time) bool {
	return now.After(s.ExpiresAt(ttl))
}

// VerifyOutcome is returned by a successful code check. For dual-channel
// sessions Verified stays false until the second channel is confirmed, and
// NextChannel names the contact a fresh code was just sent to.
type VerifyOutcome struct {
	Verified     bool    `json:"verified"`
	NextChannel  Channel `json:"next_channel,omitempty"`
	HandoffToken string  `json:"handoff_token,omitempty"`
}

// RegistrationPayload is the purpose payload carried by registration
// sessions and hand-off tokens.
type RegistrationPayload struct {
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	ClassType ClassType `json:"class_type"`
	Notes     string    `json:"notes,omitempty"`
}

// OptOutPayload is the purpose payload for opt-out sessions.
type OptOutPayload struct {
	StudentID   string `json:"student_id"`
	EmailOptOut bool   `json:"email_opt_out"`
	SMSOptOut   bool   `json:"sms_opt_out"`
}

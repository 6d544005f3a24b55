package models

import "time"

// ClassType enumerates the training certification categories the service
// schedules renewals for.
type ClassType string

const (
	ClassTypeBLS      ClassType = "BLS"
	ClassTypeACLS     ClassType = "ACLS"
	ClassTypePALS     ClassType = "PALS"
	ClassTypeCPRAED   ClassType = "CPR_AED"
	ClassTypeFirstAid ClassType = "FIRST_AID"
	ClassTypeNRP      ClassType = "NRP"
)

// ClassTypes lists every valid class type.
var ClassTypes = []ClassType{
	ClassTypeBLS,
	ClassTypeACLS,
	ClassTypePALS,
	ClassTypeCPRAED,
	ClassTypeFirstAid,
	ClassTypeNRP,
}

var classTypeNames = map[ClassType]string{
	ClassTypeBLS:      "Basic Life Support",
	ClassTypeACLS:     "Advanced Cardiovascular Life Support",
	ClassTypePALS:     "Pediatric Advanced Life Support",
	ClassTypeCPRAED:   "CPR / AED",
	ClassTypeFirstAid: "First Aid",
	ClassTypeNRP:      "Neonatal Resuscitation Program",
}

// Renewal intervals drive the scheduled date of the reminder created at
// enrollment. All current certifications renew on a two-year cycle except
// NRP and First Aid.
var classTypeRenewal = map[ClassType]time.Duration{
	ClassTypeBLS:      2 * 365 * 24 * time.Hour,
	ClassTypeACLS:     2 * 365 * 24 * time.Hour,
	ClassTypePALS:     2 * 365 * 24 * time.Hour,
	ClassTypeCPRAED:   2 * 365 * 24 * time.Hour,
	ClassTypeFirstAid: 365 * 24 * time.Hour,
	ClassTypeNRP:      2 * 365 * 24 * time.Hour,
}

// Valid reports whether the class type is one of the known values.
func (c ClassType) Valid() bool {
	_, ok := classTypeNames[c]
	return ok
}

// DisplayName returns the human-readable course name used in messages.
func (c ClassType) DisplayName() string {
	if name, ok := classTypeNames[c]; ok {
		return name
	}
	return string(c)
}

// RenewalInterval returns how long after enrollment the renewal reminder
// should fire.
func (c ClassType) RenewalInterval() time.Duration {
	if d, ok := classTypeRenewal[c]; ok {
		return d
	}
	return 2 * 365 * 24 * time.Hour
}

// ReminderStatus tracks the dispatch outcome of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "PENDING"
	ReminderStatusSent    ReminderStatus = "SENT"
	ReminderStatusFailed  ReminderStatus = "FAILED"
)

// Reminder is one student's renewal notification obligation for one class
// type. Status moves PENDING to SENT or FAILED through the dispatch engine;
// only an administrative reset returns it to PENDING.
type Reminder struct {
	ID            string         `db:"id" json:"id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	ClassType     ClassType      `db:"class_type" json:"class_type"`
	ScheduledAt   time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status        ReminderStatus `db:"status" json:"status"`
	SentAt        *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	LastAttemptAt *time.Time     `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	Notes         string         `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ReminderDetail joins the reminder with its student for dispatch.
type ReminderDetail struct {
	Reminder
	Student Student `json:"student"`
}

// DispatchSummary reports the outcome of one scheduled batch run.
type DispatchSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MessageTemplate is an optional custom message keyed by (class type,
// channel). Subject applies to EMAIL only. Body may contain {{placeholder}}
// tokens resolved at render time; Variables carries extra static values
// merged into the render context.
type MessageTemplate struct {
	ID           string         `db:"id" json:"id"`
	ClassType    ClassType      `db:"class_type" json:"class_type"`
	Channel      Channel        `db:"channel" json:"channel"`
	Subject      *string        `db:"subject" json:"subject,omitempty"`
	Body         string         `db:"body" json:"body"`
	ScheduleLink string         `db:"schedule_link" json:"schedule_link"`
	Variables    types.JSONText `db:"variables" json:"variables,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Valid reports whether the channel is known.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// DeliveryStatus records how a single channel attempt ended.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "SENT"
	DeliveryStatusFailed DeliveryStatus = "FAILED"
)

// DeliveryLogEntry is one immutable audit row per channel attempt per
// dispatch invocation. Rows are only ever removed by the administrative
// reset, which purges the whole set for a reminder.
type DeliveryLogEntry struct {
	ID                string         `db:"id" json:"id"`
	ReminderID        string         `db:"reminder_id" json:"reminder_id"`
	Channel           Channel        `db:"channel" json:"channel"`
	Status            DeliveryStatus `db:"status" json:"status"`
	ProviderMessageID *string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage      *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

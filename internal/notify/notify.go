// Package notify contains the outbound channel adapters. Adapters never
// return Go errors for ordinary provider failures; every attempt produces a
// Result so dispatch can keep evaluating the other channel and the scheduler
// can keep draining its batch.
package notify

import "context"

// Result reports one delivery attempt.
type Result struct {
	Success   bool
	MessageID string
	Error     string
}

// Failure builds a failed result from a human-readable reason.
func Failure(reason string) Result {
	return Result{Success: false, Error: reason}
}

// EmailSender delivers a rendered message to an email address.
type EmailSender interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) Result
}

// SMSSender delivers a plain-text body to a phone number.
type SMSSender interface {
	Send(ctx context.Context, to, body string) Result
}

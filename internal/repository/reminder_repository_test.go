package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

func newReminderRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var reminderColumns = []string{"id", "student_id", "class_type", "scheduled_at", "status", "sent_at", "last_attempt_at", "notes", "created_at", "updated_at"}

func TestReminderRepositoryFindDue(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(reminderColumns).
		AddRow("rem-1", "stu-1", "BLS", now.Add(-time.Hour), "PENDING", nil, nil, "", now, now).
		AddRow("rem-2", "stu-2", "ACLS", now.Add(-time.Minute), "PENDING", nil, nil, "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reminders")).
		WithArgs(models.ReminderStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	due, err := repo.FindDue(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "rem-1", due[0].ID)
	require.Equal(t, models.ClassTypeACLS, due[1].ClassType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryFindByIDJoinsStudent(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	now := time.Now().UTC()
	email := "sam@example.com"
	columns := append(append([]string{}, reminderColumns...),
		"student.id", "student.full_name", "student.email", "student.phone",
		"student.email_opt_out", "student.sms_opt_out", "student.created_at", "student.updated_at")
	rows := sqlmock.NewRows(columns).
		AddRow("rem-1", "stu-1", "BLS", now, "PENDING", nil, nil, "", now, now,
			"stu-1", "Sam Reyes", email, nil, false, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN students s ON s.id = r.student_id")).
		WithArgs("rem-1").
		WillReturnRows(rows)

	detail, err := repo.FindByID(context.Background(), "rem-1")
	require.NoError(t, err)
	require.Equal(t, "rem-1", detail.ID)
	require.Equal(t, "Sam Reyes", detail.Student.FullName)
	require.True(t, detail.Student.HasEmail())
	require.False(t, detail.Student.HasPhone())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	sentAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET status = $2, sent_at = $3")).
		WithArgs("rem-1", models.ReminderStatusSent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "rem-1", models.ReminderStatusSent, &sentAt))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET status = $2, sent_at = $3")).
		WithArgs("rem-1", models.ReminderStatusFailed, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "rem-1", models.ReminderStatusFailed, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryMarkAttempt(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET last_attempt_at = $2")).
		WithArgs("rem-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkAttempt(context.Background(), "rem-1", time.Now().UTC()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryResetAndReschedule(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET status = $2, sent_at = NULL, last_attempt_at = NULL")).
		WithArgs("rem-1", models.ReminderStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reset(context.Background(), "rem-1"))

	newDate := time.Now().UTC().Add(30 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET scheduled_at = $2")).
		WithArgs("rem-1", sqlmock.AnyArg(), models.ReminderStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reschedule(context.Background(), "rem-1", newDate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reminders")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reminder := &models.Reminder{
		StudentID:   "stu-1",
		ClassType:   models.ClassTypeBLS,
		ScheduledAt: time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), reminder))
	require.NotEmpty(t, reminder.ID)
	require.Equal(t, models.ReminderStatusPending, reminder.Status)
	require.False(t, reminder.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// StudentRepository provides read access to students plus the narrow
// mutations the verification flows need.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, full_name, email, phone, email_opt_out, sms_opt_out, pending_otp, pending_otp_expires_at, created_at, updated_at`

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByDestination looks a student up by email or phone. The opt-out flow
// uses it to map a bare contact address back to an enrollment.
func (r *StudentRepository) FindByDestination(ctx context.Context, destination string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE email = $1 OR phone = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, destination); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateOptOut persists per-channel opt-out flags.
func (r *StudentRepository) UpdateOptOut(ctx context.Context, id string, emailOptOut, smsOptOut bool) error {
	const query = `UPDATE students SET email_opt_out = $2, sms_opt_out = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, emailOptOut, smsOptOut, time.Now().UTC()); err != nil {
		return fmt.Errorf("update opt-out flags: %w", err)
	}
	return nil
}

// SetPendingOTP stores the opt-out flow's lightweight code on the student
// row, separate from the registration session store.
func (r *StudentRepository) SetPendingOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `UPDATE students SET pending_otp = $2, pending_otp_expires_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, code, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set pending otp: %w", err)
	}
	return nil
}

// ClearPendingOTP removes any stored opt-out code.
func (r *StudentRepository) ClearPendingOTP(ctx context.Context, id string) error {
	const query = `UPDATE students SET pending_otp = NULL, pending_otp_expires_at = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear pending otp: %w", err)
	}
	return nil
}

// CountByContactAndClass reports existing enrollments for the contact and
// class type. The registration flow refuses duplicates before issuing a
// verification challenge.
func (r *StudentRepository) CountByContactAndClass(ctx context.Context, email, phone string, classType models.ClassType) (int, error) {
	const query = `SELECT COUNT(*) FROM students s JOIN reminders r ON r.student_id = s.id
WHERE r.class_type = $3 AND ((s.email = $1 AND $1 <> '') OR (s.phone = $2 AND $2 <> ''))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, email, phone, classType); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// Create inserts a new student after a verified registration.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, email, phone, email_opt_out, sms_opt_out, pending_otp, pending_otp_expires_at, created_at, updated_at)
VALUES (:id, :full_name, :email, :phone, :email_opt_out, :sms_opt_out, :pending_otp, :pending_otp_expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

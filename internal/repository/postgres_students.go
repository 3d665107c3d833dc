package repository

import (
	"context"
	"database/sql"

	"residence-data/internal/domain"
)

// PostgresStudentsRepository 读取本地同步的学生表
type PostgresStudentsRepository struct {
	db *sql.DB
}

func NewPostgresStudentsRepository(db *sql.DB) *PostgresStudentsRepository {
	return &PostgresStudentsRepository{db: db}
}

func (r *PostgresStudentsRepository) GetStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error) {
	var s domain.Student
	err := r.db.QueryRowContext(ctx, `
		SELECT student_id::text, tenant_id::text, full_name, COALESCE(email, '')
		FROM students
		WHERE tenant_id = $1 AND student_id = $2`,
		tenantID, studentID,
	).Scan(&s.StudentID, &s.TenantID, &s.FullName, &s.Email)
	if err != nil {
		return nil, notFoundOr(err, "student not found: student_id=%s", studentID)
	}
	return &s, nil
}

// UpsertStudent 由学生目录同步写入
func (r *PostgresStudentsRepository) UpsertStudent(ctx context.Context, s *domain.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, tenant_id, full_name, email)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (student_id) DO UPDATE
		SET full_name = EXCLUDED.full_name, email = EXCLUDED.email`,
		s.StudentID, s.TenantID, s.FullName, s.Email,
	)
	return classifyPQError(err)
}

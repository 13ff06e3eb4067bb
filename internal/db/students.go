package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/models"
)

const studentCols = `id::text, name, class_level, roll_number, created_at, updated_at`

func scanStudent(r scanner) (models.Student, error) {
	var s models.Student
	err := r.Scan(&s.ID, &s.Name, &s.ClassLevel, &s.RollNumber, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func CreateStudent(ctx context.Context, q DBTX, s models.Student) (string, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if !validID(s.ID) {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO students (id, name, class_level, roll_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Name, s.ClassLevel, s.RollNumber, s.CreatedAt)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// UpdateStudent writes only the fields set in p.
func UpdateStudent(ctx context.Context, q DBTX, id string, p models.StudentPatch, at time.Time) error {
	if !validID(id) {
		return notFound("student", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `
		UPDATE students SET
			name        = COALESCE($2, name),
			class_level = COALESCE($3, class_level),
			roll_number = COALESCE($4, roll_number),
			updated_at  = $5
		WHERE id = $1
	`, id, p.Name, p.ClassLevel, p.RollNumber, at)
	if err != nil {
		return err
	}
	return mustAffect(res, "student", id)
}

func DeleteStudent(ctx context.Context, q DBTX, id string) error {
	if !validID(id) {
		return notFound("student", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "student", id)
}

func GetStudent(ctx context.Context, q DBTX, id string) (*models.Student, error) {
	if !validID(id) {
		return nil, notFound("student", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	s, err := scanStudent(q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id))
	if err != nil {
		return nil, noRows(err, "student", id)
	}
	return &s, nil
}

func ListStudents(ctx context.Context, q DBTX) ([]models.Student, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := q.QueryContext(ctx, `SELECT `+studentCols+` FROM students ORDER BY name, created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

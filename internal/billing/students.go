package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/metrics"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/store"
)

func (m *Manager) validateStudent(ctx context.Context, s models.Student, exceptID string) error {
	if err := m.check(s); err != nil {
		return err
	}
	existing, err := m.store.ListStudents(ctx)
	if err != nil {
		return err
	}
	if rollTaken(existing, s.ClassLevel, s.RollNumber, exceptID) {
		return invalidf("Roll number %d already exists in Class %d", s.RollNumber, s.ClassLevel)
	}
	return nil
}

// AddStudent validates and stores a new student.
func (m *Manager) AddStudent(ctx context.Context, s models.Student) (string, error) {
	const op = "add_student"
	ctx = opCtx(ctx, op)
	s.ID = ""
	s.Name = cleanName(s.Name)
	if err := m.validateStudent(ctx, s, ""); err != nil {
		return "", m.fail(ctx, op, "Error adding student. Please try again.", "", err)
	}
	id, err := m.store.CreateStudent(ctx, s)
	if err != nil {
		return "", m.fail(ctx, op, "Error adding student. Please try again.", "", err)
	}
	m.log.Info("student added", zap.String("student_id", id), zap.Int("class", s.ClassLevel))
	m.done(ctx, op, "Student added successfully!")
	return id, nil
}

// UpdateStudent applies a field-level edit. Bills and payments keep the
// name, class and roll they were created with.
func (m *Manager) UpdateStudent(ctx context.Context, id string, p models.StudentPatch) error {
	const op = "update_student"
	ctx = opCtx(ctx, op)
	if p.Name != nil {
		n := cleanName(*p.Name)
		p.Name = &n
	}
	cur, err := m.store.GetStudent(ctx, id)
	if err != nil {
		return m.fail(ctx, op, "Error updating student. Please try again.", "Student not found.", err)
	}
	if err := m.validateStudent(ctx, p.Apply(*cur), id); err != nil {
		return m.fail(ctx, op, "Error updating student. Please try again.", "", err)
	}
	if err := m.store.UpdateStudent(ctx, id, p); err != nil {
		return m.fail(ctx, op, "Error updating student. Please try again.", "Student not found.", err)
	}
	m.done(ctx, op, "Student updated successfully!")
	return nil
}

// DeleteStudent removes the student with every payment and bill that
// references it, in one transaction.
func (m *Manager) DeleteStudent(ctx context.Context, id string) error {
	const op = "delete_student"
	ctx = opCtx(ctx, op)
	var name string
	err := m.store.InTx(ctx, func(tx store.Store) error {
		s, err := tx.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		name = s.Name
		payments, err := tx.ListPayments(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if err := store.IgnoreNotFound(tx.DeletePayment(ctx, p.ID)); err != nil {
				return fmt.Errorf("delete payment %s: %w", p.ID, err)
			}
		}
		bills, err := tx.ListBills(ctx, id)
		if err != nil {
			return err
		}
		for _, b := range bills {
			if err := store.IgnoreNotFound(tx.DeleteBill(ctx, b.ID)); err != nil {
				return fmt.Errorf("delete bill %s: %w", b.ID, err)
			}
		}
		return tx.DeleteStudent(ctx, id)
	})
	if err != nil {
		return m.fail(ctx, op, "Error deleting student. Please try again.", "Student not found.", err)
	}
	m.log.Info("student deleted", zap.String("student_id", id))
	m.done(ctx, op, fmt.Sprintf("%s and all associated records deleted successfully!", name))
	return nil
}

// ImportResult reports a bulk import row by row.
type ImportResult struct {
	Created []string `json:"created"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportRow is one student to import and the line it came from; errors
// refer to Line, or to the row position when Line is 0.
type ImportRow struct {
	Line    int
	Student models.Student
}

// ImportStudents stores each row independently; a bad row does not stop
// the rest. Rows are checked against each other as well as the store.
func (m *Manager) ImportStudents(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	const op = "import_students"
	ctx = opCtx(ctx, op)
	var res ImportResult
	if len(rows) == 0 {
		return res, m.fail(ctx, op, "", "", invalidf("No valid students to import"))
	}
	existing, err := m.store.ListStudents(ctx)
	if err != nil {
		return res, m.fail(ctx, op, "Import failed. Please try again.", "", err)
	}
	for i, row := range rows {
		s, line := row.Student, row.Line
		if line == 0 {
			line = i + 1
		}
		s.ID = ""
		s.Name = cleanName(s.Name)
		if err := m.check(s); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %v", line, err))
			continue
		}
		if rollTaken(existing, s.ClassLevel, s.RollNumber, "") {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: Roll number %d already exists in Class %d", line, s.RollNumber, s.ClassLevel))
			continue
		}
		id, err := m.store.CreateStudent(ctx, s)
		if err != nil {
			m.log.Warn("import row failed", zap.Int("row", line), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %v", line, err))
			continue
		}
		s.ID = id
		existing = append(existing, s)
		res.Created = append(res.Created, id)
	}

	metrics.Operations.WithLabelValues(op, "ok").Add(float64(len(res.Created)))
	if len(res.Errors) > 0 {
		metrics.Operations.WithLabelValues(op, "error").Add(float64(len(res.Errors)))
	}
	if len(res.Created) > 0 {
		m.notifier.Notify(ctx, fmt.Sprintf("Successfully imported %d students!", len(res.Created)), notify.Success)
	}
	if len(res.Errors) > 0 {
		m.notifier.Notify(ctx, fmt.Sprintf("%d students failed to import. Check results for details.", len(res.Errors)), notify.Error)
	}
	return res, nil
}

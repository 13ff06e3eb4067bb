// Package store defines the record store adapter the fee engine runs against:
// independently updated collections reachable by ID, plus a push-based feed
// that delivers full snapshots whenever a watched collection changes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Spok95/school-fees/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Kind names a collection.
type Kind string

const (
	Students    Kind = "students"
	FeeRules    Kind = "fee_structure"
	Bills       Kind = "bills"
	Payments    Kind = "payments"
	Allocations Kind = "allocations"
)

// AllKinds is every collection, in delivery-relevant order.
var AllKinds = []Kind{Students, FeeRules, Bills, Payments, Allocations}

// Snapshot is an immutable copy of every collection at one point in time.
// Bills are in store order (bill date, then ID); payments are newest first by
// payment date; students are ordered by name.
type Snapshot struct {
	Students    []models.Student
	FeeRules    []models.FeeRule
	Bills       []models.Bill
	Payments    []models.Payment
	Allocations []models.Allocation
	TakenAt     time.Time
}

// Store is implemented by Memory and by the PostgreSQL store in internal/db.
//
// Delete operations return ErrNotFound for a missing ID; callers running
// cascades or purges treat that as already done.
type Store interface {
	CreateStudent(ctx context.Context, s models.Student) (string, error)
	UpdateStudent(ctx context.Context, id string, p models.StudentPatch) error
	DeleteStudent(ctx context.Context, id string) error
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListStudents(ctx context.Context) ([]models.Student, error)

	CreateFeeRule(ctx context.Context, f models.FeeRule) (string, error)
	DeleteFeeRule(ctx context.Context, id string) error
	ListFeeRules(ctx context.Context) ([]models.FeeRule, error)

	CreateBill(ctx context.Context, b models.Bill) (string, error)
	DeleteBill(ctx context.Context, id string) error
	GetBill(ctx context.Context, id string) (*models.Bill, error)
	ListBills(ctx context.Context, studentID string) ([]models.Bill, error)

	CreatePayment(ctx context.Context, p models.Payment) (string, error)
	UpdatePayment(ctx context.Context, id string, p models.PaymentPatch, at time.Time) error
	DeletePayment(ctx context.Context, id string) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	ListPayments(ctx context.Context, studentID string) ([]models.Payment, error)

	CreateAllocation(ctx context.Context, a models.Allocation) (string, error)
	DeleteAllocationsByPayment(ctx context.Context, paymentID string) (int, error)
	DeleteAllocation(ctx context.Context, id string) error
	ListAllocations(ctx context.Context, studentID string) ([]models.Allocation, error)

	Snapshot(ctx context.Context) (Snapshot, error)

	// InTx runs fn against a transactional view of the store. Changes are
	// visible to others, and change notifications fire, only if fn returns nil.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Subscribe calls onSnapshot with a full snapshot every time one of kinds
	// changes, and once right away. Calls are sequential per subscription;
	// bursts of changes may be coalesced into one delivery.
	Subscribe(ctx context.Context, kinds []Kind, onSnapshot func(Snapshot), onError func(error)) (func(), error)
}

// IgnoreNotFound maps ErrNotFound to nil.
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s Snapshot) StudentByID(id string) (models.Student, bool) {
	for _, st := range s.Students {
		if st.ID == id {
			return st, true
		}
	}
	return models.Student{}, false
}

// BulkDeleter is implemented by stores that can remove many records of one
// kind in a single call. Missing IDs are skipped; the count is what was
// actually removed.
type BulkDeleter interface {
	DeleteMany(ctx context.Context, kind Kind, ids []string) (int, error)
}

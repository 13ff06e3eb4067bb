package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

// Store is the PostgreSQL record store. Change notifications come from
// table triggers over LISTEN/NOTIFY.
type Store struct {
	db   *sql.DB
	q    DBTX
	dsn  string
	log  *zap.Logger
	now  func() time.Time
	inTx bool
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.BulkDeleter = (*Store)(nil)
)

// NewStore wraps an open database. dsn is used again by the change feed,
// which needs its own connection.
func NewStore(database *sql.DB, dsn string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: database, q: database, dsn: dsn, log: log.Named("pgstore"), now: time.Now}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) InTx(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Store{db: s.db, q: tx, dsn: s.dsn, log: s.log, now: s.now, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot reads every collection in one repeatable-read transaction so the
// collections agree with each other.
func (s *Store) Snapshot(ctx context.Context) (store.Snapshot, error) {
	if s.inTx {
		return snapshot(ctx, s.q, s.now())
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return store.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	snap, err := snapshot(ctx, tx, s.now())
	if err != nil {
		return store.Snapshot{}, err
	}
	return snap, tx.Commit()
}

func snapshot(ctx context.Context, q DBTX, at time.Time) (store.Snapshot, error) {
	var (
		snap = store.Snapshot{TakenAt: at}
		err  error
	)
	if snap.Students, err = ListStudents(ctx, q); err != nil {
		return snap, fmt.Errorf("students: %w", err)
	}
	if snap.FeeRules, err = ListFeeRules(ctx, q); err != nil {
		return snap, fmt.Errorf("fee rules: %w", err)
	}
	if snap.Bills, err = ListBills(ctx, q, ""); err != nil {
		return snap, fmt.Errorf("bills: %w", err)
	}
	if snap.Payments, err = ListPayments(ctx, q, ""); err != nil {
		return snap, fmt.Errorf("payments: %w", err)
	}
	if snap.Allocations, err = ListAllocations(ctx, q, ""); err != nil {
		return snap, fmt.Errorf("allocations: %w", err)
	}
	return snap, nil
}

func (s *Store) CreateStudent(ctx context.Context, st models.Student) (string, error) {
	return CreateStudent(ctx, s.q, st)
}

func (s *Store) UpdateStudent(ctx context.Context, id string, p models.StudentPatch) error {
	return UpdateStudent(ctx, s.q, id, p, s.now())
}

func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	return DeleteStudent(ctx, s.q, id)
}

func (s *Store) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return GetStudent(ctx, s.q, id)
}

func (s *Store) ListStudents(ctx context.Context) ([]models.Student, error) {
	return ListStudents(ctx, s.q)
}

func (s *Store) CreateFeeRule(ctx context.Context, f models.FeeRule) (string, error) {
	return CreateFeeRule(ctx, s.q, f)
}

func (s *Store) DeleteFeeRule(ctx context.Context, id string) error {
	return DeleteFeeRule(ctx, s.q, id)
}

func (s *Store) ListFeeRules(ctx context.Context) ([]models.FeeRule, error) {
	return ListFeeRules(ctx, s.q)
}

func (s *Store) CreateBill(ctx context.Context, b models.Bill) (string, error) {
	return CreateBill(ctx, s.q, b)
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	return DeleteBill(ctx, s.q, id)
}

func (s *Store) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	return GetBill(ctx, s.q, id)
}

// ListBills locks the student's bills when called inside InTx, so allocation
// writers on other connections wait until this transaction ends.
func (s *Store) ListBills(ctx context.Context, studentID string) ([]models.Bill, error) {
	if s.inTx && studentID != "" {
		return LockBills(ctx, s.q, studentID)
	}
	return ListBills(ctx, s.q, studentID)
}

func (s *Store) CreatePayment(ctx context.Context, p models.Payment) (string, error) {
	return CreatePayment(ctx, s.q, p)
}

func (s *Store) UpdatePayment(ctx context.Context, id string, p models.PaymentPatch, at time.Time) error {
	return UpdatePayment(ctx, s.q, id, p, at)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	return DeletePayment(ctx, s.q, id)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return GetPayment(ctx, s.q, id)
}

func (s *Store) ListPayments(ctx context.Context, studentID string) ([]models.Payment, error) {
	return ListPayments(ctx, s.q, studentID)
}

func (s *Store) CreateAllocation(ctx context.Context, a models.Allocation) (string, error) {
	return CreateAllocation(ctx, s.q, a)
}

func (s *Store) DeleteAllocationsByPayment(ctx context.Context, paymentID string) (int, error) {
	return DeleteAllocationsByPayment(ctx, s.q, paymentID)
}

func (s *Store) DeleteAllocation(ctx context.Context, id string) error {
	return DeleteAllocation(ctx, s.q, id)
}

func (s *Store) ListAllocations(ctx context.Context, studentID string) ([]models.Allocation, error) {
	return ListAllocations(ctx, s.q, studentID)
}

func (s *Store) DeleteMany(ctx context.Context, kind store.Kind, ids []string) (int, error) {
	return DeleteMany(ctx, s.q, kind, ids)
}

var errSubscribeInTx = errors.New("pgstore: subscribe inside a transaction")

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-fees/internal/models"
)

// Memory is an in-process Store. Deleting a payment or a bill also drops the
// allocations that reference it; nothing else cascades.
type Memory struct {
	mu  sync.RWMutex
	st  state
	now func() time.Time

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

type state struct {
	students []models.Student
	fees     []models.FeeRule
	bills    []models.Bill
	payments []models.Payment
	allocs   []models.Allocation
}

type subscriber struct {
	kinds  map[Kind]bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*txn)(nil)
)

func NewMemory() *Memory {
	return &Memory{now: time.Now, subs: make(map[int]*subscriber)}
}

// WithClock replaces the clock used for created_at stamps.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) read(fn func(t *txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&txn{st: &m.st, now: m.now})
}

func (m *Memory) write(fn func(t *txn) error) error {
	m.mu.Lock()
	t := &txn{st: &m.st, now: m.now, changed: map[Kind]bool{}}
	err := fn(t)
	m.mu.Unlock()
	if err == nil {
		m.publish(t.changed)
	}
	return err
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	draft := m.st.clone()
	t := &txn{st: &draft, now: m.now, changed: map[Kind]bool{}}
	err := fn(t)
	if err == nil {
		m.st = draft
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publish(t.changed)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, kinds []Kind, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	sub := &subscriber{
		kinds:  make(map[Kind]bool, len(kinds)),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}
	sub.signal <- struct{}{}

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = sub
	m.subMu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case <-sub.signal:
				snap, err := m.Snapshot(ctx)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onSnapshot(snap)
			}
		}
	}()

	return func() {
		sub.once.Do(func() { close(sub.done) })
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}, nil
}

func (m *Memory) publish(changed map[Kind]bool) {
	if len(changed) == 0 {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, sub := range m.subs {
		for k := range changed {
			if sub.kinds[k] {
				select {
				case sub.signal <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

func (m *Memory) CreateStudent(ctx context.Context, s models.Student) (id string, err error) {
	err = m.write(func(t *txn) error { id, err = t.CreateStudent(ctx, s); return err })
	return id, err
}

func (m *Memory) UpdateStudent(ctx context.Context, id string, p models.StudentPatch) error {
	return m.write(func(t *txn) error { return t.UpdateStudent(ctx, id, p) })
}

func (m *Memory) DeleteStudent(ctx context.Context, id string) error {
	return m.write(func(t *txn) error { return t.DeleteStudent(ctx, id) })
}

func (m *Memory) GetStudent(ctx context.Context, id string) (s *models.Student, err error) {
	err = m.read(func(t *txn) error { s, err = t.GetStudent(ctx, id); return err })
	return s, err
}

func (m *Memory) ListStudents(ctx context.Context) (out []models.Student, err error) {
	err = m.read(func(t *txn) error { out, err = t.ListStudents(ctx); return err })
	return out, err
}

func (m *Memory) CreateFeeRule(ctx context.Context, f models.FeeRule) (id string, err error) {
	err = m.write(func(t *txn) error { id, err = t.CreateFeeRule(ctx, f); return err })
	return id, err
}

func (m *Memory) DeleteFeeRule(ctx context.Context, id string) error {
	return m.write(func(t *txn) error { return t.DeleteFeeRule(ctx, id) })
}

func (m *Memory) ListFeeRules(ctx context.Context) (out []models.FeeRule, err error) {
	err = m.read(func(t *txn) error { out, err = t.ListFeeRules(ctx); return err })
	return out, err
}

func (m *Memory) CreateBill(ctx context.Context, b models.Bill) (id string, err error) {
	err = m.write(func(t *txn) error { id, err = t.CreateBill(ctx, b); return err })
	return id, err
}

func (m *Memory) DeleteBill(ctx context.Context, id string) error {
	return m.write(func(t *txn) error { return t.DeleteBill(ctx, id) })
}

func (m *Memory) GetBill(ctx context.Context, id string) (b *models.Bill, err error) {
	err = m.read(func(t *txn) error { b, err = t.GetBill(ctx, id); return err })
	return b, err
}

func (m *Memory) ListBills(ctx context.Context, studentID string) (out []models.Bill, err error) {
	err = m.read(func(t *txn) error { out, err = t.ListBills(ctx, studentID); return err })
	return out, err
}

func (m *Memory) CreatePayment(ctx context.Context, p models.Payment) (id string, err error) {
	err = m.write(func(t *txn) error { id, err = t.CreatePayment(ctx, p); return err })
	return id, err
}

func (m *Memory) UpdatePayment(ctx context.Context, id string, p models.PaymentPatch, at time.Time) error {
	return m.write(func(t *txn) error { return t.UpdatePayment(ctx, id, p, at) })
}

func (m *Memory) DeletePayment(ctx context.Context, id string) error {
	return m.write(func(t *txn) error { return t.DeletePayment(ctx, id) })
}

func (m *Memory) GetPayment(ctx context.Context, id string) (p *models.Payment, err error) {
	err = m.read(func(t *txn) error { p, err = t.GetPayment(ctx, id); return err })
	return p, err
}

func (m *Memory) ListPayments(ctx context.Context, studentID string) (out []models.Payment, err error) {
	err = m.read(func(t *txn) error { out, err = t.ListPayments(ctx, studentID); return err })
	return out, err
}

func (m *Memory) CreateAllocation(ctx context.Context, a models.Allocation) (id string, err error) {
	err = m.write(func(t *txn) error { id, err = t.CreateAllocation(ctx, a); return err })
	return id, err
}

func (m *Memory) DeleteAllocationsByPayment(ctx context.Context, paymentID string) (n int, err error) {
	err = m.write(func(t *txn) error { n, err = t.DeleteAllocationsByPayment(ctx, paymentID); return err })
	return n, err
}

func (m *Memory) DeleteAllocation(ctx context.Context, id string) error {
	return m.write(func(t *txn) error { return t.DeleteAllocation(ctx, id) })
}

func (m *Memory) ListAllocations(ctx context.Context, studentID string) (out []models.Allocation, err error) {
	err = m.read(func(t *txn) error { out, err = t.ListAllocations(ctx, studentID); return err })
	return out, err
}

func (m *Memory) Snapshot(ctx context.Context) (snap Snapshot, err error) {
	err = m.read(func(t *txn) error { snap, err = t.Snapshot(ctx); return err })
	return snap, err
}

// txn operates on a state without locking; Memory owns the locks.
type txn struct {
	st      *state
	now     func() time.Time
	changed map[Kind]bool
}

var errReadOnly = errors.New("store: write outside a write section")

func (t *txn) touch(k Kind) error {
	if t.changed == nil {
		return errReadOnly
	}
	t.changed[k] = true
	return nil
}

func (t *txn) CreateStudent(_ context.Context, s models.Student) (string, error) {
	if err := t.touch(Students); err != nil {
		return "", err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.now()
	}
	t.st.students = append(t.st.students, s)
	return s.ID, nil
}

func (t *txn) UpdateStudent(_ context.Context, id string, p models.StudentPatch) error {
	if err := t.touch(Students); err != nil {
		return err
	}
	for i := range t.st.students {
		if t.st.students[i].ID == id {
			s := p.Apply(t.st.students[i])
			at := t.now()
			s.UpdatedAt = &at
			t.st.students[i] = s
			return nil
		}
	}
	return fmt.Errorf("student %s: %w", id, ErrNotFound)
}

func (t *txn) DeleteStudent(_ context.Context, id string) error {
	if err := t.touch(Students); err != nil {
		return err
	}
	n := len(t.st.students)
	t.st.students = removeWhere(t.st.students, func(s models.Student) bool { return s.ID == id })
	if len(t.st.students) == n {
		return fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *txn) GetStudent(_ context.Context, id string) (*models.Student, error) {
	for _, s := range t.st.students {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
}

func (t *txn) ListStudents(_ context.Context) ([]models.Student, error) {
	out := append([]models.Student(nil), t.st.students...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *txn) CreateFeeRule(_ context.Context, f models.FeeRule) (string, error) {
	if err := t.touch(FeeRules); err != nil {
		return "", err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = t.now()
	}
	t.st.fees = append(t.st.fees, f)
	return f.ID, nil
}

func (t *txn) DeleteFeeRule(_ context.Context, id string) error {
	if err := t.touch(FeeRules); err != nil {
		return err
	}
	n := len(t.st.fees)
	t.st.fees = removeWhere(t.st.fees, func(f models.FeeRule) bool { return f.ID == id })
	if len(t.st.fees) == n {
		return fmt.Errorf("fee rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *txn) ListFeeRules(_ context.Context) ([]models.FeeRule, error) {
	out := append([]models.FeeRule(nil), t.st.fees...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *txn) CreateBill(_ context.Context, b models.Bill) (string, error) {
	if err := t.touch(Bills); err != nil {
		return "", err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BillDate.IsZero() {
		b.BillDate = t.now()
	}
	b.Breakdown = append([]models.FeeLine(nil), b.Breakdown...)
	t.st.bills = append(t.st.bills, b)
	return b.ID, nil
}

func (t *txn) DeleteBill(_ context.Context, id string) error {
	if err := t.touch(Bills); err != nil {
		return err
	}
	n := len(t.st.bills)
	t.st.bills = removeWhere(t.st.bills, func(b models.Bill) bool { return b.ID == id })
	if len(t.st.bills) == n {
		return fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}
	t.dropAllocations(func(a models.Allocation) bool { return a.BillID == id })
	return nil
}

func (t *txn) GetBill(_ context.Context, id string) (*models.Bill, error) {
	for _, b := range t.st.bills {
		if b.ID == id {
			b.Breakdown = append([]models.FeeLine(nil), b.Breakdown...)
			return &b, nil
		}
	}
	return nil, fmt.Errorf("bill %s: %w", id, ErrNotFound)
}

func (t *txn) ListBills(_ context.Context, studentID string) ([]models.Bill, error) {
	var out []models.Bill
	for _, b := range t.st.bills {
		if studentID == "" || b.StudentID == studentID {
			b.Breakdown = append([]models.FeeLine(nil), b.Breakdown...)
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BillDate.Before(out[j].BillDate) })
	return out, nil
}

func (t *txn) CreatePayment(_ context.Context, p models.Payment) (string, error) {
	if err := t.touch(Payments); err != nil {
		return "", err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now()
	}
	t.st.payments = append(t.st.payments, p)
	return p.ID, nil
}

func (t *txn) UpdatePayment(_ context.Context, id string, p models.PaymentPatch, at time.Time) error {
	if err := t.touch(Payments); err != nil {
		return err
	}
	for i := range t.st.payments {
		if t.st.payments[i].ID == id {
			pm := p.Apply(t.st.payments[i])
			pm.UpdatedAt = &at
			t.st.payments[i] = pm
			return nil
		}
	}
	return fmt.Errorf("payment %s: %w", id, ErrNotFound)
}

func (t *txn) DeletePayment(_ context.Context, id string) error {
	if err := t.touch(Payments); err != nil {
		return err
	}
	n := len(t.st.payments)
	t.st.payments = removeWhere(t.st.payments, func(p models.Payment) bool { return p.ID == id })
	if len(t.st.payments) == n {
		return fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	t.dropAllocations(func(a models.Allocation) bool { return a.PaymentID == id })
	return nil
}

func (t *txn) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	for _, p := range t.st.payments {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment %s: %w", id, ErrNotFound)
}

func (t *txn) ListPayments(_ context.Context, studentID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range t.st.payments {
		if studentID == "" || p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	return out, nil
}

func (t *txn) CreateAllocation(_ context.Context, a models.Allocation) (string, error) {
	if err := t.touch(Allocations); err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now()
	}
	if !t.hasPayment(a.PaymentID) {
		return "", fmt.Errorf("allocation payment %s: %w", a.PaymentID, ErrNotFound)
	}
	if !t.hasBill(a.BillID) {
		return "", fmt.Errorf("allocation bill %s: %w", a.BillID, ErrNotFound)
	}
	t.st.allocs = append(t.st.allocs, a)
	return a.ID, nil
}

func (t *txn) DeleteAllocationsByPayment(_ context.Context, paymentID string) (int, error) {
	if err := t.touch(Allocations); err != nil {
		return 0, err
	}
	return t.dropAllocations(func(a models.Allocation) bool { return a.PaymentID == paymentID }), nil
}

func (t *txn) DeleteAllocation(_ context.Context, id string) error {
	if err := t.touch(Allocations); err != nil {
		return err
	}
	if t.dropAllocations(func(a models.Allocation) bool { return a.ID == id }) == 0 {
		return fmt.Errorf("allocation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *txn) ListAllocations(_ context.Context, studentID string) ([]models.Allocation, error) {
	var out []models.Allocation
	for _, a := range t.st.allocs {
		if studentID == "" || a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *txn) Snapshot(ctx context.Context) (Snapshot, error) {
	students, _ := t.ListStudents(ctx)
	fees, _ := t.ListFeeRules(ctx)
	bills, _ := t.ListBills(ctx, "")
	payments, _ := t.ListPayments(ctx, "")
	allocs, _ := t.ListAllocations(ctx, "")
	return Snapshot{
		Students:    students,
		FeeRules:    fees,
		Bills:       bills,
		Payments:    payments,
		Allocations: allocs,
		TakenAt:     t.now(),
	}, nil
}

// InTx joins the enclosing transaction.
func (t *txn) InTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *txn) Subscribe(context.Context, []Kind, func(Snapshot), func(error)) (func(), error) {
	return nil, errors.New("store: subscribe inside a transaction")
}

func (t *txn) dropAllocations(match func(models.Allocation) bool) int {
	n := len(t.st.allocs)
	t.st.allocs = removeWhere(t.st.allocs, match)
	removed := n - len(t.st.allocs)
	if removed > 0 && t.changed != nil {
		t.changed[Allocations] = true
	}
	return removed
}

func (t *txn) hasPayment(id string) bool {
	for _, p := range t.st.payments {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (t *txn) hasBill(id string) bool {
	for _, b := range t.st.bills {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (s state) clone() state {
	c := state{
		students: append([]models.Student(nil), s.students...),
		fees:     append([]models.FeeRule(nil), s.fees...),
		bills:    make([]models.Bill, len(s.bills)),
		payments: append([]models.Payment(nil), s.payments...),
		allocs:   append([]models.Allocation(nil), s.allocs...),
	}
	for i, b := range s.bills {
		b.Breakdown = append([]models.FeeLine(nil), b.Breakdown...)
		c.bills[i] = b
	}
	return c
}

func removeWhere[T any](xs []T, match func(T) bool) []T {
	out := xs[:0:0]
	for _, x := range xs {
		if !match(x) {
			out = append(out, x)
		}
	}
	return out
}

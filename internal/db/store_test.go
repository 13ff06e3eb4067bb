//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/db"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/store"
	"github.com/Spok95/school-fees/internal/testutil/testdb"
	"github.com/Spok95/school-fees/internal/tracking"
)

var handle *testdb.DBHandle

func TestMain(m *testing.M) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		panic(err)
	}
	handle = h
	code := m.Run()
	h.Close()
	os.Exit(code)
}

func newStore(t *testing.T) *db.Store {
	t.Helper()
	if err := handle.Truncate(context.Background()); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	database, err := db.Open(context.Background(), handle.DSN)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return db.NewStore(database, handle.DSN, nil)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStudentsRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	id, err := st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	name := "Asha K"
	if err := st.UpdateStudent(ctx, id, models.StudentPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, err := st.GetStudent(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Name != "Asha K" || s.ClassLevel != 3 || s.UpdatedAt == nil {
		t.Fatalf("student = %+v", s)
	}
	if _, err := st.GetStudent(ctx, "not-a-uuid"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("malformed id: %v", err)
	}
	if err := st.DeleteStudent(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeleteStudent(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestBillBreakdownAndCascade(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sid, _ := st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1})
	bid, err := st.CreateBill(ctx, models.Bill{
		StudentID: sid, StudentName: "Asha", StudentClass: 3, StudentRoll: 1,
		Breakdown:   []models.FeeLine{{FeeName: "Tuition", Amount: dec("500")}, {FeeName: "Lab", Amount: dec("250.50")}},
		TotalAmount: dec("750.50"),
	})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	b, err := st.GetBill(ctx, bid)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(b.Breakdown) != 2 || !b.Breakdown[1].Amount.Equal(dec("250.5")) || !b.TotalAmount.Equal(dec("750.5")) {
		t.Fatalf("bill = %+v", b)
	}

	pid, err := st.CreatePayment(ctx, models.Payment{StudentID: sid, StudentName: "Asha", StudentClass: 3, StudentRoll: 1,
		Amount: dec("100"), FeeName: "Tuition", PaymentDate: time.Now()})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if _, err := st.CreateAllocation(ctx, models.Allocation{PaymentID: pid, BillID: bid, StudentID: sid, Amount: dec("100")}); err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if err := st.DeleteBill(ctx, bid); err != nil {
		t.Fatalf("delete bill: %v", err)
	}
	allocs, _ := st.ListAllocations(ctx, sid)
	if len(allocs) != 0 {
		t.Fatalf("allocations must cascade with the bill, got %d", len(allocs))
	}
	if _, err := st.CreateAllocation(ctx, models.Allocation{PaymentID: pid, BillID: bid, StudentID: sid, Amount: dec("1")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("allocation on missing bill: %v", err)
	}
}

func TestInTxRollback(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	sid, _ := st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1})

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx store.Store) error {
		if err := tx.DeleteStudent(ctx, sid); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := st.GetStudent(ctx, sid); err != nil {
		t.Fatalf("rolled back student missing: %v", err)
	}
}

func TestManagerAndReconcileOnPostgres(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	m := billing.New(st, notify.NewRecorder(0), nil)

	sid, err := m.AddStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1})
	if err != nil {
		t.Fatalf("add student: %v", err)
	}
	if _, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Tuition", Amount: dec("300"), Mandatory: true}); err != nil {
		t.Fatalf("add fee: %v", err)
	}
	if res, err := m.GenerateBills(ctx); err != nil || res.Created != 1 {
		t.Fatalf("generate = %+v, %v", res, err)
	}
	out, err := m.RecordPayment(ctx, billing.PaymentInput{StudentID: sid, Amount: dec("100"), FeeName: "Tuition", PaymentDate: time.Now()})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if out.Bills[0].Status != models.BillPartial {
		t.Fatalf("bill = %+v", out.Bills[0])
	}

	// orphan: student removed behind the service's back
	ghost, _ := st.CreateStudent(ctx, models.Student{Name: "Ghost", ClassLevel: 4, RollNumber: 1})
	_, _ = st.CreatePayment(ctx, models.Payment{StudentID: ghost, StudentName: "Ghost", StudentClass: 4, StudentRoll: 1,
		Amount: dec("10"), FeeName: "Tuition", PaymentDate: time.Now()})
	if err := st.DeleteStudent(ctx, ghost); err != nil {
		t.Fatalf("delete ghost: %v", err)
	}

	rec := notify.NewRecorder(0)
	e := tracking.NewEngine(st, rec, nil)
	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	rep, err := e.Reconcile(ctx, snap)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep.Purged.Payments != 1 || len(rep.Records) != 1 || rep.Records[0].Status != models.PartialPayment {
		t.Fatalf("report = %+v", rep)
	}
	again, _ := e.Reconcile(ctx, snap)
	if again.Purged != (tracking.PurgeCounts{}) {
		t.Fatalf("second pass purged %+v", again.Purged)
	}
}

func TestConcurrentPaymentsNeverOverAllocate(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sid, err := st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1})
	if err != nil {
		t.Fatalf("student: %v", err)
	}
	bid, err := st.CreateBill(ctx, models.Bill{StudentID: sid, StudentName: "Asha", StudentClass: 3, StudentRoll: 1, TotalAmount: dec("500")})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}

	// Separate managers stand in for separate service instances: no shared
	// in-process lock, only the database.
	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := billing.New(st, notify.NewRecorder(0), nil)
			_, err := m.RecordPayment(ctx, billing.PaymentInput{StudentID: sid, Amount: dec("500"), FeeName: "Tuition", PaymentDate: time.Now()})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("pay: %v", err)
		}
	}

	allocs, err := st.ListAllocations(ctx, sid)
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	sum := decimal.Zero
	for _, a := range allocs {
		if a.BillID == bid {
			sum = sum.Add(a.Amount)
		}
	}
	if !sum.Equal(dec("500")) {
		t.Fatalf("bill of 500 has %s allocated", sum)
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	st := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	got := make(chan store.Snapshot, 8)
	unsub, err := st.Subscribe(ctx, []store.Kind{store.Students}, func(s store.Snapshot) { got <- s }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	<-got

	if _, err := st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 3, RollNumber: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for {
		select {
		case s := <-got:
			if len(s.Students) == 1 {
				return
			}
		case <-ctx.Done():
			t.Fatal("no notification")
		}
	}
}

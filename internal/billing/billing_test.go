package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/store"
)

var day0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return day0 }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intp(n int) *int { return &n }

func newManager(t *testing.T) (*Manager, *store.Memory, *notify.Recorder) {
	t.Helper()
	st := store.NewMemory().WithClock(clock)
	rec := notify.NewRecorder(0)
	return New(st, rec, nil, WithClock(clock)), st, rec
}

func mustStudent(t *testing.T, m *Manager, name string, class, roll int) string {
	t.Helper()
	id, err := m.AddStudent(context.Background(), models.Student{Name: name, ClassLevel: class, RollNumber: roll})
	if err != nil {
		t.Fatalf("add student %s: %v", name, err)
	}
	return id
}

// twoBills gives the student bills of 300 then 500, in that store order.
func twoBills(t *testing.T, st *store.Memory, studentID string) (string, string) {
	t.Helper()
	ctx := context.Background()
	b1, err := st.CreateBill(ctx, models.Bill{StudentID: studentID, TotalAmount: dec("300"), BillDate: day0.AddDate(0, -2, 0)})
	if err != nil {
		t.Fatalf("bill 1: %v", err)
	}
	b2, err := st.CreateBill(ctx, models.Bill{StudentID: studentID, TotalAmount: dec("500"), BillDate: day0.AddDate(0, -1, 0)})
	if err != nil {
		t.Fatalf("bill 2: %v", err)
	}
	return b1, b2
}

func pay(t *testing.T, m *Manager, studentID, amount string) *PaymentOutcome {
	t.Helper()
	out, err := m.RecordPayment(context.Background(), PaymentInput{
		StudentID: studentID, Amount: dec(amount), FeeName: "Tuition", PaymentDate: day0,
	})
	if err != nil {
		t.Fatalf("record payment %s: %v", amount, err)
	}
	return out
}

func lastNote(t *testing.T, rec *notify.Recorder) notify.Note {
	t.Helper()
	n, ok := rec.Last()
	if !ok {
		t.Fatal("no notification")
	}
	return n
}

func TestGenerateBillsOncePerStudent(t *testing.T) {
	m, st, rec := newManager(t)
	ctx := context.Background()

	junior := mustStudent(t, m, "Asha", 3, 1)
	senior := mustStudent(t, m, "Ravi", 10, 1)
	mustStudent(t, m, "Kiran", 12, 2)

	rules := []models.FeeRule{
		{Name: "Tuition", Amount: dec("500"), Mandatory: true, ClassTo: intp(11)},
		{Name: "Lab", Amount: dec("300"), Mandatory: true, ClassFrom: intp(9), ClassTo: intp(11)},
		{Name: "Bus", Amount: dec("200"), Mandatory: false},
	}
	for _, r := range rules {
		if _, err := m.AddFeeRule(ctx, r); err != nil {
			t.Fatalf("add fee: %v", err)
		}
	}

	res, err := m.GenerateBills(ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Created != 2 || res.NoFees != 1 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("first run = %+v", res)
	}
	if n := lastNote(t, rec); n.Severity != notify.Success {
		t.Fatalf("severity = %s", n.Severity)
	}

	bills, _ := st.ListBills(ctx, junior)
	if len(bills) != 1 || !bills[0].TotalAmount.Equal(dec("500")) || len(bills[0].Breakdown) != 1 {
		t.Fatalf("junior bill = %+v", bills)
	}
	bills, _ = st.ListBills(ctx, senior)
	if len(bills) != 1 || !bills[0].TotalAmount.Equal(dec("800")) {
		t.Fatalf("senior bill = %+v", bills)
	}
	if bills[0].StudentName != "Ravi" || bills[0].StudentClass != 10 || !bills[0].BillDate.Equal(day0) {
		t.Fatalf("bill not denormalized: %+v", bills[0])
	}

	res, err = m.GenerateBills(ctx)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second run = %+v", res)
	}
	all, _ := st.ListBills(ctx, "")
	if len(all) != 2 {
		t.Fatalf("bills after second run = %d", len(all))
	}
}

type failingBills struct {
	store.Store
}

func (f failingBills) CreateBill(context.Context, models.Bill) (string, error) {
	return "", errors.New("disk full")
}

func (f failingBills) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.InTx(ctx, func(tx store.Store) error { return fn(failingBills{tx}) })
}

func TestGenerateBillsCountsFailures(t *testing.T) {
	st := store.NewMemory()
	rec := notify.NewRecorder(0)
	m := New(failingBills{st}, rec, nil)
	ctx := context.Background()
	_, _ = st.CreateStudent(ctx, models.Student{Name: "Asha", ClassLevel: 1, RollNumber: 1})
	_, _ = st.CreateFeeRule(ctx, models.FeeRule{Name: "Tuition", Amount: dec("100"), Mandatory: true})

	res, err := m.GenerateBills(ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Failed != 1 || res.Created != 0 {
		t.Fatalf("res = %+v", res)
	}
	if n := lastNote(t, rec); n.Severity != notify.Error {
		t.Fatalf("failures must be reported as errors, got %+v", n)
	}
}

func TestRecordPaymentFirstFit(t *testing.T) {
	m, st, _ := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	b1, b2 := twoBills(t, st, sid)

	out := pay(t, m, sid, "400")
	if len(out.Allocations) != 2 {
		t.Fatalf("allocations = %+v", out.Allocations)
	}
	if out.Bills[0].ID != b1 || out.Bills[0].Status != models.BillPaid {
		t.Fatalf("bill 1 = %+v", out.Bills[0])
	}
	v2 := out.Bills[1]
	if v2.ID != b2 || v2.Status != models.BillPartial || v2.PartialAmount == nil || !v2.PartialAmount.Equal(dec("100")) {
		t.Fatalf("bill 2 = %+v", v2)
	}
	if !out.Unallocated.IsZero() {
		t.Fatalf("unallocated = %s", out.Unallocated)
	}
	if out.Payment.StudentName != "Asha" || out.Payment.StudentClass != 3 {
		t.Fatalf("payment not denormalized: %+v", out.Payment)
	}
}

func TestRecordPaymentSkipsPaidBills(t *testing.T) {
	m, st, _ := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	twoBills(t, st, sid)

	pay(t, m, sid, "300")
	out := pay(t, m, sid, "550")
	if out.Bills[0].Status != models.BillPaid || out.Bills[1].Status != models.BillPaid {
		t.Fatalf("bills = %+v", out.Bills)
	}
	if !out.Unallocated.Equal(dec("50")) {
		t.Fatalf("credit = %s", out.Unallocated)
	}
	if len(out.Allocations) != 1 {
		t.Fatalf("second payment should only touch bill 2: %+v", out.Allocations)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	m, st, rec := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PaymentInput
		msg  string
	}{
		{"zero amount", PaymentInput{StudentID: sid, Amount: dec("0"), FeeName: "Tuition", PaymentDate: day0}, "Payment amount must be greater than 0"},
		{"negative amount", PaymentInput{StudentID: sid, Amount: dec("-5"), FeeName: "Tuition", PaymentDate: day0}, "Payment amount must be greater than 0"},
		{"no fee", PaymentInput{StudentID: sid, Amount: dec("5"), FeeName: "  ", PaymentDate: day0}, "Please select a fee name."},
		{"no student", PaymentInput{Amount: dec("5"), FeeName: "Tuition", PaymentDate: day0}, "Please select a valid student."},
		{"unknown student", PaymentInput{StudentID: "nope", Amount: dec("5"), FeeName: "Tuition", PaymentDate: day0}, "Please select a valid student."},
		{"no date", PaymentInput{StudentID: sid, Amount: dec("5"), FeeName: "Tuition"}, "Please select a payment date."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := m.RecordPayment(ctx, c.in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("want ErrInvalidInput, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Msg != c.msg {
				t.Fatalf("message = %v, want %q", err, c.msg)
			}
			if n := lastNote(t, rec); n.Severity != notify.Error || n.Message != c.msg {
				t.Fatalf("note = %+v", n)
			}
		})
	}
	payments, _ := st.ListPayments(ctx, "")
	if len(payments) != 0 {
		t.Fatalf("rejected payments were stored: %d", len(payments))
	}
}

func TestEditPaymentReallocates(t *testing.T) {
	m, st, rec := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	twoBills(t, st, sid)
	ctx := context.Background()

	first := pay(t, m, sid, "400")
	smaller := dec("200")
	out, err := m.EditPayment(ctx, first.Payment.ID, models.PaymentPatch{Amount: &smaller})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if out.Bills[0].Status != models.BillPartial || !out.Bills[0].Allocated.Equal(smaller) {
		t.Fatalf("bill 1 = %+v", out.Bills[0])
	}
	if out.Bills[1].Status != models.BillUnpaid {
		t.Fatalf("bill 2 = %+v", out.Bills[1])
	}
	p, _ := st.GetPayment(ctx, first.Payment.ID)
	if !p.Amount.Equal(smaller) || p.UpdatedAt == nil {
		t.Fatalf("stored payment = %+v", p)
	}
	if n := lastNote(t, rec); n.Message != "Payment updated successfully!" {
		t.Fatalf("note = %+v", n)
	}

	larger := dec("900")
	out, err = m.EditPayment(ctx, first.Payment.ID, models.PaymentPatch{Amount: &larger})
	if err != nil {
		t.Fatalf("edit up: %v", err)
	}
	if out.Bills[0].Status != models.BillPaid || out.Bills[1].Status != models.BillPaid || !out.Unallocated.Equal(dec("100")) {
		t.Fatalf("after raise = %+v credit %s", out.Bills, out.Unallocated)
	}
}

func TestEditPaymentErrors(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	zero := dec("0")
	if _, err := m.EditPayment(ctx, "x", models.PaymentPatch{Amount: &zero}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero amount: %v", err)
	}
	amt := dec("10")
	if _, err := m.EditPayment(ctx, "missing", models.PaymentPatch{Amount: &amt}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing payment: %v", err)
	}
}

func TestRemovePaymentIsExact(t *testing.T) {
	m, st, rec := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	twoBills(t, st, sid)
	ctx := context.Background()

	first := pay(t, m, sid, "300")
	pay(t, m, sid, "200")

	views, err := m.RemovePayment(ctx, first.Payment.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if views[0].Status != models.BillUnpaid {
		t.Fatalf("bill 1 should fall back to unpaid: %+v", views[0])
	}
	if views[1].Status != models.BillPartial || !views[1].PartialAmount.Equal(dec("200")) {
		t.Fatalf("bill 2 keeps the other payment: %+v", views[1])
	}
	if n := lastNote(t, rec); n.Message != "Payment of ₹300 deleted successfully!" {
		t.Fatalf("note = %q", n.Message)
	}
	if _, err := m.RemovePayment(ctx, first.Payment.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second remove: %v", err)
	}
	if n := lastNote(t, rec); n.Message != "Payment not found." {
		t.Fatalf("note = %q", n.Message)
	}
}

func TestRemovePaymentSpendsOtherCredit(t *testing.T) {
	m, st, _ := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	ctx := context.Background()
	b, err := st.CreateBill(ctx, models.Bill{StudentID: sid, TotalAmount: dec("500"), BillDate: day0.AddDate(0, -1, 0)})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}

	first := pay(t, m, sid, "500")
	extra := pay(t, m, sid, "200")
	if !extra.Unallocated.Equal(dec("200")) {
		t.Fatalf("second payment should be pure credit, left %s", extra.Unallocated)
	}

	views, err := m.RemovePayment(ctx, first.Payment.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(views) != 1 || views[0].ID != b || views[0].Status != models.BillPartial || !views[0].Allocated.Equal(dec("200")) {
		t.Fatalf("credit not applied to reopened bill: %+v", views)
	}
	allocs, _ := st.ListAllocations(ctx, sid)
	if len(allocs) != 1 || allocs[0].PaymentID != extra.Payment.ID {
		t.Fatalf("allocations = %+v", allocs)
	}
}

func TestEditPaymentDownSpendsOtherCredit(t *testing.T) {
	m, st, _ := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	twoBills(t, st, sid)
	ctx := context.Background()

	first := pay(t, m, sid, "800")
	pay(t, m, sid, "150")

	smaller := dec("300")
	out, err := m.EditPayment(ctx, first.Payment.ID, models.PaymentPatch{Amount: &smaller})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if out.Bills[0].Status != models.BillPaid {
		t.Fatalf("bill 1 = %+v", out.Bills[0])
	}
	if out.Bills[1].Status != models.BillPartial || !out.Bills[1].Allocated.Equal(dec("150")) {
		t.Fatalf("bill 2 should take the credit: %+v", out.Bills[1])
	}
}

func TestGenerateBillsSpendsPriorCredit(t *testing.T) {
	m, st, _ := newManager(t)
	ctx := context.Background()
	sid := mustStudent(t, m, "Asha", 3, 1)
	if _, err := st.CreateFeeRule(ctx, models.FeeRule{Name: "Tuition", Amount: dec("500"), Mandatory: true}); err != nil {
		t.Fatalf("fee: %v", err)
	}

	early := pay(t, m, sid, "500")
	if len(early.Allocations) != 0 || !early.Unallocated.Equal(dec("500")) {
		t.Fatalf("payment before any bill = %+v", early)
	}
	res, err := m.GenerateBills(ctx)
	if err != nil || res.Created != 1 {
		t.Fatalf("generate: %+v %v", res, err)
	}
	views, err := m.BillViews(ctx, sid)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(views) != 1 || views[0].Status != models.BillPaid || !views[0].Outstanding.IsZero() {
		t.Fatalf("new bill should be settled by the earlier payment: %+v", views)
	}
}

func TestDeleteBillTakesItsPayments(t *testing.T) {
	m, st, _ := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	b1, _ := twoBills(t, st, sid)
	ctx := context.Background()

	onFirst := pay(t, m, sid, "300")
	onSecond := pay(t, m, sid, "100")

	if err := m.DeleteBill(ctx, b1); err != nil {
		t.Fatalf("delete bill: %v", err)
	}
	if _, err := st.GetPayment(ctx, onFirst.Payment.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("payment on deleted bill survived: %v", err)
	}
	if _, err := st.GetPayment(ctx, onSecond.Payment.ID); err != nil {
		t.Fatalf("unrelated payment removed: %v", err)
	}
	views, _ := m.BillViews(ctx, sid)
	if len(views) != 1 || views[0].Status != models.BillPartial {
		t.Fatalf("remaining bills = %+v", views)
	}
}

func TestDeleteStudentCascades(t *testing.T) {
	m, st, rec := newManager(t)
	sid := mustStudent(t, m, "Asha", 3, 1)
	other := mustStudent(t, m, "Ravi", 3, 2)
	twoBills(t, st, sid)
	twoBills(t, st, other)
	pay(t, m, sid, "400")
	pay(t, m, other, "50")
	ctx := context.Background()

	if err := m.DeleteStudent(ctx, sid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap, _ := st.Snapshot(ctx)
	if len(snap.Students) != 1 || len(snap.Bills) != 2 || len(snap.Payments) != 1 || len(snap.Allocations) != 1 {
		t.Fatalf("left: %d students, %d bills, %d payments, %d allocations",
			len(snap.Students), len(snap.Bills), len(snap.Payments), len(snap.Allocations))
	}
	if n := lastNote(t, rec); n.Message != "Asha and all associated records deleted successfully!" {
		t.Fatalf("note = %q", n.Message)
	}
	if err := m.DeleteStudent(ctx, sid); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

// brokenDelete fails the last step of the student cascade.
type brokenDelete struct {
	store.Store
}

func (b brokenDelete) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return b.Store.InTx(ctx, func(tx store.Store) error { return fn(brokenDelete{tx}) })
}

func (brokenDelete) DeleteStudent(context.Context, string) error {
	return errors.New("connection reset")
}

func TestDeleteStudentRollsBack(t *testing.T) {
	st := store.NewMemory()
	rec := notify.NewRecorder(0)
	good := New(st, rec, nil)
	sid := mustStudent(t, good, "Asha", 3, 1)
	twoBills(t, st, sid)
	pay(t, good, sid, "400")

	m := New(brokenDelete{st}, rec, nil)
	if err := m.DeleteStudent(context.Background(), sid); err == nil {
		t.Fatal("expected failure")
	}
	snap, _ := st.Snapshot(context.Background())
	if len(snap.Students) != 1 || len(snap.Bills) != 2 || len(snap.Payments) != 1 || len(snap.Allocations) != 2 {
		t.Fatalf("cascade partially applied: %+v", snap)
	}
	if n := lastNote(t, rec); n.Message != "Error deleting student. Please try again." {
		t.Fatalf("note = %q", n.Message)
	}
}

func TestAddStudentValidation(t *testing.T) {
	m, st, _ := newManager(t)
	mustStudent(t, m, "Asha", 3, 1)
	ctx := context.Background()

	cases := []struct {
		name string
		s    models.Student
		msg  string
	}{
		{"blank name", models.Student{Name: "   ", ClassLevel: 3, RollNumber: 2}, "Name cannot be empty"},
		{"class 0", models.Student{Name: "B", ClassLevel: 0, RollNumber: 2}, "Class must be between 1 and 12"},
		{"class 13", models.Student{Name: "B", ClassLevel: 13, RollNumber: 2}, "Class must be between 1 and 12"},
		{"roll 0", models.Student{Name: "B", ClassLevel: 3, RollNumber: 0}, "Roll number must be greater than 0"},
		{"duplicate roll", models.Student{Name: "B", ClassLevel: 3, RollNumber: 1}, "Roll number 1 already exists in Class 3"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := m.AddStudent(ctx, c.s)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Msg != c.msg {
				t.Fatalf("err = %v, want %q", err, c.msg)
			}
		})
	}
	if _, err := m.AddStudent(ctx, models.Student{Name: "Same roll other class", ClassLevel: 4, RollNumber: 1}); err != nil {
		t.Fatalf("roll is unique per class only: %v", err)
	}
	students, _ := st.ListStudents(ctx)
	if len(students) != 2 {
		t.Fatalf("students = %d", len(students))
	}
}

func TestUpdateStudent(t *testing.T) {
	m, st, _ := newManager(t)
	ctx := context.Background()
	a := mustStudent(t, m, "Asha", 3, 1)
	mustStudent(t, m, "Ravi", 4, 1)

	four := 4
	if err := m.UpdateStudent(ctx, a, models.StudentPatch{ClassLevel: &four}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("moving into a taken roll should fail: %v", err)
	}
	one := 1
	if err := m.UpdateStudent(ctx, a, models.StudentPatch{RollNumber: &one}); err != nil {
		t.Fatalf("keeping own roll must pass: %v", err)
	}
	name := " Asha K "
	if err := m.UpdateStudent(ctx, a, models.StudentPatch{Name: &name}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	s, _ := st.GetStudent(ctx, a)
	if s.Name != "Asha K" || s.UpdatedAt == nil {
		t.Fatalf("student = %+v", s)
	}
	if err := m.UpdateStudent(ctx, "missing", models.StudentPatch{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestImportStudents(t *testing.T) {
	m, _, rec := newManager(t)
	mustStudent(t, m, "Asha", 3, 1)

	res, err := m.ImportStudents(context.Background(), []ImportRow{
		{Student: models.Student{Name: "Ravi", ClassLevel: 3, RollNumber: 2}},
		{Student: models.Student{Name: "Dup of Asha", ClassLevel: 3, RollNumber: 1}},
		{Student: models.Student{Name: "Dup in file", ClassLevel: 3, RollNumber: 2}},
		{Student: models.Student{Name: "", ClassLevel: 3, RollNumber: 9}},
		{Line: 7, Student: models.Student{Name: "Meera", ClassLevel: 5, RollNumber: 1}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Created) != 2 || len(res.Errors) != 3 {
		t.Fatalf("res = %+v", res)
	}
	if res.Errors[0] != "Row 2: Roll number 1 already exists in Class 3" {
		t.Fatalf("first error = %q", res.Errors[0])
	}
	if n := lastNote(t, rec); n.Message != "3 students failed to import. Check results for details." {
		t.Fatalf("note = %q", n.Message)
	}

	if _, err := m.ImportStudents(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty import: %v", err)
	}
}

func TestFeeRules(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	_, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Lab", Amount: dec("100"), ClassFrom: intp(9), ClassTo: intp(5)})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Msg != "From Class cannot be greater than To Class." {
		t.Fatalf("inverted range: %v", err)
	}
	if _, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Lab", Amount: dec("100"), ClassTo: intp(14)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out of range: %v", err)
	}
	if _, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Lab", Amount: dec("-1")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative: %v", err)
	}
	if _, err := m.AddFeeRule(ctx, models.FeeRule{Name: " ", Amount: dec("1")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: %v", err)
	}

	tuition, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Tuition", Amount: dec("500"), Mandatory: true})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.AddFeeRule(ctx, models.FeeRule{Name: "Bus", Amount: dec("200"), ClassFrom: intp(1), ClassTo: intp(5)}); err != nil {
		t.Fatalf("add optional: %v", err)
	}

	sid := mustStudent(t, m, "Asha", 3, 1)
	fees, err := m.FeeNamesFor(ctx, sid)
	if err != nil {
		t.Fatalf("fee names: %v", err)
	}
	if len(fees) != 2 {
		t.Fatalf("payment form should list optional fees too: %+v", fees)
	}

	if err := m.DeleteFeeRule(ctx, tuition); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteFeeRule(ctx, tuition); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

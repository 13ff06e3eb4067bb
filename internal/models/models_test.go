package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatRupees(t *testing.T) {
	cases := map[string]string{
		"0":        "₹0",
		"500":      "₹500",
		"1500":     "₹1,500",
		"1234567":  "₹1,234,567",
		"99.5":     "₹99.50",
		"-2500.25": "-₹2,500.25",
	}
	for in, want := range cases {
		if got := FormatRupees(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatRupees(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFeeRuleRangeDefaults(t *testing.T) {
	five := 5
	from, to := FeeRule{ClassTo: &five}.Range()
	if from != MinClassLevel || to != 5 {
		t.Fatalf("range = %d-%d", from, to)
	}
}

func TestPatches(t *testing.T) {
	name := "Ravi"
	s := StudentPatch{Name: &name}.Apply(Student{Name: "R", ClassLevel: 4, RollNumber: 2})
	if s.Name != "Ravi" || s.ClassLevel != 4 || s.RollNumber != 2 {
		t.Fatalf("student patch: %+v", s)
	}

	amt := decimal.NewFromInt(700)
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	p := PaymentPatch{Amount: &amt, PaymentDate: &day}.Apply(Payment{Amount: decimal.NewFromInt(1), FeeName: "Bus"})
	if !p.Amount.Equal(amt) || p.FeeName != "Bus" || !p.PaymentDate.Equal(day) {
		t.Fatalf("payment patch: %+v", p)
	}
}

func TestPaymentStatusLabels(t *testing.T) {
	for _, s := range []PaymentStatus{PaidFull, PartialPayment, Overdue, Pending} {
		if !s.IsValid() || s.Label() == "" {
			t.Fatalf("status %q", s)
		}
	}
	if PaymentStatus("bogus").IsValid() {
		t.Fatal("bogus status should be invalid")
	}
}

func TestBillStatusIsValid(t *testing.T) {
	for _, s := range []BillStatus{BillUnpaid, BillPartial, BillPaid} {
		if !s.IsValid() {
			t.Fatalf("status %q", s)
		}
	}
	if BillStatus("settled").IsValid() {
		t.Fatal("unknown bill status should be invalid")
	}
}

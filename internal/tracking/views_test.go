package tracking

import (
	"reflect"
	"testing"
	"time"

	"github.com/Spok95/school-fees/internal/ledger"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

func sampleRecords() []Record {
	snap := store.Snapshot{
		Students: []models.Student{
			student("s1", "Meera", 3),
			student("s2", "asha", 5),
			student("s3", "Ravi", 3),
		},
		Bills: []models.Bill{
			bill("b1", "s1", "500", daysAgo(45)),
			bill("b2", "s2", "800", daysAgo(5)),
			bill("b3", "s3", "300", daysAgo(5)),
		},
		Payments: []models.Payment{
			payment("p3", "s3", "300", daysAgo(1)),
			payment("p2", "s2", "100", daysAgo(4)),
		},
	}
	return Summarize(snap, now, DefaultOverdueAfter).Records
}

func ids(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.StudentID
	}
	return out
}

func TestFilter(t *testing.T) {
	rs := sampleRecords()
	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"everything", Query{}, []string{"s1", "s2", "s3"}},
		{"name any case", Query{Search: "ASHA"}, []string{"s2"}},
		{"by id", Query{Search: "s3"}, []string{"s3"}},
		{"by amount", Query{Search: "800"}, []string{"s2"}},
		{"status", Query{Status: models.Overdue}, []string{"s1"}},
		{"class", Query{Class: 3}, []string{"s1", "s3"}},
		{"class and status", Query{Class: 3, Status: models.PaidFull}, []string{"s3"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ids(Filter(rs, c.q))
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestSort(t *testing.T) {
	rs := sampleRecords()
	cases := []struct {
		key  SortKey
		want []string
	}{
		{ByName, []string{"s2", "s1", "s3"}},
		{ByAmountDue, []string{"s2", "s1", "s3"}},
		{ByLastPayment, []string{"s3", "s2", "s1"}},
		{ByStatus, []string{"s1", "s3", "s2"}},
		{SortKey("bogus"), []string{"s1", "s2", "s3"}},
	}
	for _, c := range cases {
		t.Run(string(c.key), func(t *testing.T) {
			got := ids(Sort(rs, c.key))
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
	if ids(rs)[0] != "s1" {
		t.Fatal("Sort must not reorder its input")
	}
	if _, ok := ParseSortKey("Amount_Due"); !ok {
		t.Fatal("sort keys are case-insensitive")
	}
}

func TestClassSummaries(t *testing.T) {
	cs := ClassSummaries(sampleRecords())
	if len(cs) != 2 || cs[0].Class != 3 || cs[1].Class != 5 {
		t.Fatalf("classes = %+v", cs)
	}
	c3 := cs[0]
	if c3.Students != 2 || !c3.TotalDue.Equal(dec("800")) || !c3.Collected.Equal(dec("300")) || !c3.Outstanding.Equal(dec("500")) {
		t.Fatalf("class 3 = %+v", c3)
	}
	if c3.CollectionRate != 37.5 || c3.OverdueCount != 1 || c3.Label() != "Class 3" {
		t.Fatalf("class 3 = %+v", c3)
	}
}

func TestDashboardStats(t *testing.T) {
	d := DashboardStats(store.Snapshot{
		Students: []models.Student{student("s1", "A", 3), student("s2", "B", 3)},
		Bills:    []models.Bill{bill("b1", "s1", "500", now), bill("b2", "s2", "300", now)},
		Allocations: []models.Allocation{
			{ID: "a1", PaymentID: "p1", BillID: "b1", StudentID: "s1", Amount: dec("500")},
		},
	})
	if d.Students != 2 || d.ClassCounts[3] != 2 || d.ClassCounts[12] != 0 || len(d.ClassCounts) != 12 {
		t.Fatalf("dashboard = %+v", d)
	}
	if !d.CollectedOnPaid.Equal(dec("500")) || d.PendingBills != 1 {
		t.Fatalf("dashboard = %+v", d)
	}
}

func TestDaysOverdue(t *testing.T) {
	r := Record{Bills: []ledger.BillView{
		{Bill: bill("b1", "s1", "100", daysAgo(10)), Status: models.BillUnpaid},
		{Bill: bill("b2", "s1", "100", daysAgo(50)), Status: models.BillPaid},
		{Bill: bill("b3", "s1", "100", daysAgo(35)), Status: models.BillUnpaid},
	}}
	if got := DaysOverdue(r, now); got != 35 {
		t.Fatalf("days = %d, want 35", got)
	}
	if got := DaysOverdue(Record{}, now); got != 0 {
		t.Fatalf("no bills: %d", got)
	}
}

func billIDs(bs []ledger.BillView) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func sampleBills() []ledger.BillView {
	mk := func(id, name string, class, roll int, total string, at time.Time) models.Bill {
		return models.Bill{ID: id, StudentID: "s-" + id, StudentName: name, StudentClass: class, StudentRoll: roll, TotalAmount: dec(total), BillDate: at}
	}
	bills := []models.Bill{
		mk("b1", "Meera", 3, 7, "500", daysAgo(45)),
		mk("b2", "asha", 5, 2, "800", daysAgo(5)),
		mk("b3", "Ravi", 3, 4, "300", daysAgo(20)),
	}
	allocs := []models.Allocation{
		{PaymentID: "p1", BillID: "b3", Amount: dec("300")},
		{PaymentID: "p2", BillID: "b2", Amount: dec("100")},
	}
	return ledger.Project(bills, allocs)
}

func TestFilterBills(t *testing.T) {
	bs := sampleBills()
	cases := []struct {
		name string
		q    BillQuery
		want []string
	}{
		{"everything", BillQuery{}, []string{"b1", "b2", "b3"}},
		{"class", BillQuery{Class: 3}, []string{"b1", "b3"}},
		{"status", BillQuery{Status: models.BillPartial}, []string{"b2"}},
		{"name any case", BillQuery{Search: "ASHA"}, []string{"b2"}},
		{"total as text", BillQuery{Search: "80"}, []string{"b2"}},
		{"roll as text", BillQuery{Search: "7"}, []string{"b1"}},
		{"combined", BillQuery{Class: 3, Status: models.BillPaid}, []string{"b3"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := billIDs(FilterBills(bs, c.q))
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestSortBills(t *testing.T) {
	bs := sampleBills()
	cases := []struct {
		key  BillSortKey
		want []string
	}{
		{BillsByName, []string{"b2", "b1", "b3"}},
		{BillsByAmount, []string{"b2", "b1", "b3"}},
		{BillsByDate, []string{"b2", "b3", "b1"}},
		{BillsByStatus, []string{"b3", "b2", "b1"}},
	}
	for _, c := range cases {
		if got := billIDs(SortBills(bs, c.key)); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("%s: got %v, want %v", c.key, got, c.want)
		}
	}
	if got := billIDs(SortBills(bs, "")); !reflect.DeepEqual(got, []string{"b1", "b2", "b3"}) {
		t.Fatalf("unknown key must keep order: %v", got)
	}
	if k, ok := ParseBillSortKey(""); !ok || k != BillsByName {
		t.Fatalf("default key = %q", k)
	}
	if _, ok := ParseBillSortKey("size"); ok {
		t.Fatal("unknown key accepted")
	}
}

func TestAllBillsFlattensRecords(t *testing.T) {
	got := billIDs(AllBills(sampleRecords()))
	if len(got) != 3 {
		t.Fatalf("bills = %v", got)
	}
}

package orderportal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zulandar/dailyread/internal/project"
)

var fixedNow = time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC)

func daysAgo(n int) *string {
	s := fixedNow.AddDate(0, 0, -n).Format("2006-01-02")
	return &s
}

func newTestReconciler() *Reconciler {
	return NewReconciler(ReconcilerOptions{Now: func() time.Time { return fixedNow }})
}

var openDates = map[string][]string{
	"2023-06-15": {"Samples Received"},
	"2023-06-28": {"Reception Control finished", "Library QC finished"},
}

var closedDates = map[string][]string{
	"2023-06-15": {"Samples Received"},
	"2023-06-28": {"Reception Control finished", "Library QC finished"},
	"2023-07-28": {"All Samples Sequenced"},
	"2023-07-29": {"All Raw data Delivered"},
}

func mustRecord(t *testing.T, id string, dates map[string][]string) *project.Record {
	t.Helper()
	r, err := project.NewRecord("NGIS/2023/"+id+".json", "dummy@dummy.se", dates, "P"+id[3:], "D.Dummysson_"+id[3:], project.DefaultPriority())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

func openOrder(id string) Order {
	return Order{
		Identifier: id,
		Status:     "processing",
		Owner:      Owner{Email: "dummy@dummy.se"},
		History:    map[string]*string{"closed": nil, "aborted": nil},
	}
}

func closedOrder(id, status string, days int) Order {
	o := openOrder(id)
	o.Status = status
	o.History[strings.ToLower(status)] = daysAgo(days)
	return o
}

func TestClassify(t *testing.T) {
	r := newTestReconciler()
	tests := []struct {
		name  string
		order Order
		want  Disposition
	}{
		{"open", openOrder("NGI1"), Active},
		{"closed 10 days ago", closedOrder("NGI1", "closed", 10), Active},
		{"closed on cutoff", closedOrder("NGI1", "closed", 30), Active},
		{"closed 31 days ago", closedOrder("NGI1", "closed", 31), ClosingWindow},
		{"closed 35 days ago", closedOrder("NGI1", "closed", 35), ClosingWindow},
		{"closed 36 days ago", closedOrder("NGI1", "closed", 36), Expired},
		{"closed 40 days ago", closedOrder("NGI1", "closed", 40), Expired},
		{"aborted 31 days ago", closedOrder("NGI1", "aborted", 31), ClosingWindow},
		{"Rejected 33 days ago", closedOrder("NGI1", "Rejected", 33), ClosingWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Classify(tt.order)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_ClosedWithoutDate(t *testing.T) {
	o := openOrder("NGI1")
	o.Status = "closed"
	_, err := newTestReconciler().Classify(o)
	if !errors.Is(err, project.ErrDataIntegrity) {
		t.Errorf("Classify err = %v, want ErrDataIntegrity", err)
	}
}

func TestClassify_CustomWindow(t *testing.T) {
	r := NewReconciler(ReconcilerOptions{ClosedBeforeInDays: dayCount(10), PaddingDays: dayCount(2), Now: func() time.Time { return fixedNow }})
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 12)); got != ClosingWindow {
		t.Errorf("12 days = %v, want closing-window", got)
	}
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 13)); got != Expired {
		t.Errorf("13 days = %v, want expired", got)
	}
}

func dayCount(n int) *int { return &n }

func TestClassify_ZeroWindow(t *testing.T) {
	r := NewReconciler(ReconcilerOptions{ClosedBeforeInDays: dayCount(0), PaddingDays: dayCount(0), Now: func() time.Time { return fixedNow }})
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 0)); got != Active {
		t.Errorf("closed today = %v, want active", got)
	}
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 1)); got != Expired {
		t.Errorf("1 day = %v, want expired", got)
	}
}

func TestClassify_ZeroPadding(t *testing.T) {
	r := NewReconciler(ReconcilerOptions{PaddingDays: dayCount(0), Now: func() time.Time { return fixedNow }})
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 30)); got != Active {
		t.Errorf("30 days = %v, want active", got)
	}
	if got, _ := r.Classify(closedOrder("NGI1", "closed", 31)); got != Expired {
		t.Errorf("31 days = %v, want expired", got)
	}
}

func TestReconcile_OpenOrder(t *testing.T) {
	rec := mustRecord(t, "NGI123456", openDates)
	bundles, err := newTestReconciler().Reconcile([]Order{openOrder("NGI123456")}, map[string]*project.Record{"NGI123456": rec})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	b := bundles["dummy@dummy.se"]
	if b == nil {
		t.Fatal("no bundle for dummy@dummy.se")
	}
	got := b.Projects["Library QC finished"]
	if len(got) != 1 || got[0] != rec {
		t.Errorf("projects[Library QC finished] = %v, want the open record", got)
	}
	if b.ActiveProjects != 1 {
		t.Errorf("ActiveProjects = %d, want 1", b.ActiveProjects)
	}
	if len(b.DeleteReportFor) != 0 {
		t.Errorf("DeleteReportFor = %v, want empty", b.DeleteReportFor)
	}
	if b.PullDate != "2024-01-20 09:30:00" {
		t.Errorf("PullDate = %q", b.PullDate)
	}
	if rec.ReportRef != "" {
		t.Errorf("ReportRef = %q, want empty", rec.ReportRef)
	}
}

func TestReconcile_Windows(t *testing.T) {
	records := map[string]*project.Record{
		"NGI123455": mustRecord(t, "NGI123455", closedDates),
		"NGI123461": mustRecord(t, "NGI123461", openDates),
		"NGI123462": mustRecord(t, "NGI123462", openDates),
	}
	aborted := closedOrder("NGI123461", "Rejected", 33)
	aborted.Reports = []Report{{IUID: "c5ee943", Name: ReportName, Status: "published"}}
	orders := []Order{
		closedOrder("NGI123455", "closed", 31),
		aborted,
		closedOrder("NGI123462", "closed", 40),
		openOrder("NGI999999"),
	}

	bundles, err := newTestReconciler().Reconcile(orders, records)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	b := bundles["dummy@dummy.se"]
	if b == nil {
		t.Fatal("no bundle")
	}
	if got := b.DeleteReportFor["All Raw data Delivered"]; len(got) != 1 || got[0] != records["NGI123455"] {
		t.Errorf("delete_report_for[All Raw data Delivered] = %v", got)
	}
	if got := b.DeleteReportFor["Library QC finished"]; len(got) != 1 || got[0] != records["NGI123461"] {
		t.Errorf("delete_report_for[Library QC finished] = %v", got)
	}
	if records["NGI123461"].ReportRef != "c5ee943" {
		t.Errorf("ReportRef = %q, want c5ee943", records["NGI123461"].ReportRef)
	}
	if b.ActiveProjects != 0 || len(b.Projects) != 0 || len(b.Recents) != 0 {
		t.Errorf("closing orders touched active state: %+v", b)
	}
	for _, recs := range b.DeleteReportFor {
		for _, r := range recs {
			if r.ProjectID == "NGI123462" {
				t.Error("expired order surfaced in bundle")
			}
		}
	}
}

func TestReconcile_UnmatchedOnly(t *testing.T) {
	bundles, err := newTestReconciler().Reconcile([]Order{openOrder("NGI1")}, map[string]*project.Record{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("bundles = %v, want none", bundles)
	}
}

func TestReconcile_SingleReport(t *testing.T) {
	rec := mustRecord(t, "NGI123453", openDates)
	o := openOrder("NGI123453")
	o.Reports = []Report{
		{IUID: "other", Name: "Invoice"},
		{IUID: "c5ee942", Name: ReportName, Status: "published"},
	}
	if _, err := newTestReconciler().Reconcile([]Order{o}, map[string]*project.Record{"NGI123453": rec}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.ReportRef != "c5ee942" {
		t.Errorf("ReportRef = %q, want c5ee942", rec.ReportRef)
	}
}

func TestReconcile_MultipleReports(t *testing.T) {
	records := map[string]*project.Record{
		"NGI123456": mustRecord(t, "NGI123456", openDates),
		"NGI123454": mustRecord(t, "NGI123454", openDates),
	}
	o := openOrder("NGI123454")
	o.Reports = []Report{{IUID: "c5ee942", Name: ReportName}, {IUID: "c5ee941", Name: ReportName}}

	_, err := newTestReconciler().Reconcile([]Order{openOrder("NGI123456"), o}, records)
	if !errors.Is(err, project.ErrDataIntegrity) {
		t.Fatalf("Reconcile err = %v, want ErrDataIntegrity", err)
	}
	if !strings.Contains(err.Error(), "multiple reports for Project Progress for order NGI123454") {
		t.Errorf("Reconcile err = %q, want order id", err)
	}
}

func TestReconcile_OwnerFallback(t *testing.T) {
	rec := mustRecord(t, "NGI1", openDates)
	o := openOrder("NGI1")
	o.Owner = Owner{}
	bundles, err := newTestReconciler().Reconcile([]Order{o}, map[string]*project.Record{"NGI1": rec})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if bundles["dummy@dummy.se"] == nil {
		t.Errorf("bundles = %v, want keyed by record orderer", bundles)
	}
}

func TestReconcile_NoDatesUnderNone(t *testing.T) {
	rec := mustRecord(t, "NGI1", nil)
	bundles, err := newTestReconciler().Reconcile([]Order{openOrder("NGI1")}, map[string]*project.Record{"NGI1": rec})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := bundles["dummy@dummy.se"].Projects[project.StatusNone]; len(got) != 1 {
		t.Errorf("projects[None] = %v", got)
	}
}

func TestReconcile_Recents(t *testing.T) {
	records := map[string]*project.Record{
		"NGI1": mustRecord(t, "NGI1", closedDates),
		"NGI2": mustRecord(t, "NGI2", map[string][]string{
			"2023-07-29": {"Samples Received"},
			"2023-08-01": {"Reception Control finished"},
		}),
	}
	bundles, err := newTestReconciler().Reconcile([]Order{openOrder("NGI1"), openOrder("NGI2")}, records)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	b := bundles["dummy@dummy.se"]

	type ev struct{ Date, Status, ID string }
	var got []ev
	for _, e := range b.Recents {
		got = append(got, ev{e.Date, e.Status, e.ProjectID})
	}
	want := []ev{
		{"2023-08-01", "Reception Control finished", "NGI2"},
		{"2023-07-29", "All Raw data Delivered", "NGI1"},
		{"2023-07-29", "Samples Received", "NGI2"},
		{"2023-07-28", "All Samples Sequenced", "NGI1"},
		{"2023-06-28", "Library QC finished", "NGI1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recents mismatch (-want +got):\n%s", diff)
	}
	if b.ActiveProjects != 2 {
		t.Errorf("ActiveProjects = %d, want 2", b.ActiveProjects)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	records := map[string]*project.Record{
		"NGI1": mustRecord(t, "NGI1", closedDates),
		"NGI2": mustRecord(t, "NGI2", openDates),
		"NGI3": mustRecord(t, "NGI3", openDates),
	}
	withReport := openOrder("NGI2")
	withReport.Reports = []Report{{IUID: "r2", Name: ReportName}}
	orders := []Order{openOrder("NGI1"), withReport, closedOrder("NGI3", "closed", 32)}

	r := newTestReconciler()
	first, err := r.Reconcile(orders, records)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	a, _ := json.Marshal(first)
	second, err := r.Reconcile(orders, records)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("bundles differ:\n%s\n%s", a, b)
	}
	if diff := cmp.Diff(first["dummy@dummy.se"].Recents, second["dummy@dummy.se"].Recents); diff != "" {
		t.Errorf("recents drifted (-first +second):\n%s", diff)
	}
}

func TestBundle_Statuses(t *testing.T) {
	prio := project.DefaultPriority()
	records := map[string]*project.Record{
		"NGI1": mustRecord(t, "NGI1", closedDates),
		"NGI2": mustRecord(t, "NGI2", openDates),
		"NGI3": mustRecord(t, "NGI3", nil),
	}
	bundles, err := newTestReconciler().Reconcile([]Order{openOrder("NGI3"), openOrder("NGI2"), openOrder("NGI1")}, records)
	if err != nil {
		t.Fatal(err)
	}
	got := bundles["dummy@dummy.se"].Statuses(prio)
	want := []string{"All Raw data Delivered", "Library QC finished", project.StatusNone}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Statuses mismatch (-want +got):\n%s", diff)
	}
	if n := len(bundles["dummy@dummy.se"].ActiveRecords(prio)); n != 3 {
		t.Errorf("ActiveRecords = %d, want 3", n)
	}
}

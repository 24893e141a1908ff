package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/zulandar/dailyread/internal/db"
	"github.com/zulandar/dailyread/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testHistory(t *testing.T) *db.History {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.NewHistory(gdb)
}

func writeReport(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRouter(t *testing.T, opts StartOpts) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := newRouter(opts)
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStart_NilHistory(t *testing.T) {
	err := Start(context.Background(), StartOpts{ReportsDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for nil history")
	}
	if !strings.Contains(err.Error(), "run history is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "run history is required")
	}
}

func TestStart_NoReportsDir(t *testing.T) {
	err := Start(context.Background(), StartOpts{History: testHistory(t)})
	if err == nil || !strings.Contains(err.Error(), "reports location is required") {
		t.Errorf("error = %v, want reports location error", err)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	opts := StartOpts{History: testHistory(t), ReportsDir: t.TempDir(), Port: 18000 + int(time.Now().UnixNano()%1000)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, opts)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestEmbeddedAssets(t *testing.T) {
	data, err := assetsFS.ReadFile("assets/style.css")
	if err != nil {
		t.Fatalf("style.css not embedded: %v", err)
	}
	if len(data) == 0 {
		t.Error("style.css is empty")
	}
}

func TestEmbeddedTemplates(t *testing.T) {
	data, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		t.Fatalf("layout.html not embedded: %v", err)
	}
	if !strings.Contains(string(data), "Daily Read") {
		t.Error("layout.html does not contain 'Daily Read'")
	}
}

func TestHealthz(t *testing.T) {
	router := testRouter(t, StartOpts{ReportsDir: t.TempDir()})
	w := get(router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStatic(t *testing.T) {
	router := testRouter(t, StartOpts{ReportsDir: t.TempDir()})
	w := get(router, "/static/style.css")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestListReports(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "dummy@dummy.se_2024-01-19.html", "old")
	writeReport(t, dir, "dummy@dummy.se_2024-01-20.html", "new")
	writeReport(t, dir, "another@dummy.se_2024-01-20.html", "new")
	writeReport(t, dir, "notes.txt", "skip")
	if err := os.Mkdir(filepath.Join(dir, "sub.html"), 0o755); err != nil {
		t.Fatal(err)
	}

	rows, err := ListReports(dir)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, r.Orderer+" "+r.PullDay)
	}
	want := []string{
		"another@dummy.se 2024-01-20",
		"dummy@dummy.se 2024-01-20",
		"dummy@dummy.se 2024-01-19",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestListReports_MissingDir(t *testing.T) {
	rows, err := ListReports(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %v, want none", rows)
	}
}

func TestReportPath(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"dummy@dummy.se_2024-01-20.html", true},
		{"", false},
		{"../secret.html", false},
		{"a/b.html", false},
		{".hidden.html", false},
		{"report.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := reportPath("/data", tt.name)
			if ok != tt.ok {
				t.Errorf("reportPath(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
		})
	}
}

func TestServeReport(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "dummy@dummy.se_2024-01-20.html", "<h1>hello</h1>")
	router := testRouter(t, StartOpts{ReportsDir: dir})

	w := get(router, "/reports/dummy@dummy.se_2024-01-20.html")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "<h1>hello</h1>" {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := get(router, "/reports/missing.html"); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
	if w := get(router, "/reports/notes.txt"); w.Code != http.StatusBadRequest {
		t.Errorf("bad name status = %d, want 400", w.Code)
	}
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "dummy@dummy.se_2024-01-20.html", "x")
	history := testHistory(t)
	run, err := history.StartRun("upload", time.Date(2024, 1, 20, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	run.Uploaded = 3
	if err := history.FinishRun(run, time.Date(2024, 1, 20, 6, 1, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	router := testRouter(t, StartOpts{History: history, ReportsDir: dir})
	w := get(router, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"dummy@dummy.se_2024-01-20.html", "/runs/" + run.ID, "2024-01-20 06:00"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestRunsAPI(t *testing.T) {
	history := testHistory(t)
	first, _ := history.StartRun("generate", time.Date(2024, 1, 19, 6, 0, 0, 0, time.UTC))
	second, _ := history.StartRun("upload", time.Date(2024, 1, 20, 6, 0, 0, 0, time.UTC))
	attempt := &models.UploadAttempt{RunID: second.ID, ProjectID: "P1", Orderer: "dummy@dummy.se", Status: "published", StatusCode: 200, OK: true}
	if err := history.RecordUpload(attempt); err != nil {
		t.Fatal(err)
	}
	router := testRouter(t, StartOpts{History: history, ReportsDir: t.TempDir()})

	w := get(router, "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var runs []models.RunLog
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("runs = %+v, want newest first", runs)
	}

	w = get(router, "/api/runs/"+second.ID+"/uploads")
	if w.Code != http.StatusOK {
		t.Fatalf("uploads status = %d, want 200", w.Code)
	}
	var uploads []models.UploadAttempt
	if err := json.Unmarshal(w.Body.Bytes(), &uploads); err != nil {
		t.Fatalf("decode uploads: %v", err)
	}
	if len(uploads) != 1 || uploads[0].ProjectID != "P1" {
		t.Errorf("uploads = %+v", uploads)
	}

	if w := get(router, "/api/runs/unknown/uploads"); w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", w.Code)
	}
	if w := get(router, "/runs/"+second.ID); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "P1") {
		t.Errorf("run page status = %d", w.Code)
	}
	if w := get(router, "/runs/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown run page status = %d, want 404", w.Code)
	}
}

func TestReportsAPI_Empty(t *testing.T) {
	router := testRouter(t, StartOpts{ReportsDir: t.TempDir()})
	w := get(router, "/api/reports")
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestSSE_WithoutHistory(t *testing.T) {
	router := testRouter(t, StartOpts{ReportsDir: t.TempDir()})
	w := get(router, "/api/events")
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q, want connected event", w.Body.String())
	}
}

func TestSSE_RunFinished(t *testing.T) {
	history := testHistory(t)
	router := testRouter(t, StartOpts{History: history, ReportsDir: t.TempDir(), PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(50 * time.Millisecond)
		run, err := history.StartRun("upload", time.Now())
		if err != nil {
			return
		}
		run.Uploaded = 2
		history.FinishRun(run, time.Now())
	}()
	router.ServeHTTP(w, req)

	runs, err := history.RecentRuns(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns = %v, %v", runs, err)
	}
	runID := runs[0].ID
	body := w.Body.String()
	if !strings.Contains(body, "event: run") || !strings.Contains(body, runID) {
		t.Errorf("body = %q, want run event for %s", body, runID)
	}
}

func TestSSE_RunPendingAtConnect(t *testing.T) {
	history := testHistory(t)
	done, err := history.StartRun("upload", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := history.FinishRun(done, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	pending, err := history.StartRun("upload", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	router := testRouter(t, StartOpts{History: history, ReportsDir: t.TempDir(), PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(50 * time.Millisecond)
		pending.Uploaded = 1
		history.FinishRun(pending, time.Now())
	}()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: run") || !strings.Contains(body, pending.ID) {
		t.Errorf("body = %q, want run event for %s", body, pending.ID)
	}
	if strings.Contains(body, done.ID) {
		t.Errorf("body = %q, already finished run %s should not be announced", body, done.ID)
	}
}

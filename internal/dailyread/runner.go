// Package dailyread runs one reporting cycle: fetch project data, detect
// what changed, reconcile against the order portal, render reports and
// optionally publish them.
package dailyread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zulandar/dailyread/internal/datastore"
	"github.com/zulandar/dailyread/internal/db"
	"github.com/zulandar/dailyread/internal/models"
	"github.com/zulandar/dailyread/internal/notify"
	"github.com/zulandar/dailyread/internal/orderportal"
	"github.com/zulandar/dailyread/internal/project"
	"github.com/zulandar/dailyread/internal/report"
	"github.com/zulandar/dailyread/internal/sources"
)

// ErrUploadsFailed is returned by strict runs when any upload was rejected.
var ErrUploadsFailed = errors.New("dailyread: report uploads failed")

// Fetcher pulls project records from the lab sources.
type Fetcher interface {
	Fetch(ctx context.Context, q sources.Query) (map[string]*project.Record, error)
}

// Portal is the part of the order portal a run needs.
type Portal interface {
	ListOrders(ctx context.Context, q orderportal.OrderQuery) ([]orderportal.Order, error)
	UploadReport(ctx context.Context, content string, rec *project.Record, status string) (orderportal.UploadResult, error)
}

// Runner wires the collaborators of a run. History and Notifier are optional.
type Runner struct {
	Store      *datastore.Store
	Sources    Fetcher
	Portal     Portal
	Reconciler *orderportal.Reconciler
	Renderer   report.Renderer
	Priority   *project.Priority
	ReportsDir string
	UserList   []string
	History    *db.History
	Notifier   notify.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Options selects what a run does.
type Options struct {
	Upload    bool   // publish reports and commit uploaded projects
	Orderer   string // restrict to a single orderer
	ProjectID string // fetch a single project
	Strict    bool   // fail the run when any upload was rejected
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Orderers []string
	Reports  []string // written report files
	Bundles  int
	Uploaded int
	Hidden   int
	Failed   int
	Results  []orderportal.UploadResult
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) priority() *project.Priority {
	if r.Priority == nil {
		return project.DefaultPriority()
	}
	return r.Priority
}

// Run executes one cycle. Source, portal listing and data integrity
// failures abort the run; rejected uploads are counted and only fail the run
// in strict mode.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	mode := "generate"
	if opts.Upload {
		mode = "upload"
	}
	log := r.logger().With("mode", mode)
	started := r.now()
	sum := &Summary{}

	var run *models.RunLog
	if r.History != nil {
		var err error
		if run, err = r.History.StartRun(mode, started); err != nil {
			return nil, err
		}
		sum.RunID = run.ID
	}

	err := r.run(ctx, opts, sum, log)
	r.finish(ctx, mode, started, run, sum, err, log)
	if err != nil {
		return sum, err
	}
	if opts.Strict && sum.Failed > 0 {
		return sum, fmt.Errorf("%w: %d of %d", ErrUploadsFailed, sum.Failed, sum.Failed+sum.Uploaded+sum.Hidden)
	}
	return sum, nil
}

func (r *Runner) run(ctx context.Context, opts Options, sum *Summary, log *slog.Logger) error {
	if err := r.Store.LogPending(); err != nil {
		return err
	}

	fetched, err := r.Sources.Fetch(ctx, sources.Query{ProjectID: opts.ProjectID})
	if err != nil {
		return err
	}
	if err := r.Store.PersistAll(fetched); err != nil {
		return err
	}

	orderers, err := r.Store.FindChangedOrderers(r.UserList)
	if err != nil {
		return err
	}
	if opts.Orderer != "" {
		orderers = only(orderers, opts.Orderer)
	}
	sum.Orderers = orderers
	if len(orderers) == 0 {
		log.Info("no changed projects, nothing to do")
		return nil
	}
	log.Info("orderers with changed projects", "count", len(orderers))

	records := r.Store.Records()
	for _, orderer := range orderers {
		if err := ctx.Err(); err != nil {
			return err
		}
		orders, err := r.Portal.ListOrders(ctx, orderportal.OrderQuery{Orderer: orderer, Recent: true})
		if err != nil {
			return err
		}
		bundles, err := r.Reconciler.Reconcile(orders, records)
		if err != nil {
			return err
		}
		for _, key := range sortedKeys(bundles) {
			if err := r.handleBundle(ctx, bundles[key], opts, sum, log); err != nil {
				return err
			}
		}
	}

	if opts.Upload {
		msg := fmt.Sprintf("Reports uploaded for %d project(s)", sum.Uploaded+sum.Hidden)
		if err := r.Store.Commit(msg); err != nil {
			return err
		}
		log.Info("committed staged projects", "message", msg)
	}
	return nil
}

func (r *Runner) handleBundle(ctx context.Context, b *orderportal.Bundle, opts Options, sum *Summary, log *slog.Logger) error {
	sum.Bundles++
	content, err := r.Renderer.Render(b)
	if err != nil {
		return err
	}
	if r.ReportsDir != "" {
		p, err := report.Write(r.ReportsDir, b, content)
		if err != nil {
			return err
		}
		sum.Reports = append(sum.Reports, p)
		log.Info("wrote report", "orderer", b.Orderer, "path", p)
	}
	if !opts.Upload {
		return nil
	}

	prio := r.priority()
	for _, rec := range b.ActiveRecords(prio) {
		if err := r.upload(ctx, content, rec, b.Orderer, orderportal.StatusPublished, sum); err != nil {
			return err
		}
	}
	for _, rec := range b.ClosingRecords(prio) {
		if rec.ReportRef == "" {
			log.Debug("closed order has no report to hide", "project", rec.ProjectID)
			if err := r.Store.Stage(rec); err != nil {
				return err
			}
			continue
		}
		if err := r.upload(ctx, "", rec, b.Orderer, orderportal.StatusReview, sum); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) upload(ctx context.Context, content string, rec *project.Record, orderer, status string, sum *Summary) error {
	res, err := r.Portal.UploadReport(ctx, content, rec, status)
	if err != nil {
		return err
	}
	sum.Results = append(sum.Results, res)
	if r.History != nil && sum.RunID != "" {
		attempt := &models.UploadAttempt{
			RunID:      sum.RunID,
			ProjectID:  rec.ProjectID,
			Orderer:    orderer,
			ReportRef:  rec.ReportRef,
			Status:     status,
			StatusCode: res.StatusCode,
			OK:         res.OK,
			Reason:     res.Reason,
		}
		if err := r.History.RecordUpload(attempt); err != nil {
			r.logger().Warn("could not record upload attempt", "project", rec.ProjectID, "error", err)
		}
	}
	if !res.OK {
		sum.Failed++
		return nil
	}
	if status == orderportal.StatusReview {
		sum.Hidden++
	} else {
		sum.Uploaded++
	}
	return r.Store.Stage(rec)
}

func (r *Runner) finish(ctx context.Context, mode string, started time.Time, run *models.RunLog, sum *Summary, runErr error, log *slog.Logger) {
	if run == nil {
		run = &models.RunLog{Mode: mode, StartedAt: started}
	}
	run.Orderers = len(sum.Orderers)
	run.Bundles = sum.Bundles
	run.Uploaded = sum.Uploaded
	run.Hidden = sum.Hidden
	run.Failed = sum.Failed
	if runErr != nil {
		run.Error = runErr.Error()
	}

	finished := r.now()
	if r.History != nil && run.ID != "" {
		if err := r.History.FinishRun(run, finished); err != nil {
			log.Warn("could not record run", "run", run.ID, "error", err)
		}
	} else {
		run.FinishedAt = &finished
	}

	if runErr != nil {
		log.Error("run failed", "error", runErr)
	} else {
		log.Info("run finished", "orderers", run.Orderers, "reports", run.Bundles, "uploaded", run.Uploaded, "hidden", run.Hidden, "failed", run.Failed)
	}

	if r.Notifier != nil {
		if err := r.Notifier.Notify(ctx, notify.FormatRun(run)); err != nil {
			log.Warn("could not send run notification", "error", err)
		}
	}
}

func only(orderers []string, orderer string) []string {
	for _, o := range orderers {
		if o == orderer {
			return []string{o}
		}
	}
	return nil
}

func sortedKeys(m map[string]*orderportal.Bundle) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

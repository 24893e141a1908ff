package orderportal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/dailyread/internal/project"
)

// Disposition is the reconciler's verdict on one order.
type Disposition int

const (
	// Unmatched orders have no local record and are ignored.
	Unmatched Disposition = iota
	// Active orders are open, or closed on or after the cutoff.
	Active
	// ClosingWindow orders closed within the padding before the cutoff;
	// their report must be hidden.
	ClosingWindow
	// Expired orders closed before the closing window; their report was
	// hidden by an earlier run.
	Expired
)

func (d Disposition) String() string {
	switch d {
	case Unmatched:
		return "unmatched"
	case Active:
		return "active"
	case ClosingWindow:
		return "closing-window"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// ReconcilerOptions configures NewReconciler.
type ReconcilerOptions struct {
	ClosedBeforeInDays *int // nil means 30
	PaddingDays        *int // nil means 5
	Priority           *project.Priority
	Now                func() time.Time
	Logger             *slog.Logger
}

// Reconciler decides, per order, whether its project is reported, hidden
// or left alone. It holds no state between calls.
type Reconciler struct {
	closedBefore int
	padding      int
	prio         *project.Priority
	now          func() time.Time
	logger       *slog.Logger
}

// NewReconciler returns a reconciler with defaults filled in.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	closedBefore, padding := 30, 5
	if opts.ClosedBeforeInDays != nil {
		closedBefore = max(*opts.ClosedBeforeInDays, 0)
	}
	if opts.PaddingDays != nil {
		padding = max(*opts.PaddingDays, 0)
	}
	if opts.Priority == nil {
		opts.Priority = project.DefaultPriority()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		closedBefore: closedBefore,
		padding:      padding,
		prio:         opts.Priority,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Classify places a matched order relative to the cutoff. With cutoff =
// today - closedBefore days, an order closed on or after the cutoff is
// active, one closed in [cutoff-padding, cutoff) is in the closing window
// and anything older is expired.
func (r *Reconciler) Classify(o Order) (Disposition, error) {
	if !o.Closed() {
		return Active, nil
	}
	closed, err := o.CloseDate()
	if err != nil {
		return Unmatched, err
	}
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -r.closedBefore)
	switch {
	case !closed.Before(cutoff):
		return Active, nil
	case !closed.Before(cutoff.AddDate(0, 0, -r.padding)):
		return ClosingWindow, nil
	default:
		return Expired, nil
	}
}

// Reconcile builds one bundle per orderer from orders and the local records
// keyed by portal id. The only mutation is setting ReportRef on matched
// records. Any data integrity problem aborts the pass.
func (r *Reconciler) Reconcile(orders []Order, records map[string]*project.Record) (map[string]*Bundle, error) {
	pullDate := r.now().Format("2006-01-02 15:04:05")
	bundles := make(map[string]*Bundle)

	for _, o := range orders {
		rec, ok := records[o.Identifier]
		if !ok {
			r.logger.Debug("order has no local project record", "order", o.Identifier)
			continue
		}
		disp, err := r.Classify(o)
		if err != nil {
			return nil, err
		}
		if disp == Expired {
			r.logger.Debug("order closed before the closing window", "order", o.Identifier)
			continue
		}
		ref, err := o.ProgressReport()
		if err != nil {
			r.logger.Error("multiple reports found in the order portal", "report", ReportName, "order", o.Identifier)
			return nil, err
		}
		rec.ReportRef = ref

		orderer := o.Owner.Email
		if orderer == "" {
			orderer = rec.Orderer
		}
		b, ok := bundles[orderer]
		if !ok {
			b = newBundle(orderer, pullDate)
			bundles[orderer] = b
		}
		if disp == ClosingWindow {
			b.addClosing(rec)
		} else {
			b.addActive(rec, r.prio)
		}
	}
	return bundles, nil
}

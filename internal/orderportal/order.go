// Package orderportal talks to the NGI order portal and reconciles its
// orders against local project records.
package orderportal

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dailyread/internal/project"
)

// ReportName is the name of the progress report attached to each order.
const ReportName = "Project Progress"

// Report statuses accepted by UploadReport.
const (
	StatusPublished = "published"
	StatusReview    = "review"
)

const dateLayout = "2006-01-02"

// Order is one order as returned by api/v1/orders.
type Order struct {
	Identifier string             `json:"identifier"`
	IUID       string             `json:"iuid,omitempty"`
	Title      string             `json:"title,omitempty"`
	Status     string             `json:"status"`
	Owner      Owner              `json:"owner"`
	Reports    []Report           `json:"reports"`
	History    map[string]*string `json:"history"`
	Fields     map[string]any     `json:"fields,omitempty"`
}

// Owner is the account that placed an order.
type Owner struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Report is a report reference attached to an order.
type Report struct {
	IUID   string `json:"iuid"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// terminal lists order statuses after which no progress is reported. Each
// is dated by the history entry of the same name.
var terminal = map[string]bool{"closed": true, "aborted": true, "rejected": true}

// Closed reports whether the order reached a terminal status.
func (o Order) Closed() bool {
	return terminal[strings.ToLower(o.Status)]
}

// CloseDate returns the date the order reached its terminal status. It
// fails for open orders and for terminal orders without a history date.
func (o Order) CloseDate() (time.Time, error) {
	status := strings.ToLower(o.Status)
	if !terminal[status] {
		return time.Time{}, fmt.Errorf("orderportal: order %s is not closed", o.Identifier)
	}
	v := o.History[status]
	if v == nil || *v == "" {
		return time.Time{}, fmt.Errorf("orderportal: order %s is %s without a %s date: %w", o.Identifier, o.Status, status, project.ErrDataIntegrity)
	}
	s := *v
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("orderportal: order %s %s date %q: %w", o.Identifier, status, *v, project.ErrDataIntegrity)
	}
	return t, nil
}

// ProgressReport returns the iuid of the order's Project Progress report,
// or "" if it has none. More than one is a data integrity error.
func (o Order) ProgressReport() (string, error) {
	var found []string
	for _, r := range o.Reports {
		if r.Name == ReportName {
			found = append(found, r.IUID)
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("orderportal: multiple reports for %s for order %s: %w", ReportName, o.Identifier, project.ErrDataIntegrity)
	}
}

// Package report renders an orderer's bundle to HTML and writes it to the
// reports location.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/dailyread/internal/orderportal"
	"github.com/zulandar/dailyread/internal/project"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer turns a bundle into report content.
type Renderer interface {
	Render(b *orderportal.Bundle) (string, error)
}

// HTMLRenderer renders the embedded daily report template.
type HTMLRenderer struct {
	tmpl *template.Template
	prio *project.Priority
}

// NewHTMLRenderer parses the embedded template.
func NewHTMLRenderer(prio *project.Priority) (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/daily_report.html")
	if err != nil {
		return nil, fmt.Errorf("report: parse template: %w", err)
	}
	if prio == nil {
		prio = project.DefaultPriority()
	}
	return &HTMLRenderer{tmpl: tmpl, prio: prio}, nil
}

type projectRow struct {
	PortalID   string
	Name       string
	InternalID string
	Latest     string
}

type group struct {
	Status   string
	Projects []projectRow
}

type view struct {
	Orderer        string
	PullDate       string
	ActiveProjects int
	Recents        []project.Event
	Groups         []group
}

// Render fills the template with the bundle's active projects grouped by
// status, highest rank first.
func (r *HTMLRenderer) Render(b *orderportal.Bundle) (string, error) {
	v := view{
		Orderer:        b.Orderer,
		PullDate:       PullDay(b.PullDate),
		ActiveProjects: b.ActiveProjects,
		Recents:        b.Recents,
	}
	for _, status := range b.Statuses(r.prio) {
		g := group{Status: status}
		for _, rec := range b.Projects[status] {
			row := projectRow{PortalID: rec.ProjectID, Name: rec.DisplayName(), InternalID: rec.InternalID}
			if ev := rec.Events(); len(ev) > 0 {
				row.Latest = ev[0].Date
			}
			g.Projects = append(g.Projects, row)
		}
		v.Groups = append(v.Groups, g)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("report: render for %s: %w", b.Orderer, err)
	}
	return buf.String(), nil
}

// PullDay returns the date part of a bundle pull date.
func PullDay(pullDate string) string {
	day, _, _ := strings.Cut(pullDate, " ")
	return day
}

// FileName is "<local part of email>_<pull day>.html".
func FileName(orderer, pullDate string) string {
	user, _, _ := strings.Cut(orderer, "@")
	return fmt.Sprintf("%s_%s.html", user, PullDay(pullDate))
}

// Write stores content for the bundle under dir and returns the file path.
func Write(dir string, b *orderportal.Bundle, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", dir, err)
	}
	p := filepath.Join(dir, FileName(b.Orderer, b.PullDate))
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", p, err)
	}
	return p, nil
}

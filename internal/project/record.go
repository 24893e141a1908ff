// Package project holds the canonical per-project record, its status
// resolution and the on-disk file format.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Event is one (date, status) pair of a project's history.
type Event struct {
	Date        string `json:"date"`
	Status      string `json:"status"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// Record is the canonical state of one order portal project.
//
// Status and events are derived from ProjectDates when the record is built
// and cannot be set independently. ReportRef is only assigned during order
// reconciliation and is never persisted.
type Record struct {
	ProjectID    string
	Node         string
	Year         string
	Orderer      string
	ProjectDates map[string][]string
	InternalID   string
	InternalName string
	ReportRef    string

	status string
	events []Event
}

// NewRecord builds a record from a relative path such as
// "NGIS/2023/NGI0002313.json". A missing orderer is a data integrity error.
func NewRecord(relativePath, orderer string, dates map[string][]string, internalID, internalName string, prio *Priority) (*Record, error) {
	rel := filepath.ToSlash(relativePath)
	dir, file := path.Split(rel)
	node, year := path.Split(strings.TrimSuffix(dir, "/"))
	node = strings.TrimSuffix(node, "/")
	id := strings.TrimSuffix(file, path.Ext(file))
	if id == "" || node == "" || year == "" {
		return nil, fmt.Errorf("project: path %q is not <node>/<year>/<project_id>.json: %w", relativePath, ErrConfig)
	}
	if orderer == "" {
		return nil, fmt.Errorf("project: orderer missing for %s: %w", id, ErrDataIntegrity)
	}
	if dates == nil {
		dates = map[string][]string{}
	}

	r := &Record{
		ProjectID:    id,
		Node:         node,
		Year:         year,
		Orderer:      orderer,
		ProjectDates: dates,
		InternalID:   internalID,
		InternalName: internalName,
	}
	r.status, r.events = prio.Resolve(id, r.DisplayName(), dates)
	return r, nil
}

// Status is the highest ranked status on the latest date that has any, or
// "" if the project has no statuses.
func (r *Record) Status() string { return r.status }

// StatusKey is Status, with StatusNone standing in for an undefined status.
func (r *Record) StatusKey() string {
	if r.status == "" {
		return StatusNone
	}
	return r.status
}

// Events returns a copy of the project's events, newest first.
func (r *Record) Events() []Event {
	return append([]Event(nil), r.events...)
}

// RelativeDir is "<node>/<year>".
func (r *Record) RelativeDir() string { return r.Node + "/" + r.Year }

// RelativePath is "<node>/<year>/<project_id>.json".
func (r *Record) RelativePath() string { return r.RelativeDir() + "/" + r.ProjectID + ".json" }

// DisplayID returns the internal id if set, otherwise the portal id.
func (r *Record) DisplayID() string {
	if r.InternalID != "" {
		return r.InternalID
	}
	return r.ProjectID
}

// DisplayName returns the internal name if set, otherwise the portal id.
func (r *Record) DisplayName() string {
	if r.InternalName != "" {
		return r.InternalName
	}
	return r.ProjectID
}

// MarshalJSON renders the record as seen in bundles and API responses.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProjectID    string `json:"project_id"`
		Node         string `json:"node"`
		Year         string `json:"year"`
		Orderer      string `json:"orderer"`
		Status       string `json:"status"`
		InternalID   string `json:"internal_id,omitempty"`
		InternalName string `json:"internal_name,omitempty"`
		ReportRef    string `json:"report_ref,omitempty"`
	}{r.ProjectID, r.Node, r.Year, r.Orderer, r.StatusKey(), r.InternalID, r.InternalName, r.ReportRef})
}

// fileData is the persisted form, one JSON file per project.
type fileData struct {
	Orderer      *string             `json:"orderer"`
	ProjectDates map[string][]string `json:"project_dates"`
	InternalID   *string             `json:"internal_id"`
	InternalName *string             `json:"internal_name"`
}

// Encode returns the canonical file content of r. Map keys are sorted, so
// identical records always encode to identical bytes.
func (r *Record) Encode() ([]byte, error) {
	fd := fileData{
		Orderer:      &r.Orderer,
		ProjectDates: r.ProjectDates,
		InternalID:   optional(r.InternalID),
		InternalName: optional(r.InternalName),
	}
	data, err := json.Marshal(fd)
	if err != nil {
		return nil, fmt.Errorf("project: encode %s: %w", r.ProjectID, err)
	}
	return data, nil
}

// Decode rebuilds a record from file content stored at relativePath.
func Decode(relativePath string, data []byte, prio *Priority) (*Record, error) {
	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("project: decode %s: %w", relativePath, err)
	}
	orderer := ""
	if fd.Orderer != nil {
		orderer = *fd.Orderer
	}
	return NewRecord(relativePath, orderer, fd.ProjectDates, deref(fd.InternalID), deref(fd.InternalName), prio)
}

// ReadFile loads the record stored at root/relativePath.
func ReadFile(root, relativePath string, prio *Priority) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relativePath)))
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", relativePath, err)
	}
	return Decode(relativePath, data, prio)
}

// IDFromPath returns the portal id of a project file path, i.e. the file name
// without extension.
func IDFromPath(p string) string {
	file := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(file, path.Ext(file))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

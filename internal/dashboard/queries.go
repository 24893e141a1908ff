package dashboard

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ReportRow describes one generated report file.
type ReportRow struct {
	Name     string    `json:"name"`
	Orderer  string    `json:"orderer"`
	PullDay  string    `json:"pull_day"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListReports returns the .html reports in dir, newest pull day first. A
// missing directory yields no reports.
func ListReports(dir string) ([]ReportRow, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []ReportRow
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".html")
		row := ReportRow{Name: e.Name(), Orderer: base, Size: info.Size(), Modified: info.ModTime()}
		if i := strings.LastIndex(base, "_"); i > 0 {
			row.Orderer, row.PullDay = base[:i], base[i+1:]
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PullDay != rows[j].PullDay {
			return rows[i].PullDay > rows[j].PullDay
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// reportPath resolves name inside dir, refusing anything that is not a plain
// .html file name.
func reportPath(dir, name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".html" {
		return "", false
	}
	return filepath.Join(dir, name), true
}

package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dailyread/internal/db"
)

// runEvent is sent when a run finishes.
type runEvent struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	Uploaded int    `json:"uploaded"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// handleSSE streams a "run" event whenever a new run finishes.
func handleSSE(history *db.History, interval time.Duration) gin.HandlerFunc {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if history == nil {
			return
		}

		lastSeen := latestFinished(history)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				runs, err := history.RecentRuns(1)
				if err != nil || len(runs) == 0 {
					continue
				}
				r := runs[0]
				if r.FinishedAt == nil || r.ID == lastSeen {
					continue
				}
				lastSeen = r.ID
				writeSSE(c.Writer, "run", runEvent{ID: r.ID, Mode: r.Mode, Uploaded: r.Uploaded, Failed: r.Failed, Error: r.Error})
				c.Writer.Flush()
			}
		}
	}
}

// latestFinished returns the id of the newest finished run. Runs still in
// progress are passed over so their completion is reported later.
func latestFinished(history *db.History) string {
	runs, err := history.RecentRuns(20)
	if err != nil {
		return ""
	}
	for _, r := range runs {
		if r.FinishedAt != nil {
			return r.ID
		}
	}
	return ""
}

// writeSSE writes a single SSE frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

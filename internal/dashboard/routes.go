package dashboard

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dailyread/internal/db"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	// Pages.
	router.GET("/", handleIndex(opts.History, opts.ReportsDir))
	router.GET("/runs/:id", handleRunDetail(opts.History))
	router.GET("/reports/:name", handleReport(opts.ReportsDir))

	// API.
	router.GET("/api/runs", handleRunsAPI(opts.History))
	router.GET("/api/runs/:id/uploads", handleUploadsAPI(opts.History))
	router.GET("/api/reports", handleReportsAPI(opts.ReportsDir))
	router.GET("/api/events", handleSSE(opts.History, opts.PollInterval))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func handleIndex(history *db.History, dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := ListReports(dir)
		if err != nil {
			c.String(http.StatusInternalServerError, "list reports: %v", err)
			return
		}
		data := gin.H{"page": "index", "reports": reports}
		if history != nil {
			runs, err := history.RecentRuns(20)
			if err != nil {
				c.String(http.StatusInternalServerError, "list runs: %v", err)
				return
			}
			data["runs"] = runs
		}
		c.HTML(http.StatusOK, "layout.html", data)
	}
}

func handleRunDetail(history *db.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		if history == nil {
			c.String(http.StatusNotFound, "no run history")
			return
		}
		run, err := history.Run(c.Param("id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusNotFound, "run %s not found", c.Param("id"))
			return
		}
		if err != nil {
			c.String(http.StatusInternalServerError, "%v", err)
			return
		}
		uploads, err := history.Uploads(run.ID)
		if err != nil {
			c.String(http.StatusInternalServerError, "%v", err)
			return
		}
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page":    "run",
			"run":     run,
			"uploads": uploads,
		})
	}
}

func handleReport(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := reportPath(dir, c.Param("name"))
		if !ok {
			c.String(http.StatusBadRequest, "invalid report name")
			return
		}
		if _, err := os.Stat(p); err != nil {
			c.String(http.StatusNotFound, "report not found")
			return
		}
		c.File(p)
	}
}

func handleRunsAPI(history *db.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		if history == nil {
			c.JSON(http.StatusOK, []any{})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := history.RecentRuns(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

func handleUploadsAPI(history *db.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		if history == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run history"})
			return
		}
		if _, err := history.Run(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		uploads, err := history.Uploads(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, uploads)
	}
}

func handleReportsAPI(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := ListReports(dir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if reports == nil {
			reports = []ReportRow{}
		}
		c.JSON(http.StatusOK, reports)
	}
}

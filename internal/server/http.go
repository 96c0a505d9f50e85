package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/phayes/freeport"
	"golang.org/x/sync/semaphore"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

type httpServer struct {
	engine *driftwatch.Engine

	// Report builds walk the whole lookback horizon, only one runs at a time
	reportSem *semaphore.Weighted
}

func (h *httpServer) Init(port int, engine *driftwatch.Engine) error {
	h.engine = engine
	h.reportSem = semaphore.NewWeighted(1)

	if port == 0 {
		var err error
		port, err = freeport.GetFreePort()
		if err != nil {
			return err
		}
	}

	router := h.routes()
	go router.Run(fmt.Sprintf("localhost:%d", port))
	return nil
}

func (h *httpServer) routes() *gin.Engine {
	router := gin.Default()

	router.GET("/runs", h.getRuns)
	router.POST("/runs", h.postRun)
	router.GET("/report/:runId", h.getReport)

	return router
}

type runSummaryResponse struct {
	RunID     string `json:"runId"`
	Timestamp string `json:"timestamp"`

	FailingTests []string `json:"failingTests"`

	Fingerprint string `json:"fingerprint"`
}

type reportResponse struct {
	RunID    string `json:"runId"`
	Report   string `json:"report"`
	Tests    int    `json:"tests"`
	Windows  int    `json:"windows"`
	ReportID string `json:"reportId"`
}

func (h *httpServer) getRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	records, err := h.engine.Store.ListBefore(time.Now(), limit)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	response := make([]runSummaryResponse, 0, len(records))
	for _, record := range records {
		response = append(response, runSummaryResponse{
			RunID:        record.RunID,
			Timestamp:    record.Timestamp.UTC().Format(time.RFC3339),
			FailingTests: record.FailingTests(),
			Fingerprint:  record.Fingerprint(),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpServer) postRun(c *gin.Context) {
	var record driftwatch.RunRecord
	if err := c.BindJSON(&record); err != nil {
		return
	}
	if record.RunID == "" {
		record.RunID = uniuri.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if err := h.engine.Store.Append(record); err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"runId": record.RunID})
}

func (h *httpServer) getReport(c *gin.Context) {
	runID := c.Param("runId")

	record, found, err := h.findRun(runID)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if !found {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	if err := h.reportSem.Acquire(c.Request.Context(), 1); err != nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer h.reportSem.Release(1)

	report, results := h.engine.Report(c.Request.Context(), record, record.FailingTests())
	windows := 0
	for _, result := range results {
		if !result.NoPriorPass() {
			windows++
		}
	}

	c.JSON(http.StatusOK, reportResponse{
		RunID:    record.RunID,
		Report:   report,
		Tests:    len(results),
		Windows:  windows,
		ReportID: uniuri.New(),
	})
}

// findRun scans the store for the record with the passed run id.
func (h *httpServer) findRun(runID string) (driftwatch.RunRecord, bool, error) {
	records, err := h.engine.Store.ListBefore(time.Now(), 0)
	if err != nil {
		return driftwatch.RunRecord{}, false, err
	}
	for _, record := range records {
		if record.RunID == runID {
			return record, true, nil
		}
	}
	return driftwatch.RunRecord{}, false, nil
}

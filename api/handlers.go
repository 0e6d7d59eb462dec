package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/martinscooper/lighteval/internal/store"
)

type runSummary struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	Partial   bool      `json:"partial"`
	Topology  string    `json:"topology"`
	Tasks     []string  `json:"tasks"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := queryInt(c, "limit", 0)

	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, summarize(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summarize(run))
}

func (s *Server) handleGetRunReport(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run.Report)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	metric := strings.TrimSpace(c.Query("metric"))
	limit := queryInt(c, "limit", 0)

	entries, err := s.store.Leaderboard(c.Request.Context(), metric, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) lookupRun(c *gin.Context) (*store.Run, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondErrorMsg(c, http.StatusBadRequest, "missing run id")
		return nil, false
	}
	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return nil, false
	}
	return run, true
}

func summarize(r *store.Run) runSummary {
	topo := ""
	if r.WorldSize > 0 {
		topo = "dp=" + strconv.Itoa(r.DataParallel) +
			" tp=" + strconv.Itoa(r.TensorParallel) +
			" pp=" + strconv.Itoa(r.PipelineParallel) +
			" world=" + strconv.Itoa(r.WorldSize)
	}
	return runSummary{
		ID:        r.ID,
		Model:     r.Model,
		Provider:  r.Provider,
		CreatedAt: r.CreatedAt,
		Partial:   r.Partial,
		Topology:  topo,
		Tasks:     r.Tasks,
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func respondError(c *gin.Context, status int, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	respondErrorMsg(c, status, msg)
}

func respondErrorMsg(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nshruti113/ddos-defense-dashboard/internal/backend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/storage"
	"github.com/nshruti113/ddos-defense-dashboard/internal/training"
	"github.com/nshruti113/ddos-defense-dashboard/internal/upload"
)

const (
	defaultHistoryLimit = 50
	defaultRunsLimit    = 20
	maxListLimit        = 500
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"attack_mode": s.Controller.Active(),
		"feed_open":   s.Session.FeedOpen(),
		"ws_clients":  s.Hub.Clients(),
	})
}

func (s *Server) getAttackMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": s.Controller.Active()})
}

type attackModeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) setAttackMode(c *gin.Context) {
	var req attackModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"active\": true|false}"})
		return
	}

	changed := s.Controller.SetActive(c.Request.Context(), *req.Active)
	c.JSON(http.StatusOK, gin.H{
		"active":  s.Controller.Active(),
		"changed": changed,
	})
}

func (s *Server) getTraffic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"samples": s.Session.Traffic()})
}

func (s *Server) getLiveAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.Session.LiveAlerts()})
}

func (s *Server) getAlertHistory(c *gin.Context) {
	if s.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert history is disabled"})
		return
	}

	limit := queryLimit(c, defaultHistoryLimit)
	ctx := c.Request.Context()

	events, err := s.History.RecentAlerts(ctx, limit)
	if err != nil {
		s.Logger.Warnf("Failed to read alert history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alert history"})
		return
	}
	counts, err := s.History.LabelCounts(ctx)
	if err != nil {
		s.Logger.Warnf("Failed to read alert counts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alert counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": events,
		"counts": counts,
	})
}

// streamAlerts relays every alert published to the history store, from this
// instance or any other sharing the same Redis
func (s *Server) streamAlerts(c *gin.Context) {
	if s.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert history is disabled"})
		return
	}

	ctx := c.Request.Context()
	events, err := s.History.Subscribe(ctx)
	if err != nil {
		s.Logger.Warnf("Failed to subscribe to alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe to alerts"})
		return
	}

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("alert", event)
		return true
	})
}

func (s *Server) getPanel(c *gin.Context) {
	panel, ok := s.Panels.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  fmt.Sprintf("unknown panel %q", c.Param("name")),
			"panels": s.Panels.Names(),
		})
		return
	}
	c.JSON(http.StatusOK, panel.Snapshot())
}

func (s *Server) getModelInfo(c *gin.Context) {
	info, err := s.Backend.ModelInfo(c.Request.Context())
	if err != nil {
		s.backendError(c, "model info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) downloadModel(c *gin.Context) {
	file, err := s.Backend.DownloadModel(c.Request.Context())
	if err != nil {
		s.backendError(c, "model download", err)
		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, contentType, file.Data)
}

// startTraining validates the upload locally before anything reaches the
// backend, then hands the job to the tracker
func (s *Server) startTraining(c *gin.Context) {
	fh, err := c.FormFile("data_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data_file is required"})
		return
	}

	limit := limitBytes(s.Config.Upload.RetrainMaxMB, upload.RetrainLimit)
	data, err := readUpload(fh, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if upload.IsValidationError(err) {
			status = http.StatusBadRequest
		} else {
			s.Logger.Warnf("Failed to read upload %s: %v", fh.Filename, err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	params := models.DefaultTrainParams()
	if err := c.ShouldBind(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hyperparameters: " + err.Error()})
		return
	}
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	progress := s.Tracker.Start(training.Upload{
		FileName: fh.Filename,
		Data:     data,
		Params:   params,
	})
	c.JSON(http.StatusAccepted, progress)
}

// getTrainingJob answers from the tracker while the job is held in memory,
// then from the run store
func (s *Server) getTrainingJob(c *gin.Context) {
	id := c.Param("id")
	progress, err := s.Tracker.Get(id)
	if err == nil {
		c.JSON(http.StatusOK, progress)
		return
	}

	if s.Runs != nil {
		if run, rerr := s.Runs.Get(id); rerr == nil {
			c.JSON(http.StatusOK, progressFromRun(run))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
}

func progressFromRun(run *models.TrainingRun) training.Progress {
	p := training.Progress{
		JobID:    run.ID,
		FileName: run.FileName,
		Stage:    training.Stage(run.Status),
		Error:    run.Error,
		At:       run.StartedAt,
	}
	if p.Stage.Final() {
		p.Percent = 100
	}
	if run.FinishedAt != nil {
		p.At = *run.FinishedAt
	}
	return p
}

// streamTrainingJob pushes progress as server-sent events until the job ends
func (s *Server) streamTrainingJob(c *gin.Context) {
	updates, unsubscribe, err := s.Tracker.Subscribe(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("progress", p)
			return !p.Stage.Final()
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.Runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []models.TrainingRun{}})
		return
	}

	if id := c.Query("id"); id != "" {
		run, err := s.Runs.Get(id)
		if errors.Is(err, storage.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read training run"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": []models.TrainingRun{*run}})
		return
	}

	runs, err := s.Runs.List(queryLimit(c, defaultRunsLimit))
	if err != nil {
		s.Logger.Warnf("Failed to list training runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list training runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) validateDataset(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "file is required"})
		return
	}

	limit := limitBytes(s.Config.Upload.DatasetMaxMB, upload.DatasetLimit)
	if err := upload.Validate(fh.Filename, fh.Size, limit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"file_name": fh.Filename,
		"size":      fh.Size,
	})
}

// backendError maps a failed backend call to a response. Backend 404s pass
// through, everything else is a bad gateway.
func (s *Server) backendError(c *gin.Context, what string, err error) {
	s.Logger.Warnf("Backend %s failed: %v", what, err)

	var se *backend.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": se.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// readUpload validates the declared size, then reads at most limit+1 bytes
// and validates what actually arrived
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if err := upload.Validate(fh.Filename, fh.Size, limit); err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := upload.Validate(fh.Filename, int64(len(data)), limit); err != nil {
		return nil, err
	}
	return data, nil
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func limitBytes(mb int, fallback int64) int64 {
	if mb <= 0 {
		return fallback
	}
	return int64(mb) * upload.MB
}

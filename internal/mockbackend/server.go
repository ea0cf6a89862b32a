// Package mockbackend is a stand-in for the external detection backend. It
// serves the same HTTP and websocket surface with synthetic data so the
// dashboard can be run and tested without the real service.
package mockbackend

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/upload"
)

const alertLogSize = 200

type Server struct {
	router   *mux.Router
	feed     *AttackFeed
	interval time.Duration
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	rng       *rand.Rand
	attacking bool
	model     *models.ModelInfo
	trainedAt time.Time
	alertLog  []models.LoggedAlert
}

// NewServer builds the mock backend. interval paces the attack feed.
func NewServer(interval time.Duration, seed int64, logger *logrus.Logger) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Server{
		router:   mux.NewRouter(),
		feed:     NewAttackFeed(seed),
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rng: rand.New(rand.NewSource(seed)),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/metrics", s.getMetrics).Methods("GET")
	api.HandleFunc("/pipeline", s.getPipeline).Methods("GET")
	api.HandleFunc("/services", s.getServices).Methods("GET")
	api.HandleFunc("/logs", s.getLogs).Methods("GET")
	api.HandleFunc("/alerts", s.getAlerts).Methods("GET")

	model := s.router.PathPrefix("/api/model").Subrouter()
	model.HandleFunc("/info", s.getModelInfo).Methods("GET")
	model.HandleFunc("/train", s.trainModel).Methods("POST")
	model.HandleFunc("/download-model", s.downloadModel).Methods("GET")

	s.router.HandleFunc("/simulate_attack", s.simulateAttack).Methods("GET")
	s.router.HandleFunc("/get-alerts-log", s.getAlertsLog).Methods("GET")
	s.router.HandleFunc("/ws/simulate_attack", s.streamAttacks)

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Attacking reports whether a simulation was started and not stopped
func (s *Server) Attacking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attacking
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	underAttack := s.attacking
	if v := r.URL.Query().Get("is_attack"); v != "" {
		underAttack, _ = strconv.ParseBool(v)
	}
	metrics := systemMetrics(s.rng, underAttack)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) getPipeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pipeline)
}

func (s *Server) getServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, systemAlerts)
}

func (s *Server) simulateAttack(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	s.mu.Lock()
	switch status {
	case "start":
		s.attacking = true
	case "stop":
		s.attacking = false
	default:
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	s.mu.Unlock()

	s.logger.Infof("Attack simulation %s", status)
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) getAlertsLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.LoggedAlert, len(s.alertLog))
	for i, a := range s.alertLog {
		out[len(out)-1-i] = a
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logAlert(msg models.FeedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alertLog = append(s.alertLog, models.LoggedAlert{
		Label:     msg.Label,
		Src:       msg.Src,
		Dst:       msg.Dst,
		Sample:    msg.Sample,
		Severity:  msg.Severity,
		Timestamp: time.Now(),
	})
	if len(s.alertLog) > alertLogSize {
		s.alertLog = s.alertLog[len(s.alertLog)-alertLogSize:]
	}
}

// streamAttacks pushes classified attack messages until the client leaves
func (s *Server) streamAttacks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s.logger.Info("Attack feed client connected")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			s.logger.Info("Attack feed client disconnected")
			return
		case <-ticker.C:
			for _, msg := range s.feed.Next() {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debugf("Attack feed write error: %v", err)
					return
				}
				s.logAlert(msg)
			}
		}
	}
}

func (s *Server) getModelInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var data interface{} = map[string]interface{}{}
	if s.model != nil {
		data = s.model
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": data})
}

func (s *Server) trainModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.DatasetLimit+upload.MB)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	}

	file, header, err := r.FormFile("data_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	if err := upload.Validate(header.Filename, header.Size, upload.DatasetLimit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := models.TrainParams{}
	fields := map[string]*int{
		"n_trees":           &params.NTrees,
		"max_depth":         &params.MaxDepth,
		"min_samples_split": &params.MinSamplesSplit,
		"min_samples_leaf":  &params.MinSamplesLeaf,
		"max_features":      &params.MaxFeatures,
	}
	for name, dst := range fields {
		v, err := strconv.Atoi(r.FormValue(name))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be an integer", name))
			return
		}
		*dst = v
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	start := time.Now()
	rows, err := countRows(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info := s.fitModel(params, rows, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": info})
}

// countRows counts data rows of a CSV with a header line
func countRows(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.New("CSV file has no header")
		}
		return 0, fmt.Errorf("invalid CSV: %w", err)
	}

	rows := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("invalid CSV at row %d: %w", rows+2, err)
		}
		rows++
	}
	if rows == 0 {
		return 0, errors.New("CSV file has no data rows")
	}
	return rows, nil
}

func (s *Server) fitModel(params models.TrainParams, rows int, elapsed time.Duration) *models.ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	testSize := rows / 4
	jitter := func(base, spread float64) float64 { return base + s.rng.Float64()*spread }

	weights := make([]float64, len(featureColumns))
	total := 0.0
	for i := range weights {
		weights[i] = s.rng.Float64()
		total += weights[i]
	}
	importances := make([]models.FeatureImportance, len(featureColumns))
	for i, name := range featureColumns {
		importances[i] = models.FeatureImportance{Feature: name, Importance: weights[i] / total}
	}

	info := &models.ModelInfo{
		NTrees:              params.NTrees,
		MaxDepth:            params.MaxDepth,
		NSamples:            rows,
		MinSamplesSplit:     params.MinSamplesSplit,
		MinSamplesLeaf:      params.MinSamplesLeaf,
		MaxFeatures:         params.MaxFeatures,
		TrainSize:           rows - testSize,
		TestSize:            testSize,
		TrainAccuracy:       jitter(0.985, 0.015),
		TestAccuracy:        jitter(0.95, 0.04),
		F1Score:             jitter(0.93, 0.05),
		Precision:           jitter(0.93, 0.05),
		Recall:              jitter(0.92, 0.05),
		FeatureImportances:  importances,
		TrainingTimeSeconds: elapsed.Seconds(),
		OOBScore:            jitter(0.94, 0.04),
	}

	s.model = info
	s.trainedAt = time.Now()
	return info
}

func (s *Server) downloadModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	model, trainedAt := s.model, s.trainedAt
	s.mu.Unlock()

	if model == nil {
		writeError(w, http.StatusNotFound, "No trained model available.")
		return
	}

	data, err := json.Marshal(model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rf_model_%d.pkl"`, trainedAt.Unix()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errors carry the backend's "detail" key
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"detail": message,
	})
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/attackmode"
	"github.com/nshruti113/ddos-defense-dashboard/internal/backend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/config"
	"github.com/nshruti113/ddos-defense-dashboard/internal/hub"
	"github.com/nshruti113/ddos-defense-dashboard/internal/logging"
	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/mockbackend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/poller"
	"github.com/nshruti113/ddos-defense-dashboard/internal/simulation"
	"github.com/nshruti113/ddos-defense-dashboard/internal/storage"
	"github.com/nshruti113/ddos-defense-dashboard/internal/training"
	"github.com/nshruti113/ddos-defense-dashboard/internal/upload"
)

type testEnv struct {
	api          *httptest.Server
	runs         *storage.RunStore
	services     *poller.Poller[[]models.ServiceStatus]
	trainCalls   int32
	backendCalls int32
}

type envOption func(*Deps)

func withHistory(h AlertHistory) envOption {
	return func(d *Deps) { d.History = h }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{}
	mock := mockbackend.NewServer(time.Hour, 3, logging.Discard())
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.backendCalls, 1)
		if r.URL.Path == "/api/model/train" {
			atomic.AddInt32(&env.trainCalls, 1)
		}
		mock.ServeHTTP(w, r)
	}))
	t.Cleanup(backendSrv.Close)

	cfg := config.DefaultConfig()
	cfg.Server.Mode = gin.TestMode
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	client := backend.NewClient(backendSrv.URL, 5*time.Second, logger)
	controller := attackmode.NewController(logger)
	h := hub.New(logger, m, nil)
	session := simulation.NewSession(controller, client, nil, h, simulation.Options{
		FeedURL:      "ws://127.0.0.1:1/ws/simulate_attack",
		DialTimeout:  200 * time.Millisecond,
		TickInterval: time.Hour,
		Seed:         1,
	}, logger, m)

	runs, err := storage.OpenRunStore(":memory:")
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	tracker := training.NewTracker(client, runs, 5*time.Second, logger, m)

	env.runs = runs
	env.services = poller.New[[]models.ServiceStatus]("services", time.Hour, client.Services, logger, m)
	panels := poller.NewGroup(env.services)

	deps := Deps{
		Config:     cfg,
		Controller: controller,
		Session:    session,
		Backend:    client,
		Tracker:    tracker,
		Panels:     panels,
		Hub:        h,
		Runs:       runs,
		Gatherer:   reg,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.api = httptest.NewServer(New(deps).Handler())
	t.Cleanup(func() {
		env.api.Close()
		tracker.Close()
		session.Close()
		h.Close()
		runs.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.api.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func multipartBody(t *testing.T, field, fileName, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte(content))
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

const sampleCSV = "flow_duration,fwd_packets,label\n10,3,BENIGN\n12,900,DDoS\n"

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "healthy" || out["attack_mode"] != false {
		t.Errorf("health = %v", out)
	}
}

func TestAttackModeToggle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/attack", strings.NewReader(`{"active": true}`), "application/json")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"changed":true`) {
		t.Fatalf("activate: %d %s", resp.StatusCode, body)
	}

	_, body = env.do(t, http.MethodPost, "/api/attack", strings.NewReader(`{"active": true}`), "application/json")
	if !strings.Contains(string(body), `"changed":false`) {
		t.Errorf("repeated activate should not change state: %s", body)
	}

	_, body = env.do(t, http.MethodGet, "/api/attack", nil, "")
	if !strings.Contains(string(body), `"active":true`) {
		t.Errorf("GET /api/attack = %s", body)
	}

	_, body = env.do(t, http.MethodPost, "/api/attack", strings.NewReader(`{"active": false}`), "application/json")
	if !strings.Contains(string(body), `"active":false`) {
		t.Errorf("deactivate = %s", body)
	}

	_, body = env.do(t, http.MethodGet, "/api/traffic", nil, "")
	var traffic struct {
		Samples []models.TrafficSample `json:"samples"`
	}
	if err := json.Unmarshal(body, &traffic); err != nil {
		t.Fatalf("decode traffic: %v", err)
	}
	if len(traffic.Samples) != 7 || traffic.Samples[0].TimeLabel != "10:00" {
		t.Errorf("traffic after deactivate = %+v", traffic.Samples)
	}
}

func TestAttackModeRejectsBadBody(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/attack", strings.NewReader(`{}`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLiveAlertsStartEmpty(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/alerts/live", nil, "")
	if string(body) != `{"alerts":[]}` {
		t.Errorf("live alerts = %s", body)
	}
}

func TestTrainingRejectsNonCSVWithoutCallingBackend(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "data_file", "traffic.txt", sampleCSV, nil)
	resp, out := env.do(t, http.MethodPost, "/api/model/train", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", resp.StatusCode, out)
	}
	if !strings.Contains(string(out), ".csv") {
		t.Errorf("error should mention csv: %s", out)
	}
	if got := atomic.LoadInt32(&env.backendCalls); got != 0 {
		t.Errorf("backend received %d requests", got)
	}
}

func TestTrainingRejectsBadParams(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "data_file", "traffic.csv", sampleCSV, map[string]string{"n_trees": "0"})
	resp, _ := env.do(t, http.MethodPost, "/api/model/train", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&env.trainCalls) != 0 {
		t.Error("backend train endpoint was called")
	}
}

func TestTrainingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/model/download", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("download before training: status %d", resp.StatusCode)
	}

	body, ct := multipartBody(t, "data_file", "traffic.csv", sampleCSV, map[string]string{"n_trees": "50"})
	resp, out := env.do(t, http.MethodPost, "/api/model/train", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start: %d %s", resp.StatusCode, out)
	}
	var started training.Progress
	if err := json.Unmarshal(out, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Stage != training.StageQueued || started.JobID == "" {
		t.Fatalf("initial progress = %+v", started)
	}

	deadline := time.Now().Add(5 * time.Second)
	var progress training.Progress
	for {
		_, out = env.do(t, http.MethodGet, "/api/model/train/"+started.JobID, nil, "")
		if err := json.Unmarshal(out, &progress); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if progress.Stage.Final() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, last progress %+v", progress)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if progress.Stage != training.StageCompleted || progress.Info == nil || progress.Info.NTrees != 50 {
		t.Fatalf("final progress = %+v", progress)
	}

	// a finished job replays its final stage as one event
	_, out = env.do(t, http.MethodGet, "/api/model/train/"+started.JobID+"/events", nil, "")
	if !strings.Contains(string(out), "event:progress") || !strings.Contains(string(out), `"stage":"completed"`) {
		t.Errorf("event stream = %s", out)
	}

	resp, out = env.do(t, http.MethodGet, "/api/model/download", nil, "")
	if resp.StatusCode != http.StatusOK || len(out) == 0 {
		t.Fatalf("download: %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "rf_model_") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// the run record is finished just after the final stage is published
	var runs struct {
		Runs []models.TrainingRun `json:"runs"`
	}
	for {
		_, out = env.do(t, http.MethodGet, "/api/model/runs", nil, "")
		if err := json.Unmarshal(out, &runs); err != nil {
			t.Fatalf("decode runs: %v", err)
		}
		if len(runs.Runs) == 1 && runs.Runs[0].Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("runs = %+v", runs.Runs)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Runs[0].NTrees != 50 || runs.Runs[0].MaxFeatures != 10 || runs.Runs[0].FileName != "traffic.csv" {
		t.Errorf("run = %+v", runs.Runs[0])
	}
}

func TestTrainingJobNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/model/train/missing", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/model/train/missing/events", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("events status = %d", resp.StatusCode)
	}
}

func TestDatasetValidation(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "file", "flows.csv", sampleCSV, nil)
	resp, out := env.do(t, http.MethodPost, "/api/datasets/validate", body, ct)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(out), `"valid":true`) {
		t.Errorf("csv: %d %s", resp.StatusCode, out)
	}

	body, ct = multipartBody(t, "file", "flows.json", "{}", nil)
	resp, out = env.do(t, http.MethodPost, "/api/datasets/validate", body, ct)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(out), `"valid":false`) {
		t.Errorf("json: %d %s", resp.StatusCode, out)
	}

	body, ct = multipartBody(t, "file", "empty.csv", "", nil)
	resp, _ = env.do(t, http.MethodPost, "/api/datasets/validate", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty: %d", resp.StatusCode)
	}
}

func TestPanels(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/panels/unknown", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown panel status = %d", resp.StatusCode)
	}

	_, out := env.do(t, http.MethodGet, "/api/panels/services", nil, "")
	if !strings.Contains(string(out), `"loaded":false`) {
		t.Errorf("panel before refresh = %s", out)
	}

	env.services.Refresh(testContext(t))
	_, out = env.do(t, http.MethodGet, "/api/panels/services", nil, "")
	var state struct {
		Data   []models.ServiceStatus `json:"data"`
		Loaded bool                   `json:"loaded"`
	}
	if err := json.Unmarshal(out, &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.Loaded || len(state.Data) != 5 {
		t.Errorf("panel after refresh = %+v", state)
	}
}

func TestAlertHistory(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/alerts/history", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("without redis: status %d", resp.StatusCode)
	}

	mr := miniredis.RunT(t)
	history, err := storage.NewAlertHistory(mr.Addr(), "", 0, 10)
	if err != nil {
		t.Fatalf("NewAlertHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	ctx := testContext(t)
	for i, label := range []string{"SYN Flood", "UDP Flood", "SYN Flood"} {
		event := models.AlertEvent{
			ID:         label + string(rune('a'+i)),
			SampleID:   int64(i),
			Label:      label,
			Severity:   models.SeverityCritical,
			ReceivedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := history.StoreAlert(ctx, event); err != nil {
			t.Fatalf("StoreAlert: %v", err)
		}
	}

	env = newTestEnv(t, withHistory(history))
	_, out := env.do(t, http.MethodGet, "/api/alerts/history?limit=2", nil, "")
	var got struct {
		Alerts []models.AlertEvent `json:"alerts"`
		Counts map[string]int64    `json:"counts"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Alerts) != 2 || got.Alerts[0].SampleID != 2 {
		t.Errorf("alerts = %+v", got.Alerts)
	}
	if got.Counts["SYN Flood"] != 2 || got.Counts["UDP Flood"] != 1 {
		t.Errorf("counts = %v", got.Counts)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.api.URL+"/api/attack", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, out := env.do(t, http.MethodGet, "/metrics", nil, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(out), "dashboard_attack_mode_active") {
		t.Errorf("metrics: %d", resp.StatusCode)
	}
}

func TestTrainingJobFallsBackToRunStore(t *testing.T) {
	env := newTestEnv(t)

	finished := time.Now()
	run := &models.TrainingRun{
		ID:        "earlier-run",
		FileName:  "flows.csv",
		Status:    "failed",
		Error:     "backend returned 500",
		StartedAt: finished.Add(-time.Minute),
	}
	if err := env.runs.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.runs.Finish(run.ID, "failed", nil, errors.New("backend returned 500")); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	resp, out := env.do(t, http.MethodGet, "/api/model/train/earlier-run", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var p training.Progress
	if err := json.Unmarshal(out, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stage != training.StageFailed || p.Percent != 100 || p.FileName != "flows.csv" {
		t.Errorf("progress = %+v", p)
	}
}

func TestAlertStream(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/alerts/stream", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("without redis: status %d", resp.StatusCode)
	}

	mr := miniredis.RunT(t)
	history, err := storage.NewAlertHistory(mr.Addr(), "", 0, 10)
	if err != nil {
		t.Fatalf("NewAlertHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })
	env = newTestEnv(t, withHistory(history))

	ctx, cancel := context.WithTimeout(testContext(t), 5*time.Second)
	defer cancel()

	// keep publishing until the stream has subscribed and relayed one
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		event := models.AlertEvent{ID: "a1", SampleID: 9, Label: "SYN Flood", Severity: models.SeverityCritical}
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = history.PublishAlert(context.Background(), event)
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.api.URL+"/api/alerts/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer stream.Body.Close()

	reader := bufio.NewReader(stream.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"label":"SYN Flood"`) || !strings.Contains(line, `"sample_id":9`) {
				t.Errorf("event = %s", line)
			}
			return
		}
	}
}

func uploadedFile(t *testing.T, name, content string) *multipart.FileHeader {
	t.Helper()
	body, ct := multipartBody(t, "file", name, content, nil)
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func TestReadUpload(t *testing.T) {
	data, err := readUpload(uploadedFile(t, "flows.csv", sampleCSV), upload.MB)
	if err != nil || string(data) != sampleCSV {
		t.Fatalf("readUpload = %q, %v", data, err)
	}

	tests := []struct {
		name    string
		file    string
		content string
		limit   int64
		want    error
	}{
		{"wrong extension", "flows.txt", sampleCSV, upload.MB, upload.ErrNotCSV},
		{"empty", "flows.csv", "", upload.MB, upload.ErrEmptyFile},
		{"over limit", "flows.csv", sampleCSV, 8, upload.ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readUpload(uploadedFile(t, tt.file, tt.content), tt.limit)
			if !errors.Is(err, tt.want) || !upload.IsValidationError(err) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): the returned
// context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// Package backend talks to the external detection and DevOps backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

const defaultModelFileName = "model.pkl"

// StatusError is returned for any non-2xx backend response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.StatusCode)
}

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// TrainUpload is one retraining request
type TrainUpload struct {
	FileName string
	Content  io.Reader
	Params   models.TrainParams
}

// ModelFile is a downloaded model artifact
type ModelFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Client bounds every call by its timeout except Train, which runs as long
// as the caller's context allows.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Metrics(ctx context.Context) ([]models.SystemMetric, error) {
	var out []models.SystemMetric
	return out, c.getJSON(ctx, "/api/v1/metrics", &out)
}

func (c *Client) Pipeline(ctx context.Context) ([]models.PipelineStage, error) {
	var out []models.PipelineStage
	return out, c.getJSON(ctx, "/api/v1/pipeline", &out)
}

func (c *Client) Services(ctx context.Context) ([]models.ServiceStatus, error) {
	var out []models.ServiceStatus
	return out, c.getJSON(ctx, "/api/v1/services", &out)
}

func (c *Client) Logs(ctx context.Context) ([]models.LogEntry, error) {
	var out []models.LogEntry
	return out, c.getJSON(ctx, "/api/v1/logs", &out)
}

func (c *Client) Alerts(ctx context.Context) ([]models.SystemAlert, error) {
	var out []models.SystemAlert
	return out, c.getJSON(ctx, "/api/v1/alerts", &out)
}

func (c *Client) AlertsLog(ctx context.Context) ([]models.LoggedAlert, error) {
	var out []models.LoggedAlert
	return out, c.getJSON(ctx, "/get-alerts-log", &out)
}

// ModelInfo fetches the metadata of the currently trained model
func (c *Client) ModelInfo(ctx context.Context) (*models.ModelInfo, error) {
	var env envelope[models.ModelInfo]
	if err := c.getJSON(ctx, "/api/model/info", &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// SimulateAttack asks the backend to start or stop emitting attack traffic
func (c *Client) SimulateAttack(ctx context.Context, status string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	path := "/simulate_attack?status=" + url.QueryEscape(status)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("simulate attack %s: %w", status, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Train uploads a dataset and waits for the backend to fit the model. Only
// ctx bounds the call.
func (c *Client) Train(ctx context.Context, upload TrainUpload) (*models.ModelInfo, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("data_file", upload.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("failed to copy dataset: %w", err)
	}

	fields := map[string]int{
		"n_trees":           upload.Params.NTrees,
		"max_depth":         upload.Params.MaxDepth,
		"min_samples_split": upload.Params.MinSamplesSplit,
		"min_samples_leaf":  upload.Params.MinSamplesLeaf,
		"max_features":      upload.Params.MaxFeatures,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, strconv.Itoa(value)); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/model/train", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("train request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var env envelope[models.ModelInfo]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode train response: %w", err)
	}
	return &env.Data, nil
}

// DownloadModel fetches the trained model file
func (c *Client) DownloadModel(ctx context.Context) (*ModelFile, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/model/download-model", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &ModelFile{
		Name:        fileNameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Detail  interface{} `json:"detail"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Detail != nil:
			if s, ok := body.Detail.(string); ok {
				statusErr.Message = s
			} else {
				statusErr.Message = fmt.Sprint(body.Detail)
			}
		case body.Error != "":
			statusErr.Message = body.Error
		case body.Message != "":
			statusErr.Message = body.Message
		}
	}
	return statusErr
}

func fileNameFromDisposition(header string) string {
	if header == "" {
		return defaultModelFileName
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil || params["filename"] == "" {
		return defaultModelFileName
	}
	return params["filename"]
}

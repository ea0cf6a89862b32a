// Package training runs model retraining jobs against the backend and
// reports their progress as it actually happens.
package training

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/backend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/metrics"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

var ErrJobNotFound = errors.New("training job not found")

type Stage string

const (
	StageQueued    Stage = "queued"
	StageUploading Stage = "uploading"
	StageTraining  Stage = "training"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

var stagePercent = map[Stage]int{
	StageQueued:    0,
	StageUploading: 20,
	StageTraining:  50,
	StageCompleted: 100,
	StageFailed:    100,
}

// Final reports whether no further stage follows
func (s Stage) Final() bool {
	return s == StageCompleted || s == StageFailed
}

// Progress is one observable step of a job
type Progress struct {
	JobID    string            `json:"job_id"`
	FileName string            `json:"file_name"`
	Stage    Stage             `json:"stage"`
	Percent  int               `json:"percent"`
	Info     *models.ModelInfo `json:"info,omitempty"`
	Error    string            `json:"error,omitempty"`
	At       time.Time         `json:"at"`
}

// Trainer is the backend call a job performs
type Trainer interface {
	Train(ctx context.Context, upload backend.TrainUpload) (*models.ModelInfo, error)
}

// RunRecorder persists job outcomes. It may be nil.
type RunRecorder interface {
	Create(run *models.TrainingRun) error
	Finish(id string, status string, info *models.ModelInfo, runErr error) error
}

// Upload is a validated dataset held in memory for the duration of the job
type Upload struct {
	FileName string
	Data     []byte
	Params   models.TrainParams
}

type job struct {
	mu      sync.Mutex
	current Progress
	subs    map[chan Progress]struct{}
	expiry  *time.Timer
}

// DefaultRetention is how long a finished job stays queryable in memory.
// The run store keeps it afterwards.
const DefaultRetention = 15 * time.Minute

type Tracker struct {
	trainer   Trainer
	runs      RunRecorder
	timeout   time.Duration
	retention time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*job
}

type Option func(*Tracker)

// WithRetention sets how long finished jobs are kept before they are dropped
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

func NewTracker(trainer Trainer, runs RunRecorder, timeout time.Duration, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) *Tracker {
	if m == nil {
		m = metrics.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		trainer:   trainer,
		runs:      runs,
		timeout:   timeout,
		retention: DefaultRetention,
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start queues a job and runs it in the background
func (t *Tracker) Start(upload Upload) Progress {
	id := uuid.New().String()
	j := &job{
		current: Progress{
			JobID:    id,
			FileName: upload.FileName,
			Stage:    StageQueued,
			Percent:  stagePercent[StageQueued],
			At:       time.Now(),
		},
		subs: make(map[chan Progress]struct{}),
	}

	t.mu.Lock()
	t.jobs[id] = j
	t.mu.Unlock()

	if t.runs != nil {
		run := &models.TrainingRun{
			ID:              id,
			FileName:        upload.FileName,
			FileSize:        int64(len(upload.Data)),
			NTrees:          upload.Params.NTrees,
			MaxDepth:        upload.Params.MaxDepth,
			MinSamplesSplit: upload.Params.MinSamplesSplit,
			MinSamplesLeaf:  upload.Params.MinSamplesLeaf,
			MaxFeatures:     upload.Params.MaxFeatures,
			Status:          string(StageQueued),
			StartedAt:       j.current.At,
		}
		if err := t.runs.Create(run); err != nil {
			t.logger.Warnf("Failed to record training run %s: %v", id, err)
		}
	}

	initial := j.current

	t.wg.Add(1)
	go t.run(j, upload)

	return initial
}

func (t *Tracker) run(j *job, upload Upload) {
	defer t.wg.Done()

	id := j.snapshot().JobID
	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	t.advance(j, Progress{Stage: StageUploading})

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				t.advance(j, Progress{Stage: StageTraining})
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	info, err := t.trainer.Train(ctx, backend.TrainUpload{
		FileName: upload.FileName,
		Content:  bytes.NewReader(upload.Data),
		Params:   upload.Params,
	})

	final := Progress{Stage: StageCompleted, Info: info}
	if err != nil {
		final = Progress{Stage: StageFailed, Error: err.Error()}
		t.logger.Warnf("Training job %s failed: %v", id, err)
	} else {
		t.logger.Infof("Training job %s completed", id)
	}
	t.advance(j, final)
	t.metrics.TrainingJobs.WithLabelValues(string(final.Stage)).Inc()

	if t.runs != nil {
		if ferr := t.runs.Finish(id, string(final.Stage), info, err); ferr != nil {
			t.logger.Warnf("Failed to finish training run %s: %v", id, ferr)
		}
	}

	j.mu.Lock()
	j.expiry = time.AfterFunc(t.retention, func() { t.forget(id) })
	j.mu.Unlock()
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.jobs, id)
	t.mu.Unlock()
	t.logger.Debugf("Dropped finished training job %s", id)
}

// Jobs reports how many jobs are held in memory
func (t *Tracker) Jobs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

// advance moves the job forward. Stages never go backwards and a final
// stage closes every subscriber.
func (t *Tracker) advance(j *job, next Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.current.Stage.Final() || stagePercent[next.Stage] < j.current.Percent {
		return
	}
	if next.Stage == j.current.Stage {
		return
	}

	next.JobID = j.current.JobID
	next.FileName = j.current.FileName
	next.Percent = stagePercent[next.Stage]
	next.At = time.Now()
	j.current = next

	for ch := range j.subs {
		select {
		case ch <- next:
		default:
			t.logger.Debugf("Dropping progress for slow subscriber of job %s", next.JobID)
		}
		if next.Stage.Final() {
			close(ch)
			delete(j.subs, ch)
		}
	}
}

func (j *job) snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current
}

func (t *Tracker) lookup(id string) (*job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Get returns the latest progress of a job
func (t *Tracker) Get(id string) (Progress, error) {
	j, err := t.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	return j.snapshot(), nil
}

// Subscribe streams a job's progress, starting with its current stage. The
// channel closes after the final stage. Call the returned func to stop early.
func (t *Tracker) Subscribe(id string) (<-chan Progress, func(), error) {
	j, err := t.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Progress, len(stagePercent))

	j.mu.Lock()
	ch <- j.current
	if j.current.Stage.Final() {
		close(ch)
		j.mu.Unlock()
		return ch, func() {}, nil
	}
	j.subs[ch] = struct{}{}
	j.mu.Unlock()

	unsubscribe := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Close cancels running jobs and waits for them to finish
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, j := range t.jobs {
		j.mu.Lock()
		if j.expiry != nil {
			j.expiry.Stop()
		}
		j.mu.Unlock()
	}
}

package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

// Ledger tracks background jobs in memory. Records are held for the process
// lifetime; callers poll by id. All methods are safe for concurrent use.
type Ledger struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	hub *events.Hub
}

// NewLedger creates an empty ledger. hub may be nil; when set, lifecycle
// events are published for every transition.
func NewLedger(hub *events.Hub) *Ledger {
	return &Ledger{
		jobs: make(map[string]*Job),
		hub:  hub,
	}
}

// Create registers a new job in the in-progress state and returns its id.
func (l *Ledger) Create() string {
	id := uuid.NewString()
	now := time.Now().UTC()

	l.mu.Lock()
	l.jobs[id] = &Job{
		ID:        id,
		Status:    StatusInProgress,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.mu.Unlock()

	l.publish("job.created", id, nil)
	return id
}

// Get returns a snapshot of the job, or false if the id is unknown.
func (l *Ledger) Get(id string) (Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	j, ok := l.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Update applies a partial mutation. Unknown ids and updates against jobs
// already in a terminal state are silently ignored, so late writes from a
// pipeline that lost a race with failure handling cannot corrupt the record.
// Progress never moves backwards.
func (l *Ledger) Update(id string, u Update) {
	var event string
	var extra map[string]any

	l.mu.Lock()
	j, ok := l.jobs[id]
	if !ok || j.Status.IsTerminal() {
		l.mu.Unlock()
		return
	}

	if u.Progress != nil {
		p := *u.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p > j.Progress {
			j.Progress = p
			event = "job.progress"
			extra = map[string]any{"progress": p}
		}
	}
	if u.Result != nil {
		j.Result = u.Result
	}
	if u.Error != nil {
		j.Error = u.Error
	}
	if u.Status != nil && *u.Status != j.Status {
		j.Status = *u.Status
		switch j.Status {
		case StatusCompleted:
			j.Progress = 100
			event = "job.completed"
			extra = nil
		case StatusFailed:
			event = "job.failed"
			extra = nil
			if j.Error != nil {
				extra = map[string]any{"reason": j.Error.Reason}
			}
		}
	}
	j.UpdatedAt = time.Now().UTC()
	l.mu.Unlock()

	if event != "" {
		l.publish(event, id, extra)
	}
}

// SetProgress advances the job's progress percentage.
func (l *Ledger) SetProgress(id string, pct int) {
	l.Update(id, Update{Progress: &pct})
}

// Complete marks the job completed with the given result document and
// forces progress to 100.
func (l *Ledger) Complete(id string, result []byte) {
	s := StatusCompleted
	l.Update(id, Update{Status: &s, Result: result})
	log.WithJob(id).Info("job completed")
}

// Fail marks the job failed with a classified error. The reason is stored
// verbatim for the caller to read back.
func (l *Ledger) Fail(id string, kind ErrorKind, reason string) {
	s := StatusFailed
	l.Update(id, Update{
		Status: &s,
		Error:  &Error{Kind: kind, Reason: reason, At: time.Now().UTC()},
	})
	log.WithJob(id).Error("job failed", "kind", string(kind), "reason", reason)
}

// Len returns the number of tracked jobs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.jobs)
}

func (l *Ledger) publish(event, id string, extra map[string]any) {
	if l.hub == nil {
		return
	}
	l.hub.PublishJob(event, id, extra)
}

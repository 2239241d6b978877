package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Job is a unit of scheduled work executed by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type slot struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs in registration order along with when each last ran.
// It is not safe for concurrent use; the service drives it from one goroutine.
type Registry struct {
	slots []*slot
}

// NewRegistry registers jobs that run on every tick.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.RegisterEvery(job, 0)
	}
	return r
}

// RegisterEvery adds a job that runs at most once per every. Nil jobs are
// ignored.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job != nil {
		r.slots = append(r.slots, &slot{job: job, every: every})
	}
}

func (r *Registry) Len() int { return len(r.slots) }

func (r *Registry) due(now time.Time) []*slot {
	var out []*slot
	for _, s := range r.slots {
		if s.lastRun.IsZero() || now.Sub(s.lastRun) >= s.every {
			out = append(out, s)
		}
	}
	return out
}

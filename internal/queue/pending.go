package queue

import (
	"slices"
	"time"
)

// Pending is the ordered list of jobs that still need the pipeline. The head
// is the job that runs next (or is running).
type Pending struct {
	jobs    []*Job
	nextSeq uint64
}

// Len returns the number of pending jobs.
func (p *Pending) Len() int { return len(p.jobs) }

// Head returns the first job or nil.
func (p *Pending) Head() *Job {
	if len(p.jobs) == 0 {
		return nil
	}
	return p.jobs[0]
}

// Get returns the job with id or nil.
func (p *Pending) Get(id string) *Job {
	if idx := p.index(id); idx >= 0 {
		return p.jobs[idx]
	}
	return nil
}

// Contains reports whether id is queued.
func (p *Pending) Contains(id string) bool {
	return p.index(id) >= 0
}

// Append adds job at the tail. It returns false when the id is already queued.
func (p *Pending) Append(job *Job) bool {
	if job == nil || p.Contains(job.ID) {
		return false
	}
	p.stamp(job)
	p.jobs = append(p.jobs, job)
	return true
}

// PushFront inserts job at the head, or moves the existing entry with the
// same id there. With keepHead the current head stays first and job lands
// right behind it. It returns the queued entry.
func (p *Pending) PushFront(job *Job, keepHead bool) *Job {
	at := 0
	if keepHead && len(p.jobs) > 0 && p.jobs[0].ID != job.ID {
		at = 1
	}
	if idx := p.index(job.ID); idx >= 0 {
		existing := p.jobs[idx]
		p.jobs = slices.Delete(p.jobs, idx, idx+1)
		p.jobs = slices.Insert(p.jobs, min(at, len(p.jobs)), existing)
		return existing
	}
	p.stamp(job)
	p.jobs = slices.Insert(p.jobs, min(at, len(p.jobs)), job)
	return job
}

// MaxPriority returns the highest priority currently queued.
func (p *Pending) MaxPriority() int {
	highest := 0
	for _, job := range p.jobs {
		highest = max(highest, job.Priority)
	}
	return highest
}

// Remove drops id from the list and returns the removed job.
func (p *Pending) Remove(id string) *Job {
	idx := p.index(id)
	if idx < 0 {
		return nil
	}
	job := p.jobs[idx]
	p.jobs = slices.Delete(p.jobs, idx, idx+1)
	return job
}

// Sort orders jobs by ascending missing-step count, then descending priority,
// then insertion order. When pinHead is set the current head keeps its place.
func (p *Pending) Sort(pinHead bool) {
	rest := p.jobs
	if pinHead && len(rest) > 0 {
		rest = rest[1:]
	}
	slices.SortStableFunc(rest, compareJobs)
}

// Snapshot returns copies of the queued jobs in order.
func (p *Pending) Snapshot() []Job {
	out := make([]Job, 0, len(p.jobs))
	for _, job := range p.jobs {
		out = append(out, job.Clone())
	}
	return out
}

func (p *Pending) index(id string) int {
	return slices.IndexFunc(p.jobs, func(j *Job) bool { return j.ID == id })
}

func (p *Pending) stamp(job *Job) {
	p.nextSeq++
	job.seq = p.nextSeq
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
}

func compareJobs(a, b *Job) int {
	if d := len(a.MissingSteps) - len(b.MissingSteps); d != 0 {
		return d
	}
	if d := b.Priority - a.Priority; d != 0 {
		return d
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

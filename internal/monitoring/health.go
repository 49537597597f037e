package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Progress tracks a long-running search so a status endpoint can report how
// far along it is. Safe for concurrent Step calls from worker goroutines.
type Progress struct {
	mu        sync.RWMutex
	job       string
	total     int
	completed int
	started   time.Time
}

type ProgressStatus struct {
	Status    string    `json:"status"`
	Job       string    `json:"job"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	Elapsed   string    `json:"elapsed"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProgress() *Progress {
	return &Progress{started: time.Now()}
}

// Begin resets the tracker for a new job.
func (p *Progress) Begin(job string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.job = job
	p.total = total
	p.completed = 0
	p.started = time.Now()
}

// Step records completed work units.
func (p *Progress) Step(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = done
	if total > 0 {
		p.total = total
	}
}

func (p *Progress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := "running"
	percent := 0.0
	if p.total > 0 {
		percent = float64(p.completed) / float64(p.total) * 100
		if p.completed >= p.total {
			status = "done"
		}
	} else if p.job == "" {
		status = "idle"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ProgressStatus{
		Status:    status,
		Job:       p.job,
		Completed: p.completed,
		Total:     p.total,
		Percent:   percent,
		Elapsed:   time.Since(p.started).String(),
		Timestamp: time.Now(),
	})
}

package processor

import (
	"sort"
	"sync"
	"time"
)

// Registry 保存进行中和最近结束的批处理，供 HTTP 接口按 ID 查询
type Registry struct {
	mu        sync.RWMutex
	runs      map[string]*BatchRun
	retention time.Duration
	now       func() time.Time
}

// NewRegistry retention 为结束后的保留时长，<=0 表示一直保留
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		runs:      make(map[string]*BatchRun),
		retention: retention,
		now:       time.Now,
	}
}

// Add 登记批处理，同时清理过期记录
func (r *Registry) Add(run *BatchRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.runs[run.ID()] = run
}

// Get 按 ID 查找
func (r *Registry) Get(id string) (*BatchRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok || r.expired(run) {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List 按提交时间倒序返回未过期的批处理
func (r *Registry) List() []*BatchRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BatchRun, 0, len(r.runs))
	for _, run := range r.runs {
		if !r.expired(run) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].submittedAt.After(out[j].submittedAt)
	})
	return out
}

// Prune 删除过期记录，返回删除数量
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked()
}

func (r *Registry) pruneLocked() int {
	removed := 0
	for id, run := range r.runs {
		if r.expired(run) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) expired(run *BatchRun) bool {
	if r.retention <= 0 {
		return false
	}
	finished := run.FinishedAt()
	return !finished.IsZero() && r.now().Sub(finished) > r.retention
}

package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"resume-matcher/internal/tracing"
	"resume-matcher/internal/types"
)

type messageKind int

const (
	msgPhase     messageKind = iota // 进入新阶段
	msgCompleted                    // 某个文档在当前阶段完成
	msgFinish                       // 所有 worker 已退出
)

// message worker 与协调协程发给收集协程的消息
type message struct {
	kind   messageKind
	phase  types.BatchStatus
	index  int
	result *types.MatchResult
}

// BatchRun 一次批处理。状态、进度和结果只由收集协程写入
type BatchRun struct {
	id        string
	docs      []types.Document
	req       types.JobRequirement
	orch      *Orchestrator
	listeners []ProgressListener
	logger    *zerolog.Logger

	cancel   context.CancelFunc
	messages chan message
	done     chan struct{}

	mu          sync.RWMutex
	status      types.BatchStatus
	progress    int
	results     []*types.MatchResult
	submittedAt time.Time
	finishedAt  time.Time
}

// RunSnapshot 批处理在某一时刻的只读视图
type RunSnapshot struct {
	ID          string               `json:"id"`
	Status      types.BatchStatus    `json:"status"`
	Progress    int                  `json:"progress"`
	Total       int                  `json:"total"`
	Requirement types.JobRequirement `json:"requirement"`
	Results     []*types.MatchResult `json:"results"`
	SubmittedAt time.Time            `json:"submitted_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

func newBatchRun(id string, docs []types.Document, req types.JobRequirement, orch *Orchestrator, settings runSettings) *BatchRun {
	l := orch.logger.With().Str("run_id", id).Logger()
	return &BatchRun{
		id:          id,
		docs:        append([]types.Document(nil), docs...),
		req:         req,
		orch:        orch,
		listeners:   settings.listeners,
		logger:      &l,
		messages:    make(chan message, 2*len(docs)+3),
		done:        make(chan struct{}),
		status:      types.BatchPending,
		results:     make([]*types.MatchResult, len(docs)),
		submittedAt: time.Now(),
	}
}

// ID 批处理ID
func (r *BatchRun) ID() string { return r.id }

// Requirement 本次批处理使用的岗位要求
func (r *BatchRun) Requirement() types.JobRequirement { return r.req }

// Total 文档数量
func (r *BatchRun) Total() int { return len(r.docs) }

// Status 当前状态
func (r *BatchRun) Status() types.BatchStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Progress 当前进度 [0,100]
func (r *BatchRun) Progress() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Results 结果快照，按输入顺序排列；尚未完成的文档为 nil
func (r *BatchRun) Results() []*types.MatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resultsLocked()
}

func (r *BatchRun) resultsLocked() []*types.MatchResult {
	out := make([]*types.MatchResult, len(r.results))
	for i, res := range r.results {
		if res != nil {
			cp := *res
			out[i] = &cp
		}
	}
	return out
}

// Snapshot 返回状态、进度与结果的一致视图
func (r *BatchRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RunSnapshot{
		ID:          r.id,
		Status:      r.status,
		Progress:    r.progress,
		Total:       len(r.docs),
		Requirement: r.req,
		Results:     r.resultsLocked(),
		SubmittedAt: r.submittedAt,
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		s.FinishedAt = &finished
	}
	return s
}

// Summary 汇总信息，与发布到消息队列的内容一致
func (r *BatchRun) Summary() types.BatchSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaryLocked()
}

func (r *BatchRun) summaryLocked() types.BatchSummary {
	return types.BatchSummary{
		RunID:    r.id,
		Status:   r.status,
		Progress: r.progress,
		Results:  r.resultsLocked(),
	}
}

// FinishedAt 结束时间，未结束时为零值
func (r *BatchRun) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// Done 批处理结束（Completed 或 Cancelled）时关闭
func (r *BatchRun) Done() <-chan struct{} {
	return r.done
}

// Wait 等待批处理结束；ctx 先结束时返回 ctx.Err()，批处理本身不受影响
func (r *BatchRun) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel 停止派发尚未开始的文档。已在处理中的文档会继续完成，
// 批处理以 Cancelled 结束。批处理结束后调用无效果
func (r *BatchRun) Cancel() {
	r.cancel()
}

func (r *BatchRun) send(m message) {
	r.messages <- m
}

// execute 协调两个阶段：先摄取全部文档（0-50%），再提取与评分（50-100%）
func (r *BatchRun) execute(ctx context.Context) {
	ctx, span := r.orch.startSpan(ctx, "BatchRun.Execute",
		attribute.String("run_id", r.id),
		attribute.Int("documents", len(r.docs)),
		attribute.Int("workers", r.orch.workers),
	)
	defer span.End()

	n := len(r.docs)
	texts := make([]string, n)
	ingested := make([]bool, n)
	failed := make([]bool, n)

	r.send(message{kind: msgPhase, phase: types.BatchUploading})
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	r.runPhase(ctx, all, func(workCtx context.Context, i int) {
		text, ok := r.ingestDocument(workCtx, i)
		texts[i], ingested[i], failed[i] = text, ok, !ok
	})

	if ctx.Err() != nil {
		span.AddEvent("batch_cancelled")
	}

	// 已开始摄取的文档总会完成分析，取消只影响尚未开始的文档
	r.send(message{kind: msgPhase, phase: types.BatchAnalyzing})
	var pending []int
	for i := 0; i < n; i++ {
		switch {
		case failed[i]:
			// 摄取失败的文档在分析阶段直接计为完成
			r.send(message{kind: msgCompleted, phase: types.BatchAnalyzing, index: i})
		case ingested[i]:
			pending = append(pending, i)
		}
	}
	r.runPhase(context.WithoutCancel(ctx), pending, func(workCtx context.Context, i int) {
		r.analyzeDocument(workCtx, i, texts[i])
	})

	r.send(message{kind: msgFinish})
}

// runPhase 以大小为 K 的工作池处理 indices。
// 取消后不再派发新文档；已开始的文档使用不可取消的 ctx 继续完成
func (r *BatchRun) runPhase(ctx context.Context, indices []int, work func(ctx context.Context, i int)) {
	g := new(errgroup.Group)
	g.SetLimit(r.orch.workers)
	for _, i := range indices {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			work(context.WithoutCancel(ctx), i)
			return nil
		})
	}
	_ = g.Wait()
}

// ingestDocument 摄取单个文档，失败时直接记录失败结果
func (r *BatchRun) ingestDocument(ctx context.Context, i int) (string, bool) {
	doc := r.docs[i]
	ctx, span := r.orch.startSpan(ctx, "BatchRun.IngestDocument", documentAttrs(r.id, i, doc)...)
	defer span.End()

	start := time.Now()
	var text string
	err := safeCall(doc.Name, func() error {
		var extractErr error
		text, extractErr = r.orch.ingestor.ExtractText(ctx, doc)
		return extractErr
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeForKind(types.KindOf(err)))
		r.logger.Warn().Err(err).Str("document", doc.Name).Int("index", i).Msg("文档摄取失败")
		r.send(message{kind: msgCompleted, phase: types.BatchUploading, index: i, result: types.NewFailedResult(doc.Name, err)})
		return "", false
	}

	span.SetAttributes(attribute.Int("text.length", len(text)))
	r.logger.Debug().Str("document", doc.Name).Int("chars", len(text)).Dur("duration", time.Since(start)).Msg("文档摄取完成")
	r.send(message{kind: msgCompleted, phase: types.BatchUploading, index: i})
	return text, true
}

// analyzeDocument 提取画像并评分
func (r *BatchRun) analyzeDocument(ctx context.Context, i int, text string) {
	doc := r.docs[i]
	ctx, span := r.orch.startSpan(ctx, "BatchRun.AnalyzeDocument", documentAttrs(r.id, i, doc)...)
	defer span.End()

	var result *types.MatchResult
	err := safeCall(doc.Name, func() error {
		profile := r.profileFor(ctx, text)
		result = r.orch.scorer.Score(doc.Name, profile, r.req)
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		r.logger.Error().Err(err).Str("document", doc.Name).Msg("文档分析失败")
		result = types.NewFailedResult(doc.Name, err)
	} else {
		span.SetAttributes(attribute.Int("match.score", result.Score), attribute.String("match.band", string(result.Band)))
	}
	r.send(message{kind: msgCompleted, phase: types.BatchAnalyzing, index: i, result: result})
}

// profileFor 命中缓存时直接返回，否则提取并写入缓存。缓存故障不影响结果
func (r *BatchRun) profileFor(ctx context.Context, text string) types.ExtractedProfile {
	cache := r.orch.cache
	if cache == nil {
		return r.orch.extractor.ExtractProfile(text)
	}

	hash := TextHash(text)
	cached, err := cache.GetProfile(ctx, hash)
	if err != nil {
		r.logger.Warn().Err(err).Str("text_hash", hash).Msg("读取画像缓存失败，直接提取")
	} else if cached != nil {
		r.logger.Debug().Str("text_hash", hash).Msg("画像缓存命中")
		return *cached
	}

	profile := r.orch.extractor.ExtractProfile(text)
	if err := cache.PutProfile(ctx, hash, profile); err != nil {
		r.logger.Warn().Err(err).Str("text_hash", hash).Msg("写入画像缓存失败")
	}
	return profile
}

// collect 收集协程：唯一写入状态、进度和结果的地方，并串行地通知监听者
func (r *BatchRun) collect(ctx context.Context) {
	defer close(r.done)

	total := len(r.docs)
	phase := types.BatchPending
	completed := 0

	for m := range r.messages {
		switch m.kind {
		case msgPhase:
			phase, completed = m.phase, 0
			base := phaseBase(phase)
			r.mu.Lock()
			r.status = phase
			r.progress = max(r.progress, base)
			percent := r.progress
			r.mu.Unlock()
			r.emit(ctx, types.ProgressEvent{RunID: r.id, Phase: phase, Percent: percent, Completed: 0, Total: total})

		case msgCompleted:
			completed++
			percent := int(math.Round(float64(phaseBase(m.phase)) + 50*float64(completed)/float64(total)))
			r.mu.Lock()
			if m.result != nil {
				r.results[m.index] = m.result
			}
			r.progress = max(r.progress, percent)
			percent = r.progress
			r.mu.Unlock()
			r.emit(ctx, types.ProgressEvent{RunID: r.id, Phase: m.phase, Percent: percent, Completed: completed, Total: total})

		case msgFinish:
			r.finish(ctx)
			return
		}
	}
}

// finish 为没有结果的文档填充 CancelledError，进入终止状态并发布汇总。
// 结束前收到过取消请求即为 Cancelled，已产生的结果保留
func (r *BatchRun) finish(ctx context.Context) {
	// r.cancel 在本函数末尾才调用，此时 ctx 只反映外部取消
	cancelRequested := ctx.Err() != nil
	r.mu.Lock()
	unfinished := 0
	for i, res := range r.results {
		if res == nil {
			unfinished++
			name := r.docs[i].Name
			r.results[i] = types.NewFailedResult(name, types.NewCancelledError(name))
		}
	}
	if unfinished > 0 || cancelRequested {
		r.status = types.BatchCancelled
	} else {
		r.status = types.BatchCompleted
		r.progress = 100
	}
	r.finishedAt = time.Now()
	status, percent := r.status, r.progress
	summary := r.summaryLocked()
	elapsed := r.finishedAt.Sub(r.submittedAt)
	r.mu.Unlock()

	total := len(r.docs)
	r.emit(ctx, types.ProgressEvent{RunID: r.id, Phase: status, Percent: percent, Completed: total - unfinished, Total: total})

	if p := r.orch.publisher; p != nil {
		if err := p.PublishSummary(context.WithoutCancel(ctx), summary); err != nil {
			r.logger.Error().Err(err).Msg("发布批处理汇总失败")
		}
	}

	failures := 0
	for _, res := range summary.Results {
		if res.Failed() {
			failures++
		}
	}
	r.logger.Info().
		Str("status", string(status)).
		Int("documents", total).
		Int("failed", failures).
		Int("cancelled", unfinished).
		Dur("duration", elapsed).
		Msg("批处理结束")

	// 释放 ctx 相关资源
	r.cancel()
}

// emit 通知监听者并按需发布进度事件
func (r *BatchRun) emit(ctx context.Context, event types.ProgressEvent) {
	for _, listener := range r.listeners {
		r.notify(listener, event)
	}
	if p := r.orch.publisher; p != nil && r.orch.publishProgress && !event.Phase.Terminal() {
		if err := p.PublishProgress(context.WithoutCancel(ctx), event); err != nil {
			r.logger.Warn().Err(err).Int("percent", event.Percent).Msg("发布进度事件失败")
		}
	}
}

func (r *BatchRun) notify(listener ProgressListener, event types.ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("进度监听器发生panic")
		}
	}()
	listener(event)
}

func phaseBase(phase types.BatchStatus) int {
	if phase == types.BatchAnalyzing {
		return 50
	}
	return 0
}

// safeCall 将文档处理中的 panic 转换为 ExtractionError
func safeCall(documentName string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = types.NewExtractionError(documentName, fmt.Sprintf("panic: %v\n%s", rec, debug.Stack()))
		}
	}()
	return fn()
}

// TextHash 规范化文本的 SHA-256，用作画像缓存键
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

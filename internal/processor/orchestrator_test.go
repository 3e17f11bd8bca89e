package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher/internal/extractor"
	"resume-matcher/internal/scoring"
	"resume-matcher/internal/types"
)

// fakeIngestor 以文档内容作为文本，可按文档名注入延迟、阻塞或错误
type fakeIngestor struct {
	delays  map[string]time.Duration
	block   chan struct{} // 非 nil 时所有文档都等待它关闭
	started chan string   // 非 nil 时每个文档开始时发送文档名
	panics  map[string]bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeIngestor) ExtractText(ctx context.Context, doc types.Document) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, doc.Name)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- doc.Name
	}
	if f.block != nil {
		<-f.block
	}
	if d := f.delays[doc.Name]; d > 0 {
		time.Sleep(d)
	}
	if f.panics[doc.Name] {
		panic("boom")
	}
	if doc.Format == "png" {
		return "", types.NewUnsupportedFormatError(doc.Name, doc.Format)
	}
	if len(doc.Content) == 0 {
		return "", types.NewExtractionError(doc.Name, "document contains no text")
	}
	return string(doc.Content), nil
}

func (f *fakeIngestor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memoryCache 内存画像缓存
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]types.ExtractedProfile
	gets    int
	hits    int
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]types.ExtractedProfile)}
}

func (c *memoryCache) GetProfile(_ context.Context, hash string) (*types.ExtractedProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	p, ok := c.entries[hash]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &p, nil
}

func (c *memoryCache) PutProfile(_ context.Context, hash string, profile types.ExtractedProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = profile
	return nil
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu        sync.Mutex
	progress  []types.ProgressEvent
	summaries []types.BatchSummary
}

func (p *recordingPublisher) PublishProgress(_ context.Context, event types.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, event)
	return nil
}

func (p *recordingPublisher) PublishSummary(_ context.Context, summary types.BatchSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return nil
}

// eventLog 收集进度回调
type eventLog struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (l *eventLog) listener() ProgressListener {
	return func(e types.ProgressEvent) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	}
}

func (l *eventLog) snapshot() []types.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ProgressEvent(nil), l.events...)
}

const backendJD = `Backend engineer. Requirements: Golang, PostgreSQL, Docker. 3+ years of experience.
Bachelor's degree in Computer Science. Kubernetes is a plus.`

func textDoc(name, content string) types.Document {
	return types.Document{Name: name, Format: "txt", Content: []byte(content)}
}

func newTestOrchestrator(t *testing.T, ingestor TextIngestor, opts ...Option) *Orchestrator {
	t.Helper()
	scorer, err := scoring.NewScorer()
	require.NoError(t, err)
	o, err := New(ingestor, extractor.NewDefault(), scorer, opts...)
	require.NoError(t, err)
	return o
}

func waitRun(t *testing.T, run *BatchRun) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run.Wait(ctx), "批处理未在限定时间内结束")
}

func TestNewValidatesComponents(t *testing.T) {
	scorer, err := scoring.NewScorer()
	require.NoError(t, err)
	ext := extractor.NewDefault()
	ing := &fakeIngestor{}

	_, err = New(nil, ext, scorer)
	assert.ErrorIs(t, err, ErrIngestorNotInit)
	_, err = New(ing, nil, scorer)
	assert.ErrorIs(t, err, ErrExtractorNotInit)
	_, err = New(ing, ext, nil)
	assert.ErrorIs(t, err, ErrScorerNotInit)

	o, err := New(ing, ext, scorer, WithWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, 4, o.Workers(), "非法的 worker 数量应被忽略")
	o, err = New(ing, ext, scorer, WithWorkers(8))
	require.NoError(t, err)
	assert.Equal(t, 8, o.Workers())
}

func TestSubmitInvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{})
	docs := []types.Document{textDoc("a.txt", "Golang developer")}

	cases := []struct {
		name  string
		input BatchInput
	}{
		{"空文档列表", BatchInput{JobDescription: backendJD}},
		{"缺少岗位要求", BatchInput{Documents: docs}},
		{"空白岗位描述", BatchInput{Documents: docs, JobDescription: "   "}},
		{"要求与描述同时提供", BatchInput{Documents: docs, Requirement: &types.JobRequirement{}, JobDescription: backendJD}},
		{"负数年限", BatchInput{Documents: docs, Requirement: &types.JobRequirement{MinExperienceYears: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run, err := o.Submit(context.Background(), tc.input)
			require.Error(t, err)
			assert.Nil(t, run)
			assert.ErrorIs(t, err, types.ErrInvalidBatchInput)
			assert.Equal(t, types.KindInvalidBatchInput, types.KindOf(err))
		})
	}
}

func TestRunNormalizesLiteralRequirement(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{})
	run, err := o.Run(context.Background(), BatchInput{
		Documents: []types.Document{textDoc("a.txt", "React and Node.js developer, 5 years of experience. Bachelor's degree.")},
		Requirement: &types.JobRequirement{
			RequiredSkills:     types.SkillSet{"react", "typescript", "nodejs", "react"},
			MinExperienceYears: 3,
			MinEducationLevel:  types.EducationBachelors,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, types.SkillSet{"nodejs", "react", "typescript"}, run.Requirement().RequiredSkills)
	res := run.Results()[0]
	require.NotNil(t, res)
	assert.Equal(t, types.SkillSet{"nodejs", "react"}, res.MatchedSkills)
	assert.Equal(t, types.SkillSet{"typescript"}, res.MissingSkills)
	assert.Equal(t, 80, res.Score)
}

func TestRunPreservesInputOrder(t *testing.T) {
	// 先提交的文档更慢，完成顺序与输入顺序相反
	ing := &fakeIngestor{delays: map[string]time.Duration{
		"a.txt": 60 * time.Millisecond,
		"b.txt": 40 * time.Millisecond,
		"c.txt": 20 * time.Millisecond,
	}}
	o := newTestOrchestrator(t, ing, WithWorkers(3))

	docs := []types.Document{
		textDoc("a.txt", "Golang and PostgreSQL developer with 5 years of experience. BSc in Computer Science."),
		textDoc("b.txt", "Java developer, 1 year of experience."),
		textDoc("c.txt", "Golang, Docker, Kubernetes and PostgreSQL. 4 years experience. Master's degree."),
		textDoc("d.txt", "Designer"),
	}
	run, err := o.Run(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD})
	require.NoError(t, err)

	assert.Equal(t, types.BatchCompleted, run.Status())
	assert.Equal(t, 100, run.Progress())

	results := run.Results()
	require.Len(t, results, len(docs))
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, docs[i].Name, res.SourceDocumentName, "结果顺序必须与输入一致")
		assert.False(t, res.Failed())
		assert.GreaterOrEqual(t, res.Score, 0)
		assert.LessOrEqual(t, res.Score, 100)
	}

	req := run.Requirement()
	assert.Equal(t, types.SkillSet{"docker", "golang", "postgresql"}, req.RequiredSkills)
	assert.Greater(t, results[2].Score, results[1].Score)
	assert.Greater(t, results[0].Score, results[3].Score)
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	ing := &fakeIngestor{panics: map[string]bool{"panic.txt": true}}
	o := newTestOrchestrator(t, ing, WithWorkers(2))

	docs := []types.Document{
		textDoc("ok1.txt", "Golang developer"),
		{Name: "photo.png", Format: "png", Content: []byte{0x89, 'P', 'N', 'G'}},
		textDoc("empty.txt", ""),
		textDoc("panic.txt", "whatever"),
		textDoc("ok2.txt", "Docker"),
	}
	run, err := o.Run(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD})
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, run.Status())
	assert.Equal(t, 100, run.Progress())

	results := run.Results()
	require.Len(t, results, 5)

	assert.False(t, results[0].Failed())
	assert.False(t, results[4].Failed())

	require.True(t, results[1].Failed())
	assert.Equal(t, types.KindUnsupportedFormat, *results[1].Error)
	assert.Equal(t, 0, results[1].Score)
	assert.Empty(t, results[1].MatchedSkills)

	require.True(t, results[2].Failed())
	assert.Equal(t, types.KindExtraction, *results[2].Error)

	require.True(t, results[3].Failed())
	assert.Equal(t, types.KindExtraction, *results[3].Error)
	assert.Contains(t, results[3].ErrorDetail, "panic")
}

func TestRunProgressIsMonotonic(t *testing.T) {
	ing := &fakeIngestor{delays: map[string]time.Duration{"r1.txt": 10 * time.Millisecond, "r4.txt": 5 * time.Millisecond}}
	o := newTestOrchestrator(t, ing, WithWorkers(2))

	docs := make([]types.Document, 6)
	for i := range docs {
		docs[i] = textDoc(fmt.Sprintf("r%d.txt", i), "Golang developer with 3 years of experience")
	}
	docs[2] = types.Document{Name: "bad.png", Format: "png"}

	log := &eventLog{}
	run, err := o.Run(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD}, WithProgressListener(log.listener()))
	require.NoError(t, err)

	events := log.snapshot()
	require.NotEmpty(t, events)

	prev := 0
	sawBoundary := false
	analyzing := false
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, prev, "进度不能回退")
		assert.LessOrEqual(t, e.Percent, 100)
		assert.Equal(t, run.ID(), e.RunID)
		assert.Equal(t, len(docs), e.Total)
		if e.Phase == types.BatchAnalyzing {
			analyzing = true
		}
		if e.Phase == types.BatchUploading {
			assert.False(t, analyzing, "上传阶段事件不能出现在分析阶段之后")
			assert.LessOrEqual(t, e.Percent, 50)
		}
		if e.Percent == 50 {
			sawBoundary = true
		}
		prev = e.Percent
	}
	assert.True(t, sawBoundary, "阶段边界应达到 50%")

	last := events[len(events)-1]
	assert.Equal(t, types.BatchCompleted, last.Phase, "最后一个事件应为终止事件")
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, len(docs), last.Completed)
}

func TestRunCancellation(t *testing.T) {
	ing := &fakeIngestor{
		block:   make(chan struct{}),
		started: make(chan string, 10),
	}
	o := newTestOrchestrator(t, ing, WithWorkers(2))

	docs := make([]types.Document, 6)
	for i := range docs {
		docs[i] = textDoc(fmt.Sprintf("cv%d.txt", i), "Golang developer")
	}
	log := &eventLog{}
	run, err := o.Submit(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD}, WithProgressListener(log.listener()))
	require.NoError(t, err)

	// 等待两个 worker 都开始处理
	started := map[string]bool{}
	for len(started) < 2 {
		select {
		case name := <-ing.started:
			started[name] = true
		case <-time.After(5 * time.Second):
			t.Fatal("worker 未启动")
		}
	}

	run.Cancel()
	close(ing.block)
	waitRun(t, run)

	assert.Equal(t, types.BatchCancelled, run.Status())
	assert.Less(t, run.Progress(), 100)
	assert.Equal(t, 2, ing.callCount(), "取消后不应再派发新文档")

	results := run.Results()
	require.Len(t, results, len(docs))
	cancelled := 0
	for i, res := range results {
		require.NotNil(t, res, "每个文档都必须有结果")
		assert.Equal(t, docs[i].Name, res.SourceDocumentName)
		if started[res.SourceDocumentName] {
			assert.False(t, res.Failed(), "已开始的文档应正常完成")
			continue
		}
		require.True(t, res.Failed())
		assert.Equal(t, types.KindCancelled, *res.Error)
		cancelled++
	}
	assert.Equal(t, 4, cancelled)

	events := log.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.BatchCancelled, last.Phase)
	assert.Equal(t, 2, last.Completed)

	// 结束后再次取消无效果
	run.Cancel()
	assert.Equal(t, types.BatchCancelled, run.Status())
}

func TestCancelWithAllDocumentsInFlight(t *testing.T) {
	ing := &fakeIngestor{block: make(chan struct{}), started: make(chan string, 10)}
	o := newTestOrchestrator(t, ing, WithWorkers(2))

	docs := []types.Document{textDoc("a.txt", "Golang"), textDoc("b.txt", "Golang Docker")}
	log := &eventLog{}
	run, err := o.Submit(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD}, WithProgressListener(log.listener()))
	require.NoError(t, err)

	for range docs {
		select {
		case <-ing.started:
		case <-time.After(5 * time.Second):
			t.Fatal("worker 未启动")
		}
	}
	run.Cancel()
	close(ing.block)
	waitRun(t, run)

	assert.Equal(t, types.BatchCancelled, run.Status(), "收到取消请求的批处理应以 Cancelled 结束")
	results := run.Results()
	require.Len(t, results, len(docs))
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, docs[i].Name, res.SourceDocumentName)
		assert.False(t, res.Failed(), "已开始的文档结果应保留")
	}

	events := log.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.BatchCancelled, last.Phase)
	assert.Equal(t, len(docs), last.Completed)
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{})
	run, err := o.Run(context.Background(), BatchInput{
		Documents:   []types.Document{textDoc("a.txt", "Golang")},
		Requirement: &types.JobRequirement{RequiredSkills: types.NewSkillSet("golang")},
	})
	require.NoError(t, err)
	run.Cancel()
	assert.Equal(t, types.BatchCompleted, run.Status())
	assert.Equal(t, 100, run.Progress())
	assert.Equal(t, 100, run.Results()[0].Score)
}

func TestParentContextCancellation(t *testing.T) {
	ing := &fakeIngestor{block: make(chan struct{}), started: make(chan string, 10)}
	o := newTestOrchestrator(t, ing, WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	docs := []types.Document{textDoc("a.txt", "Golang"), textDoc("b.txt", "Golang"), textDoc("c.txt", "Golang")}
	run, err := o.Submit(ctx, BatchInput{Documents: docs, JobDescription: backendJD})
	require.NoError(t, err)

	<-ing.started
	cancel()
	close(ing.block)
	waitRun(t, run)

	assert.Equal(t, types.BatchCancelled, run.Status())
	results := run.Results()
	assert.False(t, results[0].Failed())
	assert.Equal(t, types.KindCancelled, *results[1].Error)
	assert.Equal(t, types.KindCancelled, *results[2].Error)
}

func TestRunUsesProfileCache(t *testing.T) {
	cache := newMemoryCache()
	o := newTestOrchestrator(t, &fakeIngestor{}, WithProfileCache(cache), WithWorkers(1))

	docs := []types.Document{
		textDoc("a.txt", "Golang developer, 5 years of experience"),
		textDoc("b.txt", "Golang developer, 5 years of experience"),
	}
	run, err := o.Run(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD})
	require.NoError(t, err)

	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.hits, "相同文本第二次应命中缓存")
	results := run.Results()
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Contains(t, cache.entries, TextHash("Golang developer, 5 years of experience"))
}

func TestRunToleratesCacheErrors(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	o := newTestOrchestrator(t, &fakeIngestor{}, WithProfileCache(cache))

	run, err := o.Run(context.Background(), BatchInput{
		Documents:      []types.Document{textDoc("a.txt", "Golang, Docker and PostgreSQL")},
		JobDescription: backendJD,
	})
	require.NoError(t, err)
	res := run.Results()[0]
	assert.False(t, res.Failed())
	assert.Equal(t, types.SkillSet{"docker", "golang", "postgresql"}, res.MatchedSkills)
}

func TestRunPublishesEvents(t *testing.T) {
	t.Run("只发布汇总", func(t *testing.T) {
		pub := &recordingPublisher{}
		o := newTestOrchestrator(t, &fakeIngestor{}, WithEventPublisher(pub))
		run, err := o.Run(context.Background(), BatchInput{
			Documents:      []types.Document{textDoc("a.txt", "Golang"), textDoc("b.txt", "Docker")},
			JobDescription: backendJD,
		})
		require.NoError(t, err)

		assert.Empty(t, pub.progress)
		require.Len(t, pub.summaries, 1)
		summary := pub.summaries[0]
		assert.Equal(t, run.ID(), summary.RunID)
		assert.Equal(t, types.BatchCompleted, summary.Status)
		assert.Equal(t, 100, summary.Progress)
		assert.Len(t, summary.Results, 2)
		assert.Equal(t, run.Summary(), summary)
	})

	t.Run("发布逐条进度", func(t *testing.T) {
		pub := &recordingPublisher{}
		o := newTestOrchestrator(t, &fakeIngestor{}, WithEventPublisher(pub), WithPublishProgress(true))
		_, err := o.Run(context.Background(), BatchInput{
			Documents:      []types.Document{textDoc("a.txt", "Golang"), textDoc("b.txt", "Docker")},
			JobDescription: backendJD,
		})
		require.NoError(t, err)

		// 两个阶段开始事件 + 每阶段两条完成事件，终止事件只通过汇总发布
		require.Len(t, pub.progress, 6)
		for _, e := range pub.progress {
			assert.False(t, e.Phase.Terminal())
		}
		assert.Len(t, pub.summaries, 1)
	})
}

func TestListenerPanicDoesNotBreakRun(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{})
	var calls atomic.Int32
	run, err := o.Run(context.Background(), BatchInput{
		Documents:      []types.Document{textDoc("a.txt", "Golang")},
		JobDescription: backendJD,
	}, WithProgressListener(func(types.ProgressEvent) {
		calls.Add(1)
		panic("listener bug")
	}))
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, run.Status())
	assert.Greater(t, calls.Load(), int32(1))
}

func TestSnapshot(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{})
	run, err := o.Run(context.Background(), BatchInput{
		Documents:      []types.Document{textDoc("a.txt", "Golang")},
		JobDescription: backendJD,
	})
	require.NoError(t, err)

	s := run.Snapshot()
	assert.Equal(t, run.ID(), s.ID)
	assert.Equal(t, types.BatchCompleted, s.Status)
	assert.Equal(t, 1, s.Total)
	require.NotNil(t, s.FinishedAt)
	assert.False(t, s.FinishedAt.Before(s.SubmittedAt))

	// 快照中的结果是副本
	s.Results[0].Score = -1
	assert.NotEqual(t, -1, run.Results()[0].Score)
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	o := newTestOrchestrator(t, &fakeIngestor{}, WithWorkers(3))

	var wg sync.WaitGroup
	runs := make([]*BatchRun, 8)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docs := make([]types.Document, i+1)
			for j := range docs {
				docs[j] = textDoc(fmt.Sprintf("run%d-doc%d.txt", i, j), "Golang and Docker")
			}
			run, err := o.Run(context.Background(), BatchInput{Documents: docs, JobDescription: backendJD})
			if assert.NoError(t, err) {
				runs[i] = run
			}
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, run := range runs {
		require.NotNil(t, run)
		assert.False(t, ids[run.ID()], "批处理ID必须唯一")
		ids[run.ID()] = true
		assert.Len(t, run.Results(), i+1)
		assert.Equal(t, types.BatchCompleted, run.Status())
	}
}

package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-matcher/internal/config"
	"resume-matcher/internal/tracing"
	"resume-matcher/internal/types"
)

// BatchInput 一次批处理的输入。Requirement 与 JobDescription 必须且只能提供一个
type BatchInput struct {
	Documents      []types.Document
	Requirement    *types.JobRequirement
	JobDescription string
}

// Orchestrator 批处理编排器：对每个文档依次执行 摄取 -> 提取 -> 评分
type Orchestrator struct {
	ingestor  TextIngestor
	extractor AttributeExtractor
	scorer    MatchScorer

	workers         int
	cache           ProfileCache
	publisher       EventPublisher
	publishProgress bool
	tracer          trace.Tracer
	logger          *zerolog.Logger
}

// New 创建编排器，三个核心组件都不能为 nil
func New(ingestor TextIngestor, extractor AttributeExtractor, scorer MatchScorer, opts ...Option) (*Orchestrator, error) {
	switch {
	case ingestor == nil:
		return nil, ErrIngestorNotInit
	case extractor == nil:
		return nil, ErrExtractorNotInit
	case scorer == nil:
		return nil, ErrScorerNotInit
	}

	o := &Orchestrator{
		ingestor:  ingestor,
		extractor: extractor,
		scorer:    scorer,
		workers:   config.DefaultWorkers,
		tracer:    otel.Tracer("processor"),
	}
	WithLogger(nil)(o)
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Workers 工作池大小
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Submit 校验输入并异步启动批处理。
// 只有 InvalidBatchInputError 会在这里返回，文档级的失败都记录在结果中。
// 取消 ctx 与调用 BatchRun.Cancel 效果相同
func (o *Orchestrator) Submit(ctx context.Context, input BatchInput, opts ...RunOption) (*BatchRun, error) {
	req, err := o.resolveRequirement(input)
	if err != nil {
		return nil, err
	}

	settings := runSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	// V7 按时间有序，便于在日志和消息队列中排序
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成批处理ID失败: %w", err)
	}
	run := newBatchRun(id.String(), input.Documents, req, o, settings)
	runCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel

	o.logger.Info().
		Str("run_id", run.id).
		Int("documents", len(run.docs)).
		Int("workers", o.workers).
		Msg("批处理已提交")

	go run.collect(runCtx)
	go run.execute(runCtx)
	return run, nil
}

// Run 同步执行批处理，等价于 Submit 后等待结束
func (o *Orchestrator) Run(ctx context.Context, input BatchInput, opts ...RunOption) (*BatchRun, error) {
	run, err := o.Submit(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	<-run.Done()
	return run, nil
}

// resolveRequirement 校验输入并确定岗位要求
func (o *Orchestrator) resolveRequirement(input BatchInput) (types.JobRequirement, error) {
	if len(input.Documents) == 0 {
		return types.JobRequirement{}, types.NewInvalidBatchInputError("document list is empty")
	}
	hasText := strings.TrimSpace(input.JobDescription) != ""
	switch {
	case input.Requirement == nil && !hasText:
		return types.JobRequirement{}, types.NewInvalidBatchInputError("either a job requirement or a job description is required")
	case input.Requirement != nil && hasText:
		return types.JobRequirement{}, types.NewInvalidBatchInputError("job requirement and job description are mutually exclusive")
	case input.Requirement != nil:
		if input.Requirement.MinExperienceYears < 0 {
			return types.JobRequirement{}, types.NewInvalidBatchInputError("min experience years must not be negative")
		}
		return input.Requirement.Normalized(), nil
	default:
		return o.extractor.ExtractRequirement(input.JobDescription), nil
	}
}

// startSpan 创建批处理或文档级别的 span
func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func documentAttrs(runID string, index int, doc types.Document) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("run_id", runID),
		attribute.Int("document.index", index),
		attribute.String("document.name", tracing.SafeAttributeValue("document.name", doc.Name, tracing.DefaultMaxLength)),
		attribute.String("document.format", doc.Format),
		attribute.Int("document.size", len(doc.Content)),
	}
}

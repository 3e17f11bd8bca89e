package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"resume-matcher/internal/extractor"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/processor"
	"resume-matcher/internal/storage"
	"resume-matcher/internal/types"
)

// 表单字段
const (
	FieldFiles          = "files"
	FieldTemplate       = "template"
	FieldJobDescription = "job_description"
	FieldRequirement    = "requirement" // JSON 格式的 JobRequirement
	FieldPrefix         = "prefix"      // 从对象存储读取 prefix 下的全部文档
)

// SummaryStore 已结束批次的汇总存储，进程重启后仍可查询
type SummaryStore interface {
	GetSummary(ctx context.Context, runID string) (*types.BatchSummary, error)
}

// HealthChecker 外部依赖连通性检查
type HealthChecker interface {
	Ping(ctx context.Context) map[string]error
}

// MatchHandler 匹配接口。文档库、汇总存储和健康检查都是可选的
type MatchHandler struct {
	orch      *processor.Orchestrator
	extractor *extractor.Extractor
	registry  *processor.Registry
	documents storage.DocumentStore
	summaries SummaryStore
	health    HealthChecker
	logger    *zerolog.Logger
}

// Option MatchHandler 选项
type Option func(*MatchHandler)

// WithDocumentStore 启用对象存储：上传的文档会被保存，也可以按 prefix 发起批处理
func WithDocumentStore(store storage.DocumentStore) Option {
	return func(h *MatchHandler) {
		h.documents = store
	}
}

// WithSummaryStore 内存中找不到批次时回退到汇总存储
func WithSummaryStore(store SummaryStore) Option {
	return func(h *MatchHandler) {
		h.summaries = store
	}
}

// WithHealthChecker 设置健康检查
func WithHealthChecker(checker HealthChecker) Option {
	return func(h *MatchHandler) {
		h.health = checker
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(h *MatchHandler) {
		h.logger = logger.OrNop(l)
	}
}

// NewMatchHandler 创建 MatchHandler
func NewMatchHandler(orch *processor.Orchestrator, ext *extractor.Extractor, registry *processor.Registry, opts ...Option) (*MatchHandler, error) {
	if orch == nil || ext == nil || registry == nil {
		return nil, errors.New("orchestrator, extractor and registry are required")
	}
	h := &MatchHandler{
		orch:      orch,
		extractor: ext,
		registry:  registry,
		logger:    logger.OrNop(nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// SubmitResponse 异步提交的响应
type SubmitResponse struct {
	RunID  string            `json:"run_id"`
	Status types.BatchStatus `json:"status"`
	Total  int               `json:"total"`
}

// TemplateResponse 模板及其解析出的岗位要求
type TemplateResponse struct {
	extractor.JobTemplate
	Requirement types.JobRequirement `json:"requirement"`
}

// HandleMatch 同步匹配，请求结束前返回全部结果
// POST /api/v1/match
func (h *MatchHandler) HandleMatch(ctx context.Context, c *app.RequestContext) {
	input, ok := h.bindInput(ctx, c)
	if !ok {
		return
	}

	run, err := h.orch.Run(ctx, input)
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}
	h.registry.Add(run)
	c.JSON(consts.StatusOK, run.Snapshot())
}

// HandleSubmitBatch 异步提交批处理，立即返回 run_id
// POST /api/v1/batches
func (h *MatchHandler) HandleSubmitBatch(ctx context.Context, c *app.RequestContext) {
	input, ok := h.bindInput(ctx, c)
	if !ok {
		return
	}

	// 批处理的生命周期与本次请求无关，只保留 trace 信息
	run, err := h.orch.Submit(context.WithoutCancel(ctx), input)
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}
	h.registry.Add(run)

	if h.documents != nil && c.PostForm(FieldPrefix) == "" {
		h.archiveUploads(ctx, run.ID(), input.Documents)
	}

	c.JSON(consts.StatusAccepted, SubmitResponse{
		RunID:  run.ID(),
		Status: run.Status(),
		Total:  run.Total(),
	})
}

// HandleGetBatch 查询批处理状态与结果
// GET /api/v1/batches/:id
func (h *MatchHandler) HandleGetBatch(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	run, err := h.registry.Get(id)
	if err == nil {
		c.JSON(consts.StatusOK, run.Snapshot())
		return
	}

	if h.summaries != nil {
		summary, sErr := h.summaries.GetSummary(ctx, id)
		if sErr == nil {
			c.JSON(consts.StatusOK, summary)
			return
		}
		if !errors.Is(sErr, storage.ErrNotFound) {
			h.logger.Warn().Err(sErr).Str("run_id", id).Msg("读取批处理汇总失败")
		}
	}
	c.JSON(consts.StatusNotFound, utils.H{"error": fmt.Sprintf("batch %s not found", id)})
}

// HandleListBatches 列出内存中的批处理，最新的在前
// GET /api/v1/batches
func (h *MatchHandler) HandleListBatches(ctx context.Context, c *app.RequestContext) {
	runs := h.registry.List()
	out := make([]SubmitResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, SubmitResponse{RunID: run.ID(), Status: run.Status(), Total: run.Total()})
	}
	c.JSON(consts.StatusOK, utils.H{"batches": out})
}

// HandleCancelBatch 取消批处理。已开始的文档仍会完成
// DELETE /api/v1/batches/:id
func (h *MatchHandler) HandleCancelBatch(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	run, err := h.registry.Get(id)
	if err != nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": fmt.Sprintf("batch %s not found", id)})
		return
	}
	run.Cancel()
	h.logger.Info().Str("run_id", id).Msg("批处理取消请求已受理")
	c.JSON(consts.StatusAccepted, SubmitResponse{RunID: id, Status: run.Status(), Total: run.Total()})
}

// HandleListTemplates 返回内置岗位模板
// GET /api/v1/templates
func (h *MatchHandler) HandleListTemplates(ctx context.Context, c *app.RequestContext) {
	templates := extractor.Templates()
	out := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateResponse{JobTemplate: t, Requirement: h.extractor.RequirementFromTemplate(t)})
	}
	c.JSON(consts.StatusOK, utils.H{"templates": out})
}

// HandleHealth 健康检查，任一依赖不可用时返回 503
// GET /api/v1/health
func (h *MatchHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	components := utils.H{}
	healthy := true
	if h.health != nil {
		for name, err := range h.health.Ping(ctx) {
			if err != nil {
				healthy = false
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}
	}

	if !healthy {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"status": "degraded", "components": components})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "components": components, "workers": h.orch.Workers()})
}

// bindInput 从表单构造批处理输入，失败时已写入响应
func (h *MatchHandler) bindInput(ctx context.Context, c *app.RequestContext) (processor.BatchInput, bool) {
	var input processor.BatchInput

	docs, err := h.collectDocuments(ctx, c)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return input, false
	}
	input.Documents = docs

	templateSlug := strings.TrimSpace(c.PostForm(FieldTemplate))
	rawRequirement := strings.TrimSpace(c.PostForm(FieldRequirement))
	input.JobDescription = c.PostForm(FieldJobDescription)

	if templateSlug != "" && rawRequirement != "" {
		c.JSON(consts.StatusBadRequest, utils.H{
			"error": "template and requirement are mutually exclusive",
			"kind":  types.KindInvalidBatchInput,
		})
		return input, false
	}

	switch {
	case templateSlug != "":
		t, found := extractor.TemplateBySlug(templateSlug)
		if !found {
			c.JSON(consts.StatusBadRequest, utils.H{"error": fmt.Sprintf("unknown template %q", templateSlug)})
			return input, false
		}
		req := h.extractor.RequirementFromTemplate(t)
		input.Requirement = &req
	case rawRequirement != "":
		var req types.JobRequirement
		if err := json.Unmarshal([]byte(rawRequirement), &req); err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": fmt.Sprintf("invalid requirement: %v", err)})
			return input, false
		}
		// 画像中只有规范名，别名和大小写差异在这里统一
		req.RequiredSkills = h.extractor.CanonicalSkills(req.RequiredSkills...)
		req.NiceToHaveSkills = h.extractor.CanonicalSkills(req.NiceToHaveSkills...)
		input.Requirement = &req
	}
	return input, true
}

// collectDocuments 读取上传的文件，或在设置了 prefix 时从对象存储读取
func (h *MatchHandler) collectDocuments(ctx context.Context, c *app.RequestContext) ([]types.Document, error) {
	if prefix := strings.TrimSpace(c.PostForm(FieldPrefix)); prefix != "" {
		if h.documents == nil {
			return nil, errors.New("object storage is not configured")
		}
		return h.documents.FetchDocuments(ctx, prefix)
	}

	form, err := c.MultipartForm()
	if err != nil {
		// 非 multipart 请求交给编排器按空批次处理
		return nil, nil
	}
	headers := form.File[FieldFiles]
	docs := make([]types.Document, 0, len(headers))
	for _, fh := range headers {
		doc, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readUpload(fh *multipart.FileHeader) (types.Document, error) {
	file, err := fh.Open()
	if err != nil {
		return types.Document{}, fmt.Errorf("打开上传文件 %s 失败: %w", fh.Filename, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return types.Document{}, fmt.Errorf("读取上传文件 %s 失败: %w", fh.Filename, err)
	}

	format := filepath.Ext(fh.Filename)
	if format == "" {
		format = fh.Header.Get("Content-Type")
	}
	return types.Document{
		Name:    filepath.Base(fh.Filename),
		Format:  format,
		Content: content,
	}, nil
}

// archiveUploads 保存上传的原件，失败只记录日志
func (h *MatchHandler) archiveUploads(ctx context.Context, runID string, docs []types.Document) {
	for i, doc := range docs {
		key := fmt.Sprintf("runs/%s/%03d-%s", runID, i, doc.Name)
		if _, err := h.documents.PutDocument(ctx, key, doc); err != nil {
			h.logger.Warn().Err(err).Str("run_id", runID).Str("object", key).Msg("保存简历原件失败")
		}
	}
}

func (h *MatchHandler) writeSubmitError(c *app.RequestContext, err error) {
	if errors.Is(err, types.ErrInvalidBatchInput) {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error(), "kind": types.KindOf(err)})
		return
	}
	h.logger.Error().Err(err).Msg("提交批处理失败")
	c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
}

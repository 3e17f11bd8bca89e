package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"resume-matcher/internal/api/handler"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler) {
	api := h.Group("/api/v1")

	api.POST("/match", matchHandler.HandleMatch)

	api.POST("/batches", matchHandler.HandleSubmitBatch)
	api.GET("/batches", matchHandler.HandleListBatches)
	api.GET("/batches/:id", matchHandler.HandleGetBatch)
	api.DELETE("/batches/:id", matchHandler.HandleCancelBatch)

	api.GET("/templates", matchHandler.HandleListTemplates)

	// 添加健康检查
	api.GET("/health", matchHandler.HandleHealth)
}

// NewServer 创建带链路追踪和访问日志的 Hertz 实例
func NewServer(address string, maxUploadMB int, opts ...hertztracing.Option) *server.Hertz {
	tracer, tracingCfg := hertztracing.NewServerTracer(opts...)
	h := server.New(
		tracer,
		server.WithHostPorts(address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(maxUploadMB<<20),
	)
	h.Use(hertztracing.ServerMiddleware(tracingCfg))
	h.Use(accessLog)
	return h
}

func accessLog(c context.Context, ctx *app.RequestContext) {
	hlog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
	ctx.Next(c)
	hlog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
}

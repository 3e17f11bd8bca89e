package main

import (
	"context"
	"fmt"
	"time"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"

	"resume-matcher/internal/api/handler"
	"resume-matcher/internal/api/router"
	appLogger "resume-matcher/internal/logger"
	"resume-matcher/internal/outbox"
	"resume-matcher/internal/processor"
)

// serve 启动 HTTP 服务，ctx 结束后优雅退出
func (a *application) serve(ctx context.Context) error {
	registry := processor.NewRegistry(time.Duration(a.cfg.Server.RunRetentionMins) * time.Minute)

	opts := []handler.Option{
		handler.WithLogger(appLogger.Component("api")),
		handler.WithHealthChecker(a.store),
	}
	if a.store.MinIO != nil {
		opts = append(opts, handler.WithDocumentStore(a.store.MinIO))
	}
	if a.store.Redis != nil {
		opts = append(opts, handler.WithSummaryStore(a.store.Redis))
	}
	matchHandler, err := handler.NewMatchHandler(a.orch, a.extractor, registry, opts...)
	if err != nil {
		return fmt.Errorf("初始化MatchHandler失败: %w", err)
	}

	h := router.NewServer(a.cfg.Server.Address, a.cfg.Server.MaxUploadMB)
	router.RegisterRoutes(h, matchHandler)
	glog.Info("HTTP路由注册成功")

	// 重新发布发件箱中的汇总事件
	if relay := a.store.MessageRelay(outbox.WithLogger(appLogger.Component("outbox"))); relay != nil {
		relay.Start()
		defer relay.Stop()
	}

	// 定期清理过期的批次
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.Prune(); n > 0 {
					glog.Debugf("已清理 %d 个过期批次", n)
				}
			}
		}
	}()

	glog.Infof("HTTP 服务器启动中，监听地址: %s", a.cfg.Server.Address)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动HTTP服务器失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	glog.Info("优雅退出完成")
	return nil
}

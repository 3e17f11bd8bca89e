package processor

import (
	"errors"
)

// 组件未初始化等编程错误，与文档级错误不同，它们会直接返回给调用方
var (
	ErrIngestorNotInit  = errors.New("ingestor is not initialized")  // 摄取器未初始化
	ErrExtractorNotInit = errors.New("extractor is not initialized") // 提取器未初始化
	ErrScorerNotInit    = errors.New("scorer is not initialized")    // 评分器未初始化
	ErrRunNotFound      = errors.New("batch run not found")          // 批处理不存在或已过期
)

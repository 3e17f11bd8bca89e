package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ProfileModulePrefix 候选人画像模块
	ProfileModulePrefix = "profile"
	// BatchModulePrefix 批处理模块
	BatchModulePrefix = "batch"

	// EntityCache 缓存实体
	EntityCache = "cache"
	// EntitySummary 汇总实体
	EntitySummary = "summary"
	// EntityOutbox 发件箱实体
	EntityOutbox = "outbox"

	// KeyProfileCache 按文本哈希缓存的画像 (STRING, JSON)
	// 格式: app:profile:cache:{sha256}
	KeyProfileCache = AppPrefix + ":" + ProfileModulePrefix + ":" + EntityCache + ":%s"

	// KeyBatchSummary 已结束批处理的汇总 (STRING, JSON)
	// 格式: app:batch:summary:{runID}
	KeyBatchSummary = AppPrefix + ":" + BatchModulePrefix + ":" + EntitySummary + ":%s"

	// KeyOutboxPending 发布失败、等待重试的批处理事件 (LIST, JSON)
	KeyOutboxPending = AppPrefix + ":" + BatchModulePrefix + ":" + EntityOutbox + ":pending"

	// KeyOutboxFailed 超过重试次数的事件，保留以便人工排查 (LIST, JSON)
	KeyOutboxFailed = AppPrefix + ":" + BatchModulePrefix + ":" + EntityOutbox + ":failed"
)

package tracing

import (
	"slices"
	"strings"
)

const (
	// DefaultMaxLength span 属性值的最大长度
	DefaultMaxLength = 200

	// MaxRedisLength 写入 span 的 Redis 键最大长度
	MaxRedisLength = 100
)

// piiFields 属性键最后一段命中时按个人信息掩码。简历文件名通常就是候选人姓名
var piiFields = []string{"name", "email", "phone", "address", "姓名", "电话"}

// SafeAttributeValue 个人信息掩码，其余值按 maxLength 截断
func SafeAttributeValue(key, value string, maxLength int) string {
	field := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		field = key[i+1:]
	}
	if slices.Contains(piiFields, strings.ToLower(field)) {
		return MaskPII(value)
	}
	return TruncateString(value, maxLength)
}

// MaskPII 只保留首尾字符："张三" -> "张*"，"王小明" -> "王*明"，
// "zhangsan_cv.pdf" -> "zh***********df"
func MaskPII(value string) string {
	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 0:
		return ""
	case n <= 2:
		return string(runes[:n-1]) + "*"
	}
	keep := 1
	if n > 4 {
		keep = 2
	}
	return string(runes[:keep]) + strings.Repeat("*", n-2*keep) + string(runes[n-keep:])
}

// TruncateString 超长时省略中间部分，保留扩展名等尾部信息
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	head := (maxLength - 2) / 2
	tail := maxLength - 3 - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}

// SafeRedisKey 截断过长的 Redis 键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

package types

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Document 上传的原始简历文档，进入流水线后不再修改
type Document struct {
	Name    string `json:"name"`
	Format  string `json:"format"` // 扩展名或MIME类型，例如 "pdf"、".docx"、"text/plain"
	Content []byte `json:"-"`
}

// EducationLevel 学历等级，按顺序可比较
type EducationLevel int

const (
	EducationNone EducationLevel = iota
	EducationBachelors
	EducationMasters
	EducationDoctorate
)

var educationNames = map[EducationLevel]string{
	EducationNone:      "none",
	EducationBachelors: "bachelors",
	EducationMasters:   "masters",
	EducationDoctorate: "doctorate",
}

func (l EducationLevel) String() string {
	if name, ok := educationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("education(%d)", int(l))
}

// ParseEducationLevel 将字符串解析为学历等级，大小写不敏感
func ParseEducationLevel(s string) (EducationLevel, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	if needle == "" {
		return EducationNone, nil
	}
	for level, name := range educationNames {
		if name == needle {
			return level, nil
		}
	}
	return EducationNone, fmt.Errorf("unknown education level %q", s)
}

func (l EducationLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *EducationLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseEducationLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// UnmarshalYAML 支持在配置文件中使用 "masters" 这样的写法
func (l *EducationLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	level, err := ParseEducationLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// SkillSet 规范化技能名集合。内部保持排序去重，保证输出顺序稳定
type SkillSet []string

// NewSkillSet 构建去重且排序的技能集合
func NewSkillSet(skills ...string) SkillSet {
	if len(skills) == 0 {
		return SkillSet{}
	}
	seen := make(map[string]struct{}, len(skills))
	out := make(SkillSet, 0, len(skills))
	for _, s := range skills {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Contains 不依赖集合是否已排序，字面量构造的集合同样适用
func (s SkillSet) Contains(skill string) bool {
	return slices.Contains(s, skill)
}

// Intersect 返回 s ∩ other
func (s SkillSet) Intersect(other SkillSet) SkillSet {
	out := SkillSet{}
	for _, skill := range s {
		if other.Contains(skill) {
			out = append(out, skill)
		}
	}
	return out
}

// Union 返回 s ∪ other
func (s SkillSet) Union(other SkillSet) SkillSet {
	merged := make([]string, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewSkillSet(merged...)
}

// Minus 返回 s − other
func (s SkillSet) Minus(other SkillSet) SkillSet {
	out := SkillSet{}
	for _, skill := range s {
		if !other.Contains(skill) {
			out = append(out, skill)
		}
	}
	return out
}

// With 返回追加了 skill 的新集合，原集合不变
func (s SkillSet) With(skill string) SkillSet {
	return s.Union(SkillSet{skill})
}

// ExtractedProfile 从简历文本中提取的结构化候选人画像
type ExtractedProfile struct {
	Skills          SkillSet       `json:"skills"`
	ExperienceYears *float64       `json:"experience_years"` // nil 表示未知
	EducationLevel  EducationLevel `json:"education_level"`
}

// HasExperience 是否检测到工作年限
func (p ExtractedProfile) HasExperience() bool {
	return p.ExperienceYears != nil
}

// Years 便捷构造年限指针
func Years(v float64) *float64 {
	return &v
}

// JobRequirement 岗位要求，批处理运行期间不可变
type JobRequirement struct {
	Title              string         `json:"title,omitempty"`
	RequiredSkills     SkillSet       `json:"required_skills"`
	NiceToHaveSkills   SkillSet       `json:"nice_to_have_skills"`
	MinExperienceYears float64        `json:"min_experience_years"`
	MinEducationLevel  EducationLevel `json:"min_education_level"`
}

// Normalized 返回技能集合排序去重后的副本
func (r JobRequirement) Normalized() JobRequirement {
	r.RequiredSkills = NewSkillSet(r.RequiredSkills...)
	r.NiceToHaveSkills = NewSkillSet(r.NiceToHaveSkills...)
	return r
}

// AllSkills required ∪ niceToHave
func (r JobRequirement) AllSkills() SkillSet {
	return r.RequiredSkills.Union(r.NiceToHaveSkills)
}

// MatchBand 分数区间，沿用前端的颜色阈值
type MatchBand string

const (
	BandHigh   MatchBand = "high"
	BandMedium MatchBand = "medium"
	BandLow    MatchBand = "low"
)

// MatchResult 单份文档的匹配结果，每个输入文档恰好对应一个
type MatchResult struct {
	SourceDocumentName string         `json:"source_document_name"`
	Score              int            `json:"score"`
	Band               MatchBand      `json:"band,omitempty"`
	MatchedSkills      SkillSet       `json:"matched_skills"`
	MissingSkills      SkillSet       `json:"missing_skills"`
	ExperienceYears    *float64       `json:"experience_years"`
	EducationLevel     EducationLevel `json:"education_level"`
	Error              *ErrorKind     `json:"error,omitempty"`
	ErrorDetail        string         `json:"error_detail,omitempty"`
}

// Failed 结果是否为失败记录
func (r *MatchResult) Failed() bool {
	return r != nil && r.Error != nil
}

// NewFailedResult 根据错误构造失败结果
func NewFailedResult(documentName string, err error) *MatchResult {
	kind := KindOf(err)
	return &MatchResult{
		SourceDocumentName: documentName,
		MatchedSkills:      SkillSet{},
		MissingSkills:      SkillSet{},
		Error:              &kind,
		ErrorDetail:        err.Error(),
	}
}

// BatchStatus 批处理状态机
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchUploading BatchStatus = "uploading"
	BatchAnalyzing BatchStatus = "analyzing"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// Terminal 是否为终止状态
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled
}

// ProgressEvent 进度事件，Phase 取值为 uploading / analyzing，终止事件使用终止状态
type ProgressEvent struct {
	RunID     string      `json:"run_id"`
	Phase     BatchStatus `json:"phase"`
	Percent   int         `json:"percent"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
}

// BatchSummary 批处理结束时对外发布的汇总
type BatchSummary struct {
	RunID    string         `json:"run_id"`
	Status   BatchStatus    `json:"status"`
	Progress int            `json:"progress"`
	Results  []*MatchResult `json:"results"`
}

package scoring

import (
	"fmt"
	"math"

	"resume-matcher/internal/config"
	"resume-matcher/internal/types"
)

// 分数区间阈值
const (
	HighBandThreshold   = 80
	MediumBandThreshold = 60
)

// Weights 三个维度的评分权重
type Weights struct {
	Skill      float64 `json:"skill"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
}

// DefaultWeights 默认权重 0.6 / 0.25 / 0.15
func DefaultWeights() Weights {
	return Weights(config.DefaultWeights())
}

// WeightsFromConfig 转换配置中的权重
func WeightsFromConfig(w config.WeightsConfig) Weights {
	return Weights(w)
}

// Validate 权重必须非负且之和为1
func (w Weights) Validate() error {
	return config.WeightsConfig(w).Validate()
}

// Breakdown 各维度的得分，取值 [0,1]
type Breakdown struct {
	SkillCoverage float64 `json:"skill_coverage"`
	ExperienceFit float64 `json:"experience_fit"`
	EducationFit  float64 `json:"education_fit"`
}

// Scorer 纯函数式的评分器，没有可变状态，可并发使用
type Scorer struct {
	weights         Weights
	niceToHaveBonus float64
	partialCredit   []float64
}

// Option 评分器的配置选项
type Option func(*Scorer)

// WithWeights 设置评分权重
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

// WithNiceToHaveBonus 每个命中的加分技能带来的技能覆盖率奖励
func WithNiceToHaveBonus(bonus float64) Option {
	return func(s *Scorer) {
		s.niceToHaveBonus = bonus
	}
}

// WithEducationPartialCredit 学历差 1 级、2 级...时的得分，未列出的级差得 0
func WithEducationPartialCredit(credit []float64) Option {
	return func(s *Scorer) {
		s.partialCredit = append([]float64(nil), credit...)
	}
}

// NewScorer 创建评分器，权重或参数非法时返回错误
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{
		weights:         DefaultWeights(),
		niceToHaveBonus: config.DefaultNiceToHaveBonus,
		partialCredit:   []float64{0.5},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	if s.niceToHaveBonus < 0 || s.niceToHaveBonus > 1 {
		return nil, fmt.Errorf("nice_to_have_bonus 必须在 [0,1] 之间，当前为 %v", s.niceToHaveBonus)
	}
	for _, c := range s.partialCredit {
		if c < 0 || c > 1 {
			return nil, fmt.Errorf("education_partial_credit 必须在 [0,1] 之间，当前为 %v", c)
		}
	}
	return s, nil
}

// NewScorerFromConfig 按引擎配置创建评分器
func NewScorerFromConfig(cfg config.EngineConfig) (*Scorer, error) {
	opts := []Option{
		WithWeights(WeightsFromConfig(cfg.Weights)),
		WithNiceToHaveBonus(cfg.NiceToHaveBonus),
	}
	if cfg.EducationPartialCredit != nil {
		opts = append(opts, WithEducationPartialCredit(cfg.EducationPartialCredit))
	}
	return NewScorer(opts...)
}

// Weights 当前使用的权重
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score 比较画像与岗位要求，生成匹配结果。相同输入总是得到相同输出
func (s *Scorer) Score(documentName string, profile types.ExtractedProfile, req types.JobRequirement) *types.MatchResult {
	profile, req = normalize(profile, req)
	b := s.breakdown(profile, req)
	raw := 100 * (s.weights.Skill*b.SkillCoverage + s.weights.Experience*b.ExperienceFit + s.weights.Education*b.EducationFit)
	score := int(math.Round(raw))
	score = max(0, min(100, score))

	return &types.MatchResult{
		SourceDocumentName: documentName,
		Score:              score,
		Band:               Band(score),
		MatchedSkills:      profile.Skills.Intersect(req.AllSkills()),
		MissingSkills:      req.RequiredSkills.Minus(profile.Skills),
		ExperienceYears:    profile.ExperienceYears,
		EducationLevel:     profile.EducationLevel,
	}
}

// Breakdown 计算各维度得分
func (s *Scorer) Breakdown(profile types.ExtractedProfile, req types.JobRequirement) Breakdown {
	return s.breakdown(normalize(profile, req))
}

// normalize 调用方可能直接用字面量构造技能集合，评分前统一排序去重
func normalize(profile types.ExtractedProfile, req types.JobRequirement) (types.ExtractedProfile, types.JobRequirement) {
	profile.Skills = types.NewSkillSet(profile.Skills...)
	return profile, req.Normalized()
}

func (s *Scorer) breakdown(profile types.ExtractedProfile, req types.JobRequirement) Breakdown {
	return Breakdown{
		SkillCoverage: s.skillCoverage(profile, req),
		ExperienceFit: experienceFit(profile.ExperienceYears, req.MinExperienceYears),
		EducationFit:  s.educationFit(profile.EducationLevel, req.MinEducationLevel),
	}
}

// skillCoverage 必需技能覆盖率，必需集合为空时为1；
// 每命中一个加分技能增加 niceToHaveBonus，上限为1
func (s *Scorer) skillCoverage(profile types.ExtractedProfile, req types.JobRequirement) float64 {
	coverage := 1.0
	if len(req.RequiredSkills) > 0 {
		coverage = float64(len(profile.Skills.Intersect(req.RequiredSkills))) / float64(len(req.RequiredSkills))
	}
	niceMatched := len(profile.Skills.Intersect(req.NiceToHaveSkills.Minus(req.RequiredSkills)))
	coverage += s.niceToHaveBonus * float64(niceMatched)
	return math.Min(coverage, 1)
}

// experienceFit 年限未知且有最低要求时按0年计算
func experienceFit(years *float64, minYears float64) float64 {
	y := 0.0
	if years != nil {
		y = *years
	}
	if y >= minYears {
		return 1
	}
	return clamp01(y / math.Max(1, minYears))
}

func (s *Scorer) educationFit(level, minLevel types.EducationLevel) float64 {
	if level >= minLevel {
		return 1
	}
	short := int(minLevel - level)
	if short-1 < len(s.partialCredit) {
		return s.partialCredit[short-1]
	}
	return 0
}

// Band 分数区间：>=80 high，>=60 medium，其余 low
func Band(score int) types.MatchBand {
	switch {
	case score >= HighBandThreshold:
		return types.BandHigh
	case score >= MediumBandThreshold:
		return types.BandMedium
	default:
		return types.BandLow
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

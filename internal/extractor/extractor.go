package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"resume-matcher/internal/config"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/types"
)

// maxPlausibleYears 超过该值的年限视为噪声（如 "2020 years"）
const maxPlausibleYears = 60

var (
	// "5 years"、"5+ yrs"、"3-5 years"、"over 10 years of experience"
	experiencePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*)?\+?\s*(?:years?|yrs?)\b`)
	// "five years"
	experienceWordPattern = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty)\s*\+?\s*(?:years?|yrs?)\b`)
	// "5年以上工作经验"、"3-5年经验"
	experienceCNPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:(?:-|–|~|到|至)\s*(\d+(?:\.\d+)?)\s*)?\+?\s*年(?:以上)?(?:的)?(?:工作|开发|相关|项目)?经验`)

	// 句子边界：换行，或句末标点后接空白
	sentenceBoundary = regexp.MustCompile(`[.!?;。！？；](?:\s+|$)`)
)

var numberWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8,
	"nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "fifteen": 15, "twenty": 20,
}

// Extractor 从纯文本中提取候选人画像与岗位要求
// 构造后只读，可被多个 worker 并发使用
type Extractor struct {
	skills    *phraseIndex[string]
	education *phraseIndex[types.EducationLevel]
	hedges    *phraseIndex[struct{}]
	logger    *zerolog.Logger
}

// Option 提取器的配置选项
type Option func(*Extractor)

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger.OrNop(l)
	}
}

// New 使用给定词表创建提取器
func New(tables Tables, opts ...Option) *Extractor {
	e := &Extractor{
		skills:    buildSkillIndex(tables.SkillAliases),
		education: buildEducationIndex(tables.EducationKeywords),
		hedges:    buildHedgeIndex(tables.HedgeMarkers),
		logger:    logger.OrNop(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefault 使用内置词表创建提取器
func NewDefault(opts ...Option) *Extractor {
	return New(DefaultTables(), opts...)
}

// NewFromConfig 将配置中的词表合并到内置词表后创建提取器
func NewFromConfig(cfg config.TablesConfig, opts ...Option) (*Extractor, error) {
	tables, err := MergeTables(DefaultTables(), cfg)
	if err != nil {
		return nil, err
	}
	return New(tables, opts...), nil
}

// ExtractProfile 提取候选人画像。不会失败：没有信号时年限为未知、学历为 None
func (e *Extractor) ExtractProfile(text string) types.ExtractedProfile {
	tokens := tokenize(text)

	var skills []string
	e.skills.scan(text, tokens, func(canonical string) {
		skills = append(skills, canonical)
	})

	profile := types.ExtractedProfile{
		Skills:         types.NewSkillSet(skills...),
		EducationLevel: e.highestEducation(text, tokens),
	}
	if years, ok := ParseExperienceYears(text); ok {
		profile.ExperienceYears = types.Years(years)
	}

	e.logger.Debug().
		Int("skills", len(profile.Skills)).
		Bool("experience_known", profile.HasExperience()).
		Str("education", profile.EducationLevel.String()).
		Msg("画像提取完成")
	return profile
}

// ExtractRequirement 从岗位描述中提取要求
// 技能所在句子（或行）含有 hedge 措辞时为加分项，否则为必需；两种都出现时按必需处理。
// 学历要求只看不含 hedge 措辞的句子。
// 以 hedge 措辞开头并以冒号结尾的标题行，会使其后的行都视为加分项，直到下一个标题行
func (e *Extractor) ExtractRequirement(text string) types.JobRequirement {
	var required, nice []string
	education := types.EducationNone

	hedgedSection := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isHeading(trimmed) {
			hedgedSection = e.hedges.contains(trimmed, tokenize(trimmed))
		}

		for _, sentence := range splitSentences(trimmed) {
			tokens := tokenize(sentence)
			hedged := hedgedSection || e.hedges.contains(sentence, tokens)
			if !hedged {
				education = max(education, e.highestEducation(sentence, tokens))
			}
			e.skills.scan(sentence, tokens, func(canonical string) {
				if hedged {
					nice = append(nice, canonical)
				} else {
					required = append(required, canonical)
				}
			})
		}
	}

	req := types.JobRequirement{
		RequiredSkills:    types.NewSkillSet(required...),
		MinEducationLevel: education,
	}
	req.NiceToHaveSkills = types.NewSkillSet(nice...).Minus(req.RequiredSkills)
	if years, ok := ParseExperienceYears(text); ok {
		req.MinExperienceYears = years
	}

	e.logger.Debug().
		Int("required", len(req.RequiredSkills)).
		Int("nice_to_have", len(req.NiceToHaveSkills)).
		Float64("min_experience", req.MinExperienceYears).
		Msg("岗位要求提取完成")
	return req
}

// CanonicalSkill 将技能表述映射为规范名；未知技能返回小写形式
func (e *Extractor) CanonicalSkill(surface string) string {
	if v, ok := e.skills.phrases[phraseKey(surface)]; ok {
		return v
	}
	for _, h := range e.skills.han {
		if h.needle == strings.ToLower(strings.TrimSpace(surface)) {
			return h.value
		}
	}
	return normalizeSkillName(surface)
}

// CanonicalSkills 逐个映射为规范名并排序去重，空白项被忽略
func (e *Extractor) CanonicalSkills(surfaces ...string) types.SkillSet {
	names := make([]string, 0, len(surfaces))
	for _, s := range surfaces {
		if name := e.CanonicalSkill(s); name != "" {
			names = append(names, name)
		}
	}
	return types.NewSkillSet(names...)
}

func (e *Extractor) highestEducation(text string, tokens []string) types.EducationLevel {
	level := types.EducationNone
	e.education.scan(text, tokens, func(l types.EducationLevel) {
		if l > level {
			level = l
		}
	})
	return level
}

// ParseExperienceYears 解析文本中出现的最大工作年限
// 区间（"3-5 years"）取下限；超过 60 年的数值忽略
func ParseExperienceYears(text string) (float64, bool) {
	best, found := 0.0, false
	consider := func(v float64) {
		if v < 0 || v > maxPlausibleYears {
			return
		}
		if !found || v > best {
			best, found = v, true
		}
	}

	lower := strings.ToLower(text)
	for _, m := range experiencePattern.FindAllStringSubmatchIndex(lower, -1) {
		// "18 years old" 是年龄
		if strings.HasPrefix(strings.TrimSpace(lower[m[1]:]), "old") {
			continue
		}
		if v, err := strconv.ParseFloat(lower[m[2]:m[3]], 64); err == nil {
			consider(v)
		}
	}
	for _, m := range experienceWordPattern.FindAllStringSubmatch(lower, -1) {
		consider(numberWords[m[1]])
	}
	for _, m := range experienceCNPattern.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			consider(v)
		}
	}
	return best, found
}

func splitSentences(line string) []string {
	parts := sentenceBoundary.Split(line, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// isHeading "Nice to have:"、"Requirements:" 这样以冒号结尾的短行
func isHeading(line string) bool {
	if !strings.HasSuffix(line, ":") && !strings.HasSuffix(line, "：") {
		return false
	}
	return len(tokenize(line)) <= 6
}

package extractor

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"resume-matcher/internal/config"
	"resume-matcher/internal/types"
)

// Tables 提取器使用的词表
type Tables struct {
	// SkillAliases 规范技能名 -> 别名。规范名本身总是会被匹配
	SkillAliases map[string][]string
	// EducationKeywords 学历等级 -> 关键词
	EducationKeywords map[types.EducationLevel][]string
	// HedgeMarkers 表示"加分项"的措辞
	HedgeMarkers []string
}

// DefaultTables 内置词表，覆盖岗位模板中出现的全部技能
func DefaultTables() Tables {
	return Tables{
		SkillAliases: map[string][]string{
			// 前端
			"javascript": {"js", "ecmascript", "es6", "es2015"},
			"typescript": {"ts"},
			"react":      {"react.js", "reactjs", "react js"},
			"redux":      {"redux toolkit", "rtk"},
			"vue":        {"vue.js", "vuejs"},
			"angular":    {"angularjs", "angular.js"},
			"graphql":    {"graph ql"},
			"html":       {"html5"},
			"css":        {"css3", "scss", "sass"},
			// 后端
			"nodejs":        {"node.js", "node", "node js"},
			"express":       {"express.js", "expressjs"},
			"java":          {"java se", "java ee"},
			"spring boot":   {"springboot", "spring-boot"},
			"golang":        {"go lang", "go language"},
			"python":        {"python3", "py"},
			"c++":           {"cpp"},
			"c#":            {"csharp", "c sharp"},
			"rest":          {"restful", "restful api", "restful apis", "rest api", "rest apis"},
			"microservices": {"microservice", "micro-services", "micro services"},
			// 数据存储
			"sql":        {"t-sql", "pl/sql"},
			"mysql":      {"my sql"},
			"postgresql": {"postgres"},
			"mongodb":    {"mongo"},
			"redis":      {},
			// 运维与云
			"docker":                 {"dockerfile"},
			"kubernetes":             {"k8s"},
			"aws":                    {"amazon web services"},
			"gcp":                    {"google cloud", "google cloud platform"},
			"azure":                  {"microsoft azure"},
			"ci/cd":                  {"cicd", "ci cd", "continuous integration", "continuous delivery", "continuous deployment"},
			"infrastructure as code": {"iac", "terraform"},
			"linux":                  {},
			"git":                    {"github", "gitlab"},
			// 数据科学
			"r":                  {"r language", "rstudio"},
			"machine learning":   {"ml"},
			"data visualization": {"data visualisation", "dataviz", "tableau", "power bi"},
			"data analysis":      {"data analytics", "data analyst"},
			"pandas":             {},
			"tensorflow":         {},
			"pytorch":            {},
			// 设计
			"figma":          {},
			"ui design":      {"ui", "user interface design", "visual design"},
			"user research":  {"usability testing", "user interviews"},
			"prototyping":    {"prototype", "prototypes", "wireframing", "wireframes"},
			"design systems": {"design system"},
			// 产品
			"agile":            {"scrum", "kanban"},
			"product strategy": {},
			"roadmapping":      {"roadmap", "roadmaps", "product roadmap"},
			"user stories":     {"user story"},
		},
		EducationKeywords: map[types.EducationLevel][]string{
			types.EducationBachelors: {
				"bachelor", "bachelors", "bachelor's", "b.s.", "b.sc", "bsc", "b.a.", "b.eng", "beng",
				"b.tech", "btech", "undergraduate degree", "本科", "学士",
			},
			types.EducationMasters: {
				"masters", "master's", "master of", "master degree", "m.s.", "m.sc", "msc", "mba",
				"m.eng", "meng", "m.tech", "mtech", "硕士", "研究生",
			},
			types.EducationDoctorate: {
				"phd", "ph.d", "ph.d.", "doctorate", "doctoral", "doctor of philosophy", "博士",
			},
		},
		HedgeMarkers: []string{
			"nice to have", "nice-to-have", "preferred", "preferably", "bonus", "plus",
			"desirable", "optional", "加分", "优先",
		},
	}
}

// MergeTables 将配置中的词表合并到 base 之上，返回新的词表
// 同一规范名的别名追加；学历关键词按等级追加；hedge 措辞去重追加
func MergeTables(base Tables, cfg config.TablesConfig) (Tables, error) {
	merged := Tables{
		SkillAliases:      make(map[string][]string, len(base.SkillAliases)+len(cfg.SkillAliases)),
		EducationKeywords: make(map[types.EducationLevel][]string, len(base.EducationKeywords)),
		HedgeMarkers:      slices.Clone(base.HedgeMarkers),
	}
	for canonical, aliases := range base.SkillAliases {
		merged.SkillAliases[canonical] = slices.Clone(aliases)
	}
	for level, keywords := range base.EducationKeywords {
		merged.EducationKeywords[level] = slices.Clone(keywords)
	}

	for canonical, aliases := range cfg.SkillAliases {
		name := normalizeSkillName(canonical)
		if name == "" {
			return Tables{}, fmt.Errorf("skill_aliases 中存在空的技能名")
		}
		merged.SkillAliases[name] = append(merged.SkillAliases[name], aliases...)
	}
	for levelName, keywords := range cfg.EducationKeywords {
		level, err := types.ParseEducationLevel(levelName)
		if err != nil {
			return Tables{}, fmt.Errorf("education_keywords: %w", err)
		}
		if level == types.EducationNone {
			return Tables{}, fmt.Errorf("education_keywords: 不能为 none 等级配置关键词")
		}
		merged.EducationKeywords[level] = append(merged.EducationKeywords[level], keywords...)
	}
	for _, marker := range cfg.HedgeMarkers {
		if !slices.Contains(merged.HedgeMarkers, marker) {
			merged.HedgeMarkers = append(merged.HedgeMarkers, marker)
		}
	}
	return merged, nil
}

// normalizeSkillName 规范技能名：小写并合并空白
func normalizeSkillName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// buildSkillIndex 按规范名排序注册，保证别名冲突时结果确定
func buildSkillIndex(aliases map[string][]string) *phraseIndex[string] {
	index := newPhraseIndex[string]()
	for _, canonical := range slices.Sorted(maps.Keys(aliases)) {
		name := normalizeSkillName(canonical)
		index.add(name, name)
		for _, alias := range aliases[canonical] {
			index.add(alias, name)
		}
	}
	return index
}

func buildEducationIndex(keywords map[types.EducationLevel][]string) *phraseIndex[types.EducationLevel] {
	index := newPhraseIndex[types.EducationLevel]()
	for _, level := range slices.Sorted(maps.Keys(keywords)) {
		for _, kw := range keywords[level] {
			index.add(kw, level)
		}
	}
	return index
}

func buildHedgeIndex(markers []string) *phraseIndex[struct{}] {
	index := newPhraseIndex[struct{}]()
	for _, m := range markers {
		index.add(m, struct{}{})
	}
	return index
}

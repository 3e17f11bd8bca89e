package extractor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher/internal/config"
	"resume-matcher/internal/types"
)

const sampleResume = `Jane Doe
Senior Software Engineer

Summary: 6+ years of experience building web applications with React.js, Node.js and TypeScript.
Previously 3 years at Acme using JS, Docker and K8s on Amazon Web Services.

Education
M.Sc. Computer Science, 2015
Bachelor of Engineering, 2013

Skills: C++, C#, GraphQL, CI/CD, machine learning`

func TestExtractProfile(t *testing.T) {
	e := NewDefault()
	profile := e.ExtractProfile(sampleResume)

	assert.Equal(t, types.NewSkillSet(
		"react", "nodejs", "typescript", "javascript", "docker", "kubernetes", "aws",
		"c++", "c#", "graphql", "ci/cd", "machine learning",
	), profile.Skills)
	require.True(t, profile.HasExperience())
	assert.Equal(t, 6.0, *profile.ExperienceYears, "应取最大年限")
	assert.Equal(t, types.EducationMasters, profile.EducationLevel, "最高学历优先")
}

func TestExtractProfileWholeWord(t *testing.T) {
	e := NewDefault()

	tests := []struct {
		name string
		text string
		want types.SkillSet
	}{
		{"java inside javascript", "Expert in JavaScript", types.NewSkillSet("javascript")},
		{"java alone", "Java, Spring-Boot and MySQL", types.NewSkillSet("java", "spring boot", "mysql")},
		{"case insensitive", "PYTHON and python3 and Python", types.NewSkillSet("python")},
		{"trailing punctuation", "I write Go lang. And React.", types.NewSkillSet("golang", "react")},
		{"c family", "C, C++ and C# developer", types.NewSkillSet("c++", "c#")},
		{"sql not in mysql", "MySQL DBA", types.NewSkillSet("mysql")},
		{"r not in r&d", "Led the R&D team", types.NewSkillSet()},
		{"no signal", "Hello world", types.NewSkillSet()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractProfile(tt.text).Skills)
		})
	}
}

func TestExtractProfileUnknowns(t *testing.T) {
	profile := NewDefault().ExtractProfile("Enthusiastic engineer who loves clean code.")
	assert.Nil(t, profile.ExperienceYears, "无年限信息时应为未知")
	assert.Equal(t, types.EducationNone, profile.EducationLevel)
	assert.NotNil(t, profile.Skills)
	assert.Empty(t, profile.Skills)
}

func TestExtractProfileChinese(t *testing.T) {
	profile := NewDefault().ExtractProfile("张三，硕士学历，5年以上工作经验，熟悉 Golang、Redis 与 Kubernetes")
	assert.Equal(t, types.EducationMasters, profile.EducationLevel)
	require.NotNil(t, profile.ExperienceYears)
	assert.Equal(t, 5.0, *profile.ExperienceYears)
	assert.Equal(t, types.NewSkillSet("golang", "redis", "kubernetes"), profile.Skills)
}

func TestParseExperienceYears(t *testing.T) {
	tests := []struct {
		text  string
		want  float64
		found bool
	}{
		{"5 years", 5, true},
		{"5+ yrs of experience", 5, true},
		{"over 10 years in industry", 10, true},
		{"1 year", 1, true},
		{"2.5 years", 2.5, true},
		{"3-5 years of experience", 3, true},
		{"3 to 5 years", 3, true},
		{"five years of Python", 5, true},
		{"2 years here, 7 years there", 7, true},
		{"I am 25 years old", 0, false},
		{"in 2020 years ago", 0, false},
		{"since 2019", 0, false},
		{"3年经验", 3, true},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, found := ParseExperienceYears(tt.text)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRequirement(t *testing.T) {
	e := NewDefault()
	text := `Senior Backend Engineer
We need 4+ years of professional experience with Java and Spring Boot.
You will design RESTful APIs on AWS. Kubernetes experience is a plus.
A Master's degree is preferred; a Bachelor's degree in CS is required.

Nice to have:
- GraphQL
- Docker

Requirements:
- MySQL`

	req := e.ExtractRequirement(text)
	assert.Equal(t, types.NewSkillSet("java", "spring boot", "rest", "aws", "mysql"), req.RequiredSkills)
	assert.Equal(t, types.NewSkillSet("kubernetes", "graphql", "docker"), req.NiceToHaveSkills)
	assert.Equal(t, 4.0, req.MinExperienceYears)
	assert.Equal(t, types.EducationBachelors, req.MinEducationLevel, "preferred 的学历不作为最低要求")
}

func TestExtractRequirementHedgedAndUnhedged(t *testing.T) {
	req := NewDefault().ExtractRequirement("Docker is preferred.\nYou must know Docker and Python.")
	assert.Equal(t, types.NewSkillSet("docker", "python"), req.RequiredSkills, "同时出现时按必需处理")
	assert.Empty(t, req.NiceToHaveSkills)
	assert.Equal(t, 0.0, req.MinExperienceYears, "没有年限时默认为0")
}

func TestExtractRequirementInvariants(t *testing.T) {
	e := NewDefault()
	for _, tmpl := range Templates() {
		req := e.ExtractRequirement(tmpl.Description)
		assert.Empty(t, req.RequiredSkills.Intersect(req.NiceToHaveSkills), tmpl.Slug)
		assert.GreaterOrEqual(t, req.MinExperienceYears, 0.0)
	}
}

func TestCanonicalSkills(t *testing.T) {
	e := NewDefault()
	got := e.CanonicalSkills("React.js", "JS", "  ", "K8s", "Rust", "reactjs")
	assert.Equal(t, types.SkillSet{"javascript", "kubernetes", "react", "rust"}, got)
	assert.Equal(t, types.SkillSet{}, e.CanonicalSkills())
}

func TestRequirementFromTemplate(t *testing.T) {
	e := NewDefault()

	tmpl, ok := TemplateBySlug("Senior-Frontend-Developer")
	require.True(t, ok)
	req := e.RequirementFromTemplate(tmpl)
	assert.Equal(t, "Senior Frontend Developer", req.Title)
	assert.Equal(t, types.NewSkillSet("react", "typescript", "redux", "nodejs", "aws", "graphql"), req.RequiredSkills)
	assert.Empty(t, req.NiceToHaveSkills)
	assert.Equal(t, 5.0, req.MinExperienceYears)
	assert.Equal(t, types.EducationNone, req.MinEducationLevel)

	tmpl, ok = TemplateBySlug("backend-developer")
	require.True(t, ok)
	req = e.RequirementFromTemplate(tmpl)
	assert.Equal(t, types.NewSkillSet("java", "spring boot", "mysql", "rest", "microservices"), req.RequiredSkills)
	assert.Equal(t, 2.0, req.MinExperienceYears)

	tmpl, ok = TemplateBySlug("devops-engineer")
	require.True(t, ok)
	req = e.RequirementFromTemplate(tmpl)
	assert.True(t, req.RequiredSkills.Contains("ci/cd"))
	assert.True(t, req.RequiredSkills.Contains("infrastructure as code"))

	_, ok = TemplateBySlug("astronaut")
	assert.False(t, ok)
}

func TestRequirementFromCustomTemplate(t *testing.T) {
	req := NewDefault().RequirementFromTemplate(JobTemplate{
		Title:      "Platform Engineer",
		Experience: "",
		KeySkills:  []string{"  Elixir ", "Node.js", "", "Nomad"},
	})
	assert.Equal(t, types.NewSkillSet("elixir", "nodejs", "nomad"), req.RequiredSkills, "未知技能保留小写形式")
	assert.Equal(t, 0.0, req.MinExperienceYears)
}

func TestTemplatesReturnsCopy(t *testing.T) {
	list := Templates()
	require.Len(t, list, 7)
	list[0].KeySkills[0] = "Cobol"

	again, _ := TemplateBySlug(list[0].Slug)
	assert.Equal(t, "React", again.KeySkills[0])
}

func TestNewFromConfig(t *testing.T) {
	e, err := NewFromConfig(config.TablesConfig{
		SkillAliases:      map[string][]string{"Elixir": {"ex", "phoenix framework"}},
		EducationKeywords: map[string][]string{"doctorate": {"dr. rer. nat"}},
		HedgeMarkers:      []string{"would be great"},
	})
	require.NoError(t, err)

	profile := e.ExtractProfile("Built services with the Phoenix framework. JS too.")
	assert.Equal(t, types.NewSkillSet("elixir", "javascript"), profile.Skills, "配置词表应合并到默认词表之上")

	req := e.ExtractRequirement("Elixir is required. Python would be great.")
	assert.Equal(t, types.NewSkillSet("elixir"), req.RequiredSkills)
	assert.Equal(t, types.NewSkillSet("python"), req.NiceToHaveSkills)

	_, err = NewFromConfig(config.TablesConfig{EducationKeywords: map[string][]string{"kindergarten": {"abc"}}})
	assert.Error(t, err)

	_, err = NewFromConfig(config.TablesConfig{EducationKeywords: map[string][]string{"none": {"dropout"}}})
	assert.Error(t, err)
}

func TestMergeTablesDoesNotMutateBase(t *testing.T) {
	base := DefaultTables()
	before := len(base.SkillAliases["react"])
	_, err := MergeTables(base, config.TablesConfig{SkillAliases: map[string][]string{"react": {"react native"}}})
	require.NoError(t, err)
	assert.Len(t, base.SkillAliases["react"], before)
}

func TestExtractorConcurrentUse(t *testing.T) {
	e := NewDefault()
	want := e.ExtractProfile(sampleResume)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, e.ExtractProfile(sampleResume))
		}()
	}
	wg.Wait()
}

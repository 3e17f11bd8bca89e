package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher/internal/config"
	"resume-matcher/internal/types"
)

func newTestScorer(t *testing.T, opts ...Option) *Scorer {
	t.Helper()
	s, err := NewScorer(opts...)
	require.NoError(t, err)
	return s
}

// 画像 {react, nodejs}, 5年, 本科；要求 {react, typescript, nodejs}, 3年, 本科
func TestScoreWorkedExample(t *testing.T) {
	s := newTestScorer(t)
	profile := types.ExtractedProfile{
		Skills:          types.NewSkillSet("react", "nodejs"),
		ExperienceYears: types.Years(5),
		EducationLevel:  types.EducationBachelors,
	}
	req := types.JobRequirement{
		RequiredSkills:     types.NewSkillSet("react", "typescript", "nodejs"),
		NiceToHaveSkills:   types.NewSkillSet(),
		MinExperienceYears: 3,
		MinEducationLevel:  types.EducationBachelors,
	}

	b := s.Breakdown(profile, req)
	assert.InDelta(t, 2.0/3.0, b.SkillCoverage, 1e-9)
	assert.Equal(t, 1.0, b.ExperienceFit)
	assert.Equal(t, 1.0, b.EducationFit)

	result := s.Score("cv.pdf", profile, req)
	assert.Equal(t, "cv.pdf", result.SourceDocumentName)
	assert.Equal(t, types.NewSkillSet("nodejs", "react"), result.MatchedSkills)
	assert.Equal(t, types.NewSkillSet("typescript"), result.MissingSkills)
	// round(100 * (0.6*2/3 + 0.25*1 + 0.15*1)) = round(80)
	assert.Equal(t, 80, result.Score)
	assert.Equal(t, types.BandHigh, result.Band)
	assert.Equal(t, 5.0, *result.ExperienceYears)
	assert.Equal(t, types.EducationBachelors, result.EducationLevel)
	assert.Nil(t, result.Error)
}

func TestScoreIgnoresSkillOrder(t *testing.T) {
	s := newTestScorer(t)
	profile := types.ExtractedProfile{
		Skills:          types.SkillSet{"react", "nodejs"},
		ExperienceYears: types.Years(5),
		EducationLevel:  types.EducationBachelors,
	}
	literal := types.JobRequirement{
		RequiredSkills:     types.SkillSet{"react", "typescript", "nodejs"},
		NiceToHaveSkills:   types.SkillSet{"graphql", "docker", "graphql"},
		MinExperienceYears: 3,
		MinEducationLevel:  types.EducationBachelors,
	}
	sorted := literal.Normalized()
	assert.Equal(t, types.SkillSet{"nodejs", "react", "typescript"}, sorted.RequiredSkills)
	assert.Equal(t, types.SkillSet{"docker", "graphql"}, sorted.NiceToHaveSkills)

	b := s.Breakdown(profile, literal)
	assert.InDelta(t, 2.0/3.0, b.SkillCoverage, 1e-9)

	got := s.Score("cv.txt", profile, literal)
	want := s.Score("cv.txt", profile, sorted)
	assert.Equal(t, want, got)
	assert.Equal(t, 80, got.Score)
	assert.Equal(t, types.SkillSet{"nodejs", "react"}, got.MatchedSkills)
	assert.Equal(t, types.SkillSet{"typescript"}, got.MissingSkills)
}

func TestScoreEmptyRequiredSkills(t *testing.T) {
	s := newTestScorer(t)
	req := types.JobRequirement{RequiredSkills: types.NewSkillSet(), NiceToHaveSkills: types.NewSkillSet()}

	b := s.Breakdown(types.ExtractedProfile{Skills: types.NewSkillSet()}, req)
	assert.Equal(t, 1.0, b.SkillCoverage, "必需技能为空时覆盖率为1")

	result := s.Score("empty", types.ExtractedProfile{Skills: types.NewSkillSet()}, req)
	assert.Equal(t, 100, result.Score)
	assert.Empty(t, result.MissingSkills)
}

func TestExperienceFit(t *testing.T) {
	tests := []struct {
		name  string
		years *float64
		min   float64
		want  float64
	}{
		{"meets minimum", types.Years(5), 3, 1},
		{"exactly minimum", types.Years(3), 3, 1},
		{"partial", types.Years(2), 4, 0.5},
		{"unknown without minimum", nil, 0, 1},
		{"unknown with minimum", nil, 3, 0},
		{"zero years", types.Years(0), 2, 0},
		{"fractional minimum", types.Years(0.25), 0.5, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, experienceFit(tt.years, tt.min), 1e-9)
		})
	}
}

func TestEducationFit(t *testing.T) {
	s := newTestScorer(t)
	assert.Equal(t, 1.0, s.educationFit(types.EducationDoctorate, types.EducationMasters))
	assert.Equal(t, 0.5, s.educationFit(types.EducationBachelors, types.EducationMasters))
	assert.Equal(t, 0.0, s.educationFit(types.EducationBachelors, types.EducationDoctorate))
	assert.Equal(t, 0.0, s.educationFit(types.EducationNone, types.EducationDoctorate))

	custom := newTestScorer(t, WithEducationPartialCredit([]float64{0.7, 0.3}))
	assert.Equal(t, 0.3, custom.educationFit(types.EducationBachelors, types.EducationDoctorate))
}

func TestNiceToHaveBonus(t *testing.T) {
	s := newTestScorer(t)
	req := types.JobRequirement{
		RequiredSkills:   types.NewSkillSet("go", "sql"),
		NiceToHaveSkills: types.NewSkillSet("kafka", "redis"),
	}

	b := s.Breakdown(types.ExtractedProfile{Skills: types.NewSkillSet("go", "kafka")}, req)
	assert.InDelta(t, 0.6, b.SkillCoverage, 1e-9)

	b = s.Breakdown(types.ExtractedProfile{Skills: types.NewSkillSet("go", "sql", "kafka", "redis")}, req)
	assert.Equal(t, 1.0, b.SkillCoverage, "加分后覆盖率上限为1")

	result := s.Score("x", types.ExtractedProfile{Skills: types.NewSkillSet("kafka", "go")}, req)
	assert.Equal(t, types.NewSkillSet("go", "kafka"), result.MatchedSkills)
	assert.Equal(t, types.NewSkillSet("sql"), result.MissingSkills, "加分技能不计入缺失技能")
}

func TestWithWeights(t *testing.T) {
	s := newTestScorer(t, WithWeights(Weights{Skill: 1}))
	req := types.JobRequirement{RequiredSkills: types.NewSkillSet("a", "b", "c", "d"), MinExperienceYears: 10}
	result := s.Score("x", types.ExtractedProfile{Skills: types.NewSkillSet("a")}, req)
	assert.Equal(t, 25, result.Score)
	assert.Equal(t, types.BandLow, result.Band)
}

func TestNewScorerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"weights do not sum to one", []Option{WithWeights(Weights{Skill: 0.5, Experience: 0.25, Education: 0.15})}},
		{"negative weight", []Option{WithWeights(Weights{Skill: 1.2, Experience: -0.2})}},
		{"bonus out of range", []Option{WithNiceToHaveBonus(1.5)}},
		{"partial credit out of range", []Option{WithEducationPartialCredit([]float64{2})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScorer(tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestNewScorerFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	s, err := NewScorerFromConfig(cfg.Engine)
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), s.Weights())

	cfg.Engine.Weights = config.WeightsConfig{Skill: 0.5, Experience: 0.5}
	s, err = NewScorerFromConfig(cfg.Engine)
	require.NoError(t, err)
	assert.Equal(t, Weights{Skill: 0.5, Experience: 0.5}, s.Weights())
}

func TestBand(t *testing.T) {
	assert.Equal(t, types.BandHigh, Band(100))
	assert.Equal(t, types.BandHigh, Band(80))
	assert.Equal(t, types.BandMedium, Band(79))
	assert.Equal(t, types.BandMedium, Band(60))
	assert.Equal(t, types.BandLow, Band(59))
	assert.Equal(t, types.BandLow, Band(0))
}

var skillPool = []string{"react", "typescript", "nodejs", "go", "python", "sql", "docker", "aws", "kubernetes", "figma"}

func randomSkills(r *rand.Rand) types.SkillSet {
	var out []string
	for _, s := range skillPool {
		if r.Intn(2) == 0 {
			out = append(out, s)
		}
	}
	return types.NewSkillSet(out...)
}

func randomCase(r *rand.Rand) (types.ExtractedProfile, types.JobRequirement) {
	profile := types.ExtractedProfile{
		Skills:         randomSkills(r),
		EducationLevel: types.EducationLevel(r.Intn(4)),
	}
	if r.Intn(4) > 0 {
		profile.ExperienceYears = types.Years(float64(r.Intn(15)))
	}
	required := randomSkills(r)
	req := types.JobRequirement{
		RequiredSkills:     required,
		NiceToHaveSkills:   randomSkills(r).Minus(required),
		MinExperienceYears: float64(r.Intn(8)),
		MinEducationLevel:  types.EducationLevel(r.Intn(4)),
	}
	return profile, req
}

// 随机输入上检查分数范围、集合关系、确定性与单调性
func TestScoreProperties(t *testing.T) {
	s := newTestScorer(t)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		profile, req := randomCase(r)
		result := s.Score("doc", profile, req)

		require.GreaterOrEqual(t, result.Score, 0)
		require.LessOrEqual(t, result.Score, 100)
		require.Empty(t, result.MatchedSkills.Intersect(result.MissingSkills), "matched 与 missing 不相交")
		all := req.AllSkills()
		for _, skill := range result.MatchedSkills.Union(result.MissingSkills) {
			require.True(t, all.Contains(skill), "%s 不在岗位技能集合中", skill)
		}

		require.Equal(t, result, s.Score("doc", profile, req), "相同输入应得到相同结果")

		missing := req.RequiredSkills.Minus(profile.Skills)
		if len(missing) > 0 {
			improved := profile
			improved.Skills = profile.Skills.With(missing[0])
			require.GreaterOrEqual(t, s.Score("doc", improved, req).Score, result.Score, "补齐必需技能不应降低分数")
		}
	}
}

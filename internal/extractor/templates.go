package extractor

import (
	"strings"

	"resume-matcher/internal/types"
)

// JobTemplate 预置的岗位模板
type JobTemplate struct {
	Slug           string   `json:"slug"`
	Title          string   `json:"title"`
	Department     string   `json:"department"`
	Location       string   `json:"location"`
	EmploymentType string   `json:"employment_type"`
	Experience     string   `json:"experience"` // 例如 "5+ years"
	KeySkills      []string `json:"key_skills"`
	Status         string   `json:"status"`
	Description    string   `json:"description"`
}

var builtinTemplates = []JobTemplate{
	{
		Slug:           "senior-frontend-developer",
		Title:          "Senior Frontend Developer",
		Department:     "Engineering",
		Location:       "San Francisco, CA",
		EmploymentType: "Full-time",
		Experience:     "5+ years",
		KeySkills:      []string{"React", "TypeScript", "Redux", "Node.js", "AWS", "GraphQL"},
		Status:         "active",
		Description:    "We are looking for a Senior Frontend Developer with strong experience in React and TypeScript. The ideal candidate will have experience building complex web applications and working with modern frontend frameworks.",
	},
	{
		Slug:           "ux-designer",
		Title:          "UX Designer",
		Department:     "Design",
		Location:       "Remote",
		EmploymentType: "Full-time",
		Experience:     "3+ years",
		KeySkills:      []string{"UI Design", "User Research", "Prototyping", "Figma", "Design Systems"},
		Status:         "active",
		Description:    "We are seeking a talented UX Designer to join our team. In this role, you will create exceptional user experiences through research, wireframing, and prototyping. You will collaborate with product managers and developers to deliver intuitive designs.",
	},
	{
		Slug:           "full-stack-developer",
		Title:          "Full Stack Developer",
		Department:     "Engineering",
		Location:       "New York, NY",
		EmploymentType: "Full-time",
		Experience:     "4+ years",
		KeySkills:      []string{"JavaScript", "React", "Node.js", "Express", "MongoDB", "Docker"},
		Status:         "active",
		Description:    "We are looking for a Full Stack Developer who is proficient with both frontend and backend technologies. The ideal candidate will have experience with JavaScript, React, Node.js, and database technologies.",
	},
	{
		Slug:           "product-manager",
		Title:          "Product Manager",
		Department:     "Product",
		Location:       "Boston, MA",
		EmploymentType: "Full-time",
		Experience:     "4+ years",
		KeySkills:      []string{"Agile", "Product Strategy", "Roadmapping", "User Stories", "Data Analysis"},
		Status:         "active",
		Description:    "We are seeking an experienced Product Manager to lead the development of our products. The ideal candidate will have a background in technology and experience managing complex product lifecycles.",
	},
	{
		Slug:           "devops-engineer",
		Title:          "DevOps Engineer",
		Department:     "Engineering",
		Location:       "Seattle, WA",
		EmploymentType: "Full-time",
		Experience:     "3+ years",
		KeySkills:      []string{"Docker", "Kubernetes", "AWS", "CI/CD", "Infrastructure as Code"},
		Status:         "active",
		Description:    "We are looking for a DevOps Engineer to help us build and maintain our cloud infrastructure. The ideal candidate will have experience with AWS, Docker, Kubernetes, and CI/CD pipelines.",
	},
	{
		Slug:           "backend-developer",
		Title:          "Backend Developer",
		Department:     "Engineering",
		Location:       "Austin, TX",
		EmploymentType: "Contract",
		Experience:     "2+ years",
		KeySkills:      []string{"Java", "Spring Boot", "MySQL", "RESTful APIs", "Microservices"},
		Status:         "closed",
		Description:    "We are looking for a Backend Developer to join our team. The ideal candidate will have experience with Java, Spring Boot, and RESTful APIs.",
	},
	{
		Slug:           "data-scientist",
		Title:          "Data Scientist",
		Department:     "Data",
		Location:       "Chicago, IL",
		EmploymentType: "Full-time",
		Experience:     "3+ years",
		KeySkills:      []string{"Python", "R", "SQL", "Machine Learning", "Data Visualization"},
		Status:         "draft",
		Description:    "We are seeking a Data Scientist to help us extract insights from our data. The ideal candidate will have experience with Python, R, and machine learning algorithms.",
	},
}

// Templates 返回内置岗位模板的副本，按发布顺序排列
func Templates() []JobTemplate {
	out := make([]JobTemplate, len(builtinTemplates))
	for i, t := range builtinTemplates {
		t.KeySkills = append([]string(nil), t.KeySkills...)
		out[i] = t
	}
	return out
}

// TemplateBySlug 按 slug 查找模板，大小写不敏感
func TemplateBySlug(slug string) (JobTemplate, bool) {
	needle := strings.ToLower(strings.TrimSpace(slug))
	for _, t := range Templates() {
		if t.Slug == needle {
			return t, true
		}
	}
	return JobTemplate{}, false
}

// RequirementFromTemplate 由模板构造岗位要求
// 关键技能全部为必需技能，经别名表规范化；经验字符串（"5+ years"）给出最低年限；
// 学历要求取自模板描述
func (e *Extractor) RequirementFromTemplate(t JobTemplate) types.JobRequirement {
	req := types.JobRequirement{
		Title:             t.Title,
		RequiredSkills:    e.CanonicalSkills(t.KeySkills...),
		NiceToHaveSkills:  types.SkillSet{},
		MinEducationLevel: e.highestEducation(t.Description, tokenize(t.Description)),
	}
	if years, ok := ParseExperienceYears(t.Experience); ok {
		req.MinExperienceYears = years
	}
	return req
}

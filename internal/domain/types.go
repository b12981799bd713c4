package domain

// Severity levels for review issues, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// SeverityOrder lists all severities from most to least severe. The
// canonical markdown renderer and the aggregation logic iterate this
// slice so output ordering is stable.
var SeverityOrder = []string{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// Issue categories.
const (
	CategoryBug             = "bug"
	CategorySecurity        = "security"
	CategoryPerformance     = "performance"
	CategoryMaintainability = "maintainability"
	CategoryStyle           = "style"
	CategoryBestPractice    = "best-practice"
)

// Categories lists the valid issue categories.
var Categories = []string{
	CategoryBug,
	CategorySecurity,
	CategoryPerformance,
	CategoryMaintainability,
	CategoryStyle,
	CategoryBestPractice,
}

// Letter grades assigned to an overall score.
const (
	GradeAPlus = "A+"
	GradeA     = "A"
	GradeB     = "B"
	GradeC     = "C"
	GradeD     = "D"
	GradeF     = "F"
)

// Grades lists the valid letter grades.
var Grades = []string{GradeAPlus, GradeA, GradeB, GradeC, GradeD, GradeF}

// Risk levels for an aggregated pull-request review.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// File change statuses reported by a source-control collaborator.
const (
	FileStatusAdded    = "added"
	FileStatusModified = "modified"
	FileStatusRemoved  = "removed"
)

// ValidSeverity reports whether s is a recognized severity.
func ValidSeverity(s string) bool {
	for _, v := range SeverityOrder {
		if v == s {
			return true
		}
	}
	return false
}

// ValidCategory reports whether c is a recognized category.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ValidGrade reports whether g is a recognized letter grade.
func ValidGrade(g string) bool {
	for _, v := range Grades {
		if v == g {
			return true
		}
	}
	return false
}

// GradeForScore maps an overall score to a letter grade.
func GradeForScore(score float64) string {
	switch {
	case score >= 97:
		return GradeAPlus
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// ReviewRequest is the immutable input to a single file review.
type ReviewRequest struct {
	SourceText string
	Filename   string
	Context    string
	ModelID    string
}

// ChangedFile describes one file changed by a pull request.
type ChangedFile struct {
	Filename string
	Status   string
	Patch    string
}

// PullRequest is the subset of pull-request metadata the reviewer needs.
type PullRequest struct {
	Repo       string
	Number     int
	Title      string
	Body       string
	HeadCommit string
	BaseCommit string
}

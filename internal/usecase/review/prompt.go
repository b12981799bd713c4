package review

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/domain"
)

// familyCharBudgets caps the source text embedded in a prompt, per
// provider family. Budgets are in characters, sized well under each
// family's context window so the schema instructions always survive.
var familyCharBudgets = map[string]int{
	domain.FamilyAnthropic: 48_000,
	domain.FamilyOpenAI:    32_000,
	domain.FamilyGemini:    96_000,
	domain.FamilyOllama:    16_000,
	domain.FamilyStatic:    16_000,
}

const defaultCharBudget = 16_000

// PromptBuilder renders review prompts from provider-specific templates.
type PromptBuilder struct {
	familyTemplates map[string]string
	defaultTemplate string
}

// NewPromptBuilder creates a builder with the default template for every
// family.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		familyTemplates: make(map[string]string),
		defaultTemplate: defaultPromptTemplate(),
	}
}

// SetFamilyTemplate overrides the template used for one provider family.
func (b *PromptBuilder) SetFamilyTemplate(family, templateText string) {
	b.familyTemplates[family] = templateText
}

// BuiltPrompt is a rendered prompt plus its token estimate.
type BuiltPrompt struct {
	Text            string
	System          string
	EstimatedTokens int
	Truncated       bool
}

// promptData holds all fields available to prompt templates.
type promptData struct {
	Filename  string
	Language  string
	Context   string
	Source    string
	Truncated bool
	Schema    string
}

// Build renders the prompt for a review request against the given model.
// Source text beyond the family budget is cut down to its leading
// portion, and the truncation is disclosed in the prompt itself.
func (b *PromptBuilder) Build(req domain.ReviewRequest, descriptor domain.ModelDescriptor) (BuiltPrompt, error) {
	templateText := b.defaultTemplate
	if familyTemplate, ok := b.familyTemplates[descriptor.ProviderFamily]; ok {
		templateText = familyTemplate
	}

	budget, ok := familyCharBudgets[descriptor.ProviderFamily]
	if !ok {
		budget = defaultCharBudget
	}

	source, truncated := truncateSource(req.SourceText, budget)

	data := promptData{
		Filename:  req.Filename,
		Language:  languageForFilename(req.Filename),
		Context:   req.Context,
		Source:    source,
		Truncated: truncated,
		Schema:    reviewSchemaInstruction,
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(templateText)
	if err != nil {
		return BuiltPrompt{}, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return BuiltPrompt{}, fmt.Errorf("failed to render prompt template: %w", err)
	}

	text := buf.String()

	return BuiltPrompt{
		Text:            text,
		System:          systemInstruction,
		EstimatedTokens: llm.EstimateTokens(text),
		Truncated:       truncated,
	}, nil
}

// truncateSource keeps the leading budget characters of text, cutting
// on a line boundary so the model never sees half a line.
func truncateSource(text string, budget int) (string, bool) {
	if len(text) <= budget {
		return text, false
	}

	kept := text[:budget]
	if idx := strings.LastIndexByte(kept, '\n'); idx >= 0 {
		kept = kept[:idx+1]
	}
	return kept, true
}

// languageForFilename guesses a display language from the file extension.
// Unknown extensions map to empty, which templates render as "code".
func languageForFilename(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	switch strings.ToLower(filename[idx:]) {
	case ".go":
		return "Go"
	case ".py":
		return "Python"
	case ".js", ".jsx":
		return "JavaScript"
	case ".ts", ".tsx":
		return "TypeScript"
	case ".java":
		return "Java"
	case ".rb":
		return "Ruby"
	case ".rs":
		return "Rust"
	case ".c", ".h":
		return "C"
	case ".cc", ".cpp", ".hpp":
		return "C++"
	case ".cs":
		return "C#"
	case ".sh":
		return "Shell"
	case ".sql":
		return "SQL"
	case ".kt":
		return "Kotlin"
	case ".swift":
		return "Swift"
	default:
		return ""
	}
}

const systemInstruction = `You are an expert software engineer performing a thorough code review. You respond with a single JSON object and nothing else.`

// reviewSchemaInstruction spells out the exact response contract the
// parser validates against.
const reviewSchemaInstruction = `Respond with a single JSON object, no prose before or after, matching exactly:
{
  "summary": {
    "overallScore": <number 0-100>,
    "grade": "<A+|A|B|C|D|F>",
    "totalIssues": <integer, must equal the length of issues>,
    "countsBySeverity": {"critical": <n>, "high": <n>, "medium": <n>, "low": <n>, "info": <n>}
  },
  "issues": [
    {
      "severity": "<critical|high|medium|low|info>",
      "category": "<bug|security|performance|maintainability|style|best-practice>",
      "title": "<short title>",
      "description": "<what is wrong and why it matters>",
      "lineNumber": <integer, 0 if unknown>,
      "codeSnippet": "<offending code, may be empty>",
      "suggestion": "<concrete fix, may be empty>",
      "impact": "<consequence of leaving it unfixed>"
    }
  ],
  "metrics": {
    "complexity": <number 1-10>,
    "maintainability": <number 0-100>,
    "readability": <number 0-100>,
    "testability": <number 0-100>,
    "security": <number 0-100>
  },
  "strengths": ["<what the code does well>"],
  "recommendations": ["<broader improvement>"]
}
Counts must be internally consistent. Use only the enumerated severity, category, and grade values.`

// defaultPromptTemplate returns the template used when no family override
// is set.
func defaultPromptTemplate() string {
	return `Review the following {{if .Language}}{{.Language}} {{end}}code for bugs, security problems, performance concerns, maintainability, style, and best practices.

File: {{.Filename}}
{{if .Context}}
## Reviewer Context
{{.Context}}
{{end}}
{{if .Truncated}}Note: the file was too large to include in full; only the leading portion is shown below.
{{end}}
## Code
` + "```" + `
{{.Source}}
` + "```" + `

{{.Schema}}`
}

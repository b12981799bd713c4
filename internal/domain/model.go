package domain

// Provider families. A family shares one invocation protocol; the model
// router classifies a model id into exactly one family to pick the
// matching client.
const (
	FamilyAnthropic = "anthropic"
	FamilyGemini    = "gemini"
	FamilyOpenAI    = "openai"
	FamilyOllama    = "ollama"
	FamilyStatic    = "static"
)

// ModelDescriptor is a static catalog entry for one model. The published
// per-minute and per-day ceilings drive backoff and inter-file pacing.
type ModelDescriptor struct {
	ID                string
	ProviderFamily    string
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
	DisplayName       string
}

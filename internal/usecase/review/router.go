package review

import (
	"fmt"
	"strings"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/domain"
)

// familyPrefixes classifies a model id into a provider family by name
// prefix. Used for allowlisted ids that are not in the static catalog.
var familyPrefixes = map[string]string{
	"claude": domain.FamilyAnthropic,
	"gemini": domain.FamilyGemini,
	"gpt":    domain.FamilyOpenAI,
	"o1":     domain.FamilyOpenAI,
	"o3":     domain.FamilyOpenAI,
	"o4":     domain.FamilyOpenAI,
	"static": domain.FamilyStatic,
}

// DefaultCatalog returns the static model catalog. The per-minute and
// per-day ceilings are the providers' published free/low-tier limits and
// drive inter-file pacing in the batch reviewer.
func DefaultCatalog() []domain.ModelDescriptor {
	return []domain.ModelDescriptor{
		{
			ID:                "gemini-2.0-flash",
			ProviderFamily:    domain.FamilyGemini,
			RequestsPerMinute: 15,
			TokensPerMinute:   1_000_000,
			RequestsPerDay:    1500,
			DisplayName:       "Gemini 2.0 Flash",
		},
		{
			ID:                "gemini-1.5-pro",
			ProviderFamily:    domain.FamilyGemini,
			RequestsPerMinute: 2,
			TokensPerMinute:   32_000,
			RequestsPerDay:    50,
			DisplayName:       "Gemini 1.5 Pro",
		},
		{
			ID:                "claude-3-5-sonnet-20241022",
			ProviderFamily:    domain.FamilyAnthropic,
			RequestsPerMinute: 50,
			TokensPerMinute:   40_000,
			RequestsPerDay:    0,
			DisplayName:       "Claude 3.5 Sonnet",
		},
		{
			ID:                "claude-3-5-haiku-20241022",
			ProviderFamily:    domain.FamilyAnthropic,
			RequestsPerMinute: 50,
			TokensPerMinute:   50_000,
			RequestsPerDay:    0,
			DisplayName:       "Claude 3.5 Haiku",
		},
		{
			ID:                "gpt-4o",
			ProviderFamily:    domain.FamilyOpenAI,
			RequestsPerMinute: 500,
			TokensPerMinute:   30_000,
			RequestsPerDay:    0,
			DisplayName:       "GPT-4o",
		},
		{
			ID:                "gpt-4o-mini",
			ProviderFamily:    domain.FamilyOpenAI,
			RequestsPerMinute: 500,
			TokensPerMinute:   200_000,
			RequestsPerDay:    10_000,
			DisplayName:       "GPT-4o mini",
		},
		{
			ID:                "codellama",
			ProviderFamily:    domain.FamilyOllama,
			RequestsPerMinute: 60,
			TokensPerMinute:   0,
			RequestsPerDay:    0,
			DisplayName:       "Code Llama (local)",
		},
		{
			ID:                "static-review",
			ProviderFamily:    domain.FamilyStatic,
			RequestsPerMinute: 600,
			TokensPerMinute:   0,
			RequestsPerDay:    0,
			DisplayName:       "Static (canned)",
		},
	}
}

// Router resolves a requested model id to a catalog descriptor and the
// provider client serving its family.
type Router struct {
	catalog   map[string]domain.ModelDescriptor
	allowed   map[string]bool
	defaultID string
	clients   map[string]llm.Client
}

// NewRouter builds a router over the given clients (keyed by provider
// family). An empty allowlist admits exactly the catalog. Every
// allowlisted id must classify into one family; an ambiguous or unknown
// prefix is a configuration error, not a runtime fallback.
func NewRouter(defaultID string, allowlist []string, clients map[string]llm.Client) (*Router, error) {
	catalog := make(map[string]domain.ModelDescriptor)
	for _, descriptor := range DefaultCatalog() {
		catalog[descriptor.ID] = descriptor
	}

	allowed := make(map[string]bool)
	if len(allowlist) == 0 {
		for id := range catalog {
			allowed[id] = true
		}
	} else {
		for _, id := range allowlist {
			allowed[id] = true
		}
	}

	r := &Router{
		catalog:   catalog,
		allowed:   allowed,
		defaultID: defaultID,
		clients:   clients,
	}

	// Fail construction, not resolution, for ids that cannot be
	// classified.
	for id := range allowed {
		if _, err := r.describe(id); err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", id, err)
		}
	}
	if _, err := r.describe(defaultID); err != nil {
		return nil, fmt.Errorf("default model %q: %w", defaultID, err)
	}
	if !allowed[defaultID] {
		return nil, fmt.Errorf("default model %q is not in the allowlist", defaultID)
	}

	return r, nil
}

// Resolve picks the descriptor and client for a requested model id.
// Ids outside the allowlist (or absent) fall back to the default.
func (r *Router) Resolve(requestedID string) (domain.ModelDescriptor, llm.Client, error) {
	id := r.defaultID
	if requestedID != "" && r.allowed[requestedID] {
		id = requestedID
	}

	descriptor, err := r.describe(id)
	if err != nil {
		return domain.ModelDescriptor{}, nil, err
	}

	client, ok := r.clients[descriptor.ProviderFamily]
	if !ok {
		return domain.ModelDescriptor{}, nil, fmt.Errorf(
			"no client configured for provider family %q (model %q)", descriptor.ProviderFamily, id)
	}

	return descriptor, client, nil
}

// Descriptors returns the catalog entries admitted by the allowlist.
func (r *Router) Descriptors() []domain.ModelDescriptor {
	var descriptors []domain.ModelDescriptor
	for _, descriptor := range DefaultCatalog() {
		if r.allowed[descriptor.ID] {
			descriptors = append(descriptors, descriptor)
		}
	}
	return descriptors
}

// describe returns the catalog descriptor for id, synthesizing one by
// prefix classification when the id is allowlisted but uncataloged.
func (r *Router) describe(id string) (domain.ModelDescriptor, error) {
	if descriptor, ok := r.catalog[id]; ok {
		return descriptor, nil
	}

	family, err := classifyFamily(id)
	if err != nil {
		return domain.ModelDescriptor{}, err
	}

	return domain.ModelDescriptor{
		ID:                id,
		ProviderFamily:    family,
		RequestsPerMinute: 15, // conservative pacing for uncataloged models
		DisplayName:       id,
	}, nil
}

// classifyFamily maps a model id to exactly one provider family by name
// prefix.
func classifyFamily(id string) (string, error) {
	var matched string
	for prefix, family := range familyPrefixes {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if matched != "" && matched != family {
			return "", fmt.Errorf("model id %q matches multiple provider families", id)
		}
		matched = family
	}
	if matched == "" {
		return "", fmt.Errorf("model id %q matches no known provider family", id)
	}
	return matched, nil
}

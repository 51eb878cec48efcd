package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultTemplate is the built-in prompt. It carries every placeholder the
// Assessor fills and pins the model to the JSON shape ParseAssessment expects.
const defaultTemplate = `You are a clinical triage assistant supporting community health workers.
You never diagnose. You assign a risk tier and recommend next steps.

Patient:
- Age: {{age}}
- Sex: {{sex}}
- Reported symptoms: {{symptoms}}
- Vitals: {{vitals}}

Follow-up questions and answers:
{{followup}}

Local health protocols:
{{protocols}}

Assess the patient and respond with a single JSON object, no other text:
{
  "risk_tier": "RED" | "YELLOW" | "GREEN",
  "danger_signs": ["..."],
  "uncertainty": "LOW" | "MEDIUM" | "HIGH",
  "recommended_next_steps": ["..."],
  "watch_outs": ["..."],
  "referral_recommended": true | false,
  "disclaimer": "...",
  "reasoning": "..."
}

RED means life-threatening, needs emergency care now. YELLOW means a health
facility visit within 24 hours. GREEN means home care with clear watch-outs.
If you are uncertain, say so in the uncertainty field rather than guessing a
lower tier. The disclaimer must state that this is not a diagnosis and a
clinician must confirm.`

// TemplateSource labels where the active template came from, for logs and
// the template source metric.
type TemplateSource string

const (
	TemplateSourceOverride TemplateSource = "override"
	TemplateSourceRemote   TemplateSource = "remote"
	TemplateSourceDefault  TemplateSource = "default"
)

// TemplateConfig controls template resolution. Set it once at startup with
// ConfigureTemplates, before the first triage runs.
type TemplateConfig struct {
	// Override, when non-empty, wins over every other source.
	Override string

	// FetchURL is an optional object-storage location to fetch the
	// template from, once per process. Fetch failure falls through to the
	// built-in default.
	FetchURL string

	// HTTPClient used for the fetch. Defaults to a short-timeout client.
	HTTPClient *http.Client

	Logger zerolog.Logger

	// OnResolve observes which source won, once per process.
	OnResolve func(source TemplateSource)
}

var templates templateCache

// templateCache is the only cross-invocation mutable state in the engine.
// Resolution happens at most once; concurrent first callers block on the
// mutex and share the single result.
type templateCache struct {
	mu     sync.Mutex
	loaded bool
	value  string
	cfg    TemplateConfig
}

// ConfigureTemplates installs the resolution config and clears any cached
// value so the next Template call resolves fresh.
func ConfigureTemplates(cfg TemplateConfig) {
	templates.mu.Lock()
	defer templates.mu.Unlock()
	templates.cfg = cfg
	templates.loaded = false
	templates.value = ""
}

// ResetTemplate drops the cached template and its config.
func ResetTemplate() {
	ConfigureTemplates(TemplateConfig{})
}

// Template returns the active prompt template, resolving it on first call.
// Priority: configured override, then one remote fetch, then the built-in
// default. Always returns a usable template.
func Template(ctx context.Context) string {
	templates.mu.Lock()
	defer templates.mu.Unlock()
	if templates.loaded {
		return templates.value
	}
	value, source := templates.resolve(ctx)
	templates.value = value
	templates.loaded = true
	templates.cfg.Logger.Info().Str("source", string(source)).Msg("prompt template resolved")
	if templates.cfg.OnResolve != nil {
		templates.cfg.OnResolve(source)
	}
	return value
}

func (c *templateCache) resolve(ctx context.Context) (string, TemplateSource) {
	if c.cfg.Override != "" {
		return c.cfg.Override, TemplateSourceOverride
	}
	if c.cfg.FetchURL != "" {
		value, err := c.fetch(ctx)
		if err == nil {
			return value, TemplateSourceRemote
		}
		c.cfg.Logger.Warn().Err(err).Str("url", c.cfg.FetchURL).
			Msg("template fetch failed, using built-in default")
	}
	return defaultTemplate, TemplateSourceDefault
}

func (c *templateCache) fetch(ctx context.Context) (string, error) {
	client := c.cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.FetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch template: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch template: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("fetch template: empty body")
	}
	return string(body), nil
}

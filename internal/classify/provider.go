package classify

import (
	"context"
	"strings"

	"github.com/clinicpulse/outreach/pkg/logging"
)

const (
	ProviderAuto    = "auto"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// ProviderSelectionConfig carries the credentials needed to pick an LLM
// provider for the classifier.
type ProviderSelectionConfig struct {
	Preference     string
	BedrockAPI     bedrockConverseAPI
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
}

// BuildProvider instantiates a Provider based on the preferred backend.
// It returns the provider, the backend that was selected, and a reason when
// no backend could be initialized.
func BuildProvider(ctx context.Context, cfg ProviderSelectionConfig, logger *logging.Logger) (Provider, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = ProviderAuto
	}

	missing := map[string]string{}
	var bedrockProvider Provider
	var geminiProvider Provider

	if cfg.BedrockAPI != nil && cfg.BedrockModelID != "" {
		provider, err := NewBedrockProvider(cfg.BedrockAPI, cfg.BedrockModelID)
		if err != nil {
			missing[ProviderBedrock] = err.Error()
		} else {
			bedrockProvider = provider
		}
	} else {
		var reasons []string
		if cfg.BedrockAPI == nil {
			reasons = append(reasons, "bedrock runtime client missing")
		}
		if cfg.BedrockModelID == "" {
			reasons = append(reasons, "BEDROCK_MODEL_ID missing")
		}
		missing[ProviderBedrock] = strings.Join(reasons, ", ")
	}

	if cfg.GeminiAPIKey != "" {
		provider, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini classifier unavailable", "error", err)
			missing[ProviderGemini] = err.Error()
		} else {
			geminiProvider = provider
		}
	} else {
		missing[ProviderGemini] = "GEMINI_API_KEY missing"
	}

	if preference != ProviderAuto {
		if preference == ProviderBedrock && bedrockProvider != nil {
			return bedrockProvider, ProviderBedrock, ""
		}
		if preference == ProviderGemini && geminiProvider != nil {
			return geminiProvider, ProviderGemini, ""
		}
		return nil, "", "preferred classifier backend " + preference + " unavailable: " + missing[preference]
	}

	if bedrockProvider != nil {
		return bedrockProvider, ProviderBedrock, ""
	}
	if geminiProvider != nil {
		return geminiProvider, ProviderGemini, ""
	}

	var reasons []string
	for name, reason := range missing {
		if reason != "" {
			reasons = append(reasons, name+": "+reason)
		}
	}
	return nil, "", "no classifier backend available (" + strings.Join(reasons, "; ") + ")"
}

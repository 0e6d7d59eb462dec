package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/martinscooper/lighteval/internal/config"
	"github.com/martinscooper/lighteval/internal/coordinator"
)

// FromConfig builds the execution provider named by the model configuration.
// Both variants satisfy the coordinator's run-batch contract; which one
// serves the forward passes is invisible to the orchestration core.
func FromConfig(cfg *config.Config) (coordinator.Provider, error) {
	if cfg == nil {
		return nil, errors.New("provider: nil config")
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	switch name {
	case "", "openai":
		return NewOpenAI(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name), nil
	case "anthropic", "claude":
		return NewAnthropic(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name), nil
	default:
		return nil, fmt.Errorf("provider: unknown provider %q", cfg.Model.Provider)
	}
}

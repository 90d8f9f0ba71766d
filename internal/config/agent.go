package config

import (
	"errors"
	"os"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	EnvAgentProviderName = "DOCAUDIT_AGENT_PROVIDER_NAME"
	EnvAgentBaseURL      = "DOCAUDIT_AGENT_BASE_URL"
	EnvAgentToken        = "DOCAUDIT_AGENT_TOKEN"
	EnvAgentDeployment   = "DOCAUDIT_AGENT_DEPLOYMENT"
	EnvAgentAPIVersion   = "DOCAUDIT_AGENT_API_VERSION"
	EnvAgentAuthType     = "DOCAUDIT_AGENT_AUTH_TYPE"
	EnvAgentModelName    = "DOCAUDIT_AGENT_MODEL_NAME"
)

// providerOptionEnv maps environment variables onto provider option keys.
// Values stay strings; go-agents coerces them per provider.
var providerOptionEnv = map[string]string{
	EnvAgentToken:      "token",
	EnvAgentDeployment: "deployment",
	EnvAgentAPIVersion: "api_version",
	EnvAgentAuthType:   "auth_type",
}

// FinalizeAgent completes a partially-specified agent configuration: unset
// fields fill in from go-agents defaults, DOCAUDIT_AGENT_* variables
// override, and the result is validated. The TOML layer binds only the
// name fields, so endpoint details arrive through the environment or the
// defaults.
func FinalizeAgent(c *gaconfig.AgentConfig) error {
	defaults := gaconfig.DefaultAgentConfig()
	defaults.Merge(c)
	*c = defaults

	applyAgentEnv(c)
	return validateAgent(c)
}

func applyAgentEnv(c *gaconfig.AgentConfig) {
	if c.Provider == nil {
		c.Provider = &gaconfig.ProviderConfig{}
	}
	if c.Provider.Options == nil {
		c.Provider.Options = make(map[string]any)
	}
	if c.Model == nil {
		c.Model = &gaconfig.ModelConfig{}
	}

	if v := os.Getenv(EnvAgentProviderName); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv(EnvAgentBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvAgentModelName); v != "" {
		c.Model.Name = v
	}

	for envVar, key := range providerOptionEnv {
		if v := os.Getenv(envVar); v != "" {
			c.Provider.Options[key] = v
		}
	}
}

func validateAgent(c *gaconfig.AgentConfig) error {
	switch {
	case c.Name == "":
		return errors.New("agent name missing")
	case c.Provider == nil || c.Provider.Name == "":
		return errors.New("provider name missing")
	case c.Model == nil:
		return errors.New("model missing")
	}
	return nil
}

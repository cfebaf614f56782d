package hosting

import (
	"fmt"
	"os"

	"github.com/deckhandhq/deckhand/internal/project"
)

// Config holds hosting provider credentials and endpoints.
type Config struct {
	// Token is the API token. When empty, the provider's default
	// environment variable (GITHUB_TOKEN / GITLAB_TOKEN) is consulted.
	Token string `yaml:"token,omitempty" json:"-"`

	// TokenEnvVar overrides the default token environment variable name.
	TokenEnvVar string `yaml:"token_env_var,omitempty" json:"token_env_var,omitempty"`

	// BaseURL for self-hosted instances (e.g., "https://gitlab.company.com").
	// Leave empty for github.com / gitlab.com.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// ResolveToken returns the API token from the config or the environment.
// defaultEnvVar names the provider's conventional variable.
func (c Config) ResolveToken(defaultEnvVar string) (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}

	envVar := defaultEnvVar
	if c.TokenEnvVar != "" {
		envVar = c.TokenEnvVar
	}
	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("hosting token not configured (set hosting.token in config or export %s)", envVar)
	}
	return token, nil
}

// NewProviderFunc is a constructor function for creating a hosting provider.
// The registry holds constructors instead of importing provider packages,
// which register themselves at init time.
type NewProviderFunc func(owner, repo string, cfg Config) (Provider, error)

// Provider constructors registered by provider packages.
var providerConstructors = map[project.Host]NewProviderFunc{}

// RegisterProvider registers a provider constructor.
// Called from init() in provider packages (github/, gitlab/).
func RegisterProvider(host project.Host, constructor NewProviderFunc) {
	providerConstructors[host] = constructor
}

// ForProject creates a hosting provider for a project using its declared
// host and owner/repo coordinates.
func ForProject(p *project.Project, cfg Config) (Provider, error) {
	constructor, ok := providerConstructors[p.Host]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (registered: %v)", p.Host, registeredProviders())
	}
	return constructor(p.Owner, p.Repo, cfg)
}

func registeredProviders() []project.Host {
	var hosts []project.Host
	for h := range providerConstructors {
		hosts = append(hosts, h)
	}
	return hosts
}

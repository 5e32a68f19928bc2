package policy

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

/* Loader manages delivery policies from policies.yaml
 * Starts from the built-in defaults; a file only overrides what it names
 */

// Config represents the structure of policies.yaml
type Config struct {
	Policies []PolicyConfig `yaml:"policies"`
}

// PolicyConfig represents a single policy in the YAML file
type PolicyConfig struct {
	Name       string `yaml:"name"`
	Timeout    string `yaml:"timeout"`     // Go duration, e.g. "5s"
	MaxRetries *int   `yaml:"max_retries"` // Optional: keeps the default when absent
	RetryDelay string `yaml:"retry_delay"` // Go duration, e.g. "5s"
}

// Loader holds the loaded policies
type Loader struct {
	policies map[string]Policy
}

// NewLoader creates a loader holding the default policies
func NewLoader() *Loader {
	return &Loader{
		policies: map[string]Policy{
			HandshakeName:         DefaultHandshake(),
			EventNotificationName: DefaultEventNotification(),
		},
	}
}

// Load reads and parses a policies file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading policies file: %w", err)
	}
	return l.Parse(data)
}

// Parse applies policies from YAML content
func (l *Loader) Parse(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing policies YAML: %w", err)
	}

	loaded := make(map[string]Policy, len(l.policies))
	for name, p := range l.policies {
		loaded[name] = p
	}

	for _, pc := range config.Policies {
		p, ok := loaded[pc.Name]
		if !ok {
			return fmt.Errorf("validating policy: unknown policy %q", pc.Name)
		}
		if pc.Timeout != "" {
			d, err := time.ParseDuration(pc.Timeout)
			if err != nil {
				return fmt.Errorf("parsing timeout for policy %s: %w", pc.Name, err)
			}
			p.Timeout = d
		}
		if pc.RetryDelay != "" {
			d, err := time.ParseDuration(pc.RetryDelay)
			if err != nil {
				return fmt.Errorf("parsing retry_delay for policy %s: %w", pc.Name, err)
			}
			p.RetryDelay = d
		}
		if pc.MaxRetries != nil {
			p.MaxRetries = *pc.MaxRetries
		}

		if err := p.Validate(); err != nil {
			return fmt.Errorf("validating policy: %w", err)
		}
		loaded[p.Name] = p
	}

	l.policies = loaded
	return nil
}

// Get retrieves a policy by name
func (l *Loader) Get(name string) (Policy, error) {
	p, exists := l.policies[name]
	if !exists {
		return Policy{}, fmt.Errorf("policy not found: %s", name)
	}
	return p, nil
}

// Handshake returns the handshake policy
func (l *Loader) Handshake() Policy {
	return l.policies[HandshakeName]
}

// EventNotification returns the event-notification policy
func (l *Loader) EventNotification() Policy {
	return l.policies[EventNotificationName]
}

// List returns all policies ordered by name
func (l *Loader) List() []Policy {
	policies := make([]Policy, 0, len(l.policies))
	for _, p := range l.policies {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies
}

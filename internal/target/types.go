package target

import "time"

// Provider kinds. The set is closed; validation uses an explicit switch so a
// new kind cannot slip in without its config schema and prober.
const (
	ProviderOpenAI     = "openai"
	ProviderLocalModel = "localmodel"
)

// Connection statuses reported by the last connection test.
const (
	StatusUnverified  = "unverified"
	StatusVerified    = "verified"
	StatusUnreachable = "unreachable"
)

// Target is a user's configured connection to a language-model provider.
// Config is a free-form JSON object; the `apiKey` field inside it is stored
// encrypted and only ever leaves the service masked.
type Target struct {
	ID          string         `json:"id"`
	UserID      string         `json:"-"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Provider    string         `json:"provider"`
	Config      map[string]any `json:"config"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SecretConfigField is the config key holding the provider credential.
const SecretConfigField = "apiKey"

// clone returns a copy of t with its own config map, so callers can mask or
// decrypt without touching stored state.
func (t *Target) clone() *Target {
	cp := *t
	if t.Config != nil {
		cp.Config = make(map[string]any, len(t.Config))
		for k, v := range t.Config {
			cp.Config[k] = v
		}
	}
	return &cp
}

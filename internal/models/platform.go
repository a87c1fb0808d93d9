package models

// PublishConfig is the platform specific configuration supplied by the caller.
// The orchestrator never looks inside it.
type PublishConfig struct {
	Platform    string            `json:"platform,omitempty" dynamodbav:"platform,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty" dynamodbav:"credentials,omitempty"`
	Settings    map[string]string `json:"settings,omitempty" dynamodbav:"settings,omitempty"`
}

// Credential returns credentials[key], or "" when unset.
func (c PublishConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// Setting returns settings[key], or def when unset.
func (c PublishConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// PublishResult is the outcome of publishing to a single platform. Only two shapes are ever
// produced: a success carrying the platform URL, or a failure carrying the error text.
type PublishResult struct {
	Success     bool   `json:"success" dynamodbav:"success"`
	PlatformURL string `json:"platformUrl,omitempty" dynamodbav:"platformUrl,omitempty"`
	PlatformID  string `json:"platformId,omitempty" dynamodbav:"platformId,omitempty"`
	Error       string `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

func Succeeded(platformURL, platformID string) PublishResult {
	return PublishResult{Success: true, PlatformURL: platformURL, PlatformID: platformID}
}

func Failed(message string) PublishResult {
	return PublishResult{Success: false, Error: message}
}

// PlatformInfo describes a supported platform in the catalog.
type PlatformInfo struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
}

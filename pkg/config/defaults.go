package config

const (
	defaultListen   = ":9000"
	defaultUpstream = "https://api.openai.com"

	defaultAuditBackend = "file"
	defaultAuditPath    = "ferry-requests.log"
	defaultKafkaTopic   = "ferry.exchanges"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:   defaultListen,
			Upstream: defaultUpstream,
		},
		Audit: AuditConfig{
			Backend:    defaultAuditBackend,
			Path:       defaultAuditPath,
			KafkaTopic: defaultKafkaTopic,
		},
	}
}

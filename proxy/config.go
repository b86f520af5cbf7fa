package proxy

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":9000")
	ListenAddr string

	// UpstreamURL is the upstream API base URL (e.g., "https://api.openai.com").
	// Inbound requests keep their path and query; only the authority changes.
	UpstreamURL string
}

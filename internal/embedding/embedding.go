package embedding

import "context"

// Provider turns text into a fixed-length embedding vector. It is the
// memory subsystem's single external collaborator and its only
// suspension point; implementations must honor context cancellation.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

package digitalocean

import (
	"fmt"

	"github.com/sahilchouksey/course-marketplace/config"
)

// SpacesConfig holds configuration for Spaces client
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// NewSpacesConfig maps the environment settings onto a client config,
// defaulting the endpoint from the region.
func NewSpacesConfig(cfg config.Spaces) SpacesConfig {
	sc := SpacesConfig{
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
	}
	if sc.Endpoint == "" && sc.Region != "" {
		sc.Endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", sc.Region)
	}
	return sc
}

// IsConfigured returns true if Spaces is properly configured
func (c SpacesConfig) IsConfigured() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Bucket != "" && c.Region != "" && c.Endpoint != ""
}

package config

type Service struct {
	config *Config
}

func NewService(cfg *Config) *Service {
	return &Service{config: cfg}
}

// RetrieveConfig returns the running configuration. Secrets are excluded from
// its JSON form.
func (s *Service) RetrieveConfig() *Config {
	return s.config
}

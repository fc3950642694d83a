package config

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Snapshot cadence
	SnapshotInterval   int
	OversizeDeltaOps   int
	OversizeDeltaBytes int

	// Coordinate generation
	CoordinateMaxRetries int

	// Embedding and search
	EmbeddingDimension int
	SearchConcurrency  int
	DefaultSearchLimit int
	MaxSearchLimit     int

	// Listing limits
	MaxCoordinatesPerQuery int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// A snapshot every 128 deltas keeps worst-case replay bounded.
		SnapshotInterval:   128,
		OversizeDeltaOps:   64,
		OversizeDeltaBytes: 32 * 1024,

		CoordinateMaxRetries: 8,

		EmbeddingDimension: 384,
		SearchConcurrency:  8,
		DefaultSearchLimit: 10,
		MaxSearchLimit:     100,

		MaxCoordinatesPerQuery: 1000,
	}
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Short interval so snapshot paths exercise constantly during development
	config.SnapshotInterval = 8
	config.SearchConcurrency = 2

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	return nil
}

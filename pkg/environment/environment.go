package environment

import "strings"

// Environment is a deployment environment name.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Staging     Environment = "staging"
)

// Normalize maps short and mixed-case names ("prod", "Stage", "dev") onto
// the canonical constants. Unknown names resolve to Development.
func Normalize(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case string(Production), "prod":
		return Production
	case string(Staging), "stage":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether env normalizes to Production.
func IsProduction(env string) bool {
	return Normalize(env) == Production
}

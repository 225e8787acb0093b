package models

// Permission resolution strategies, in the order they are tried.
const (
	StrategyExternalService = "external_service"
	StrategyLocalDefaults   = "local_defaults"
)

// ResolvedPermissions is the deduplicated, size-bounded permission set of an identity.
type ResolvedPermissions struct {
	Permissions []string `json:"permissions"`
	Truncated   bool     `json:"truncated"`
	Strategy    string   `json:"strategy"`
}

// Has reports whether perm was granted.
func (r ResolvedPermissions) Has(perm string) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

package dto

// SubjectDTO describes who is asking for access.
type SubjectDTO struct {
	IdentityID     string                 `json:"identity_id" validate:"required,max=255"`
	Email          string                 `json:"email,omitempty"`
	SourceIP       string                 `json:"source_ip,omitempty" validate:"omitempty,ip"`
	OrganizationID string                 `json:"organization_id" validate:"required,max=255"`
	Roles          []string               `json:"roles,omitempty"`
	Permissions    []string               `json:"permissions,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	RiskScore      int                    `json:"risk_score" validate:"min=0,max=100"`
}

// ResourceDTO describes the object being accessed.
type ResourceDTO struct {
	Type           string                 `json:"type" validate:"required"`
	ID             string                 `json:"id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	OwnerID        string                 `json:"owner_id,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

// AuthorizeRequest asks whether a subject may perform an action on a resource.
// Policies name attribute checks such as "same_organization" or "low_risk".
type AuthorizeRequest struct {
	Subject     SubjectDTO  `json:"subject"`
	Resource    ResourceDTO `json:"resource"`
	Action      string      `json:"action" validate:"required"`
	Permissions []string    `json:"permissions,omitempty"`
	RequireAll  bool        `json:"require_all"`
	Roles       []string    `json:"roles,omitempty"`
	Policies    []string    `json:"policies,omitempty"`
}

// AuthorizeResponse is the outcome of an authorization check.
type AuthorizeResponse struct {
	Allowed bool   `json:"allowed"`
	Action  string `json:"action"`
}

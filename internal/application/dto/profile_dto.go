package dto

// RecordFailureRequest reports a failed primary authentication.
type RecordFailureRequest struct {
	IdentityID     string `json:"-" validate:"required,max=255"`
	OrganizationID string `json:"organization_id,omitempty"`
	SourceIP       string `json:"source_ip,omitempty" validate:"omitempty,ip"`
	Reason         string `json:"reason,omitempty" validate:"max=255"`
}

// EnrollFactorRequest records a completed second-factor enrollment.
type EnrollFactorRequest struct {
	IdentityID     string `json:"-" validate:"required,max=255"`
	OrganizationID string `json:"organization_id,omitempty"`
	Factor         string `json:"factor" validate:"required,max=64"`
}

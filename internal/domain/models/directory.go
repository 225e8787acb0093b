package models

// TeamMembership is one team an identity belongs to.
type TeamMembership struct {
	TeamID       string   `json:"team_id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	ParentTeamID *string  `json:"parent_team_id,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// DepartmentInfo summarises the identity's department.
type DepartmentInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CostCenter string `json:"cost_center,omitempty"`
	ManagerID  string `json:"manager_id,omitempty"`
}

// DirectoryData is the joined result of the team and department lookups.
type DirectoryData struct {
	Teams      []TeamMembership `json:"teams"`
	Department *DepartmentInfo  `json:"department,omitempty"`
	Degraded   bool             `json:"degraded"`
}

// TeamIDs returns the ids of teams in membership order.
func TeamIDs(teams []TeamMembership) []string {
	ids := make([]string, 0, len(teams))
	for _, t := range teams {
		ids = append(ids, t.TeamID)
	}
	return ids
}

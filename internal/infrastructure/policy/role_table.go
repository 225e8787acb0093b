// Package policy loads the static role to permission table used by the local
// permission strategy.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/aegis/internal/domain/service"
)

// RoleTableFile is the on-disk shape of a role table override.
type RoleTableFile struct {
	// Inherit keeps the built-in roles that the file does not mention.
	Inherit bool `yaml:"inherit"`
	// Roles maps a role name to the permissions it grants.
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoleTable reads a role table override from path. An empty path returns
// the built-in table.
func LoadRoleTable(path string) (service.RoleTable, error) {
	if strings.TrimSpace(path) == "" {
		return service.DefaultRoleTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role table file: %w", err)
	}
	return ParseRoleTable(raw)
}

// ParseRoleTable decodes a YAML role table override.
func ParseRoleTable(raw []byte) (service.RoleTable, error) {
	var file RoleTableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role table file: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("role table file defines no roles")
	}

	table := service.RoleTable{}
	if file.Inherit {
		for role, perms := range service.DefaultRoleTable() {
			table[role] = perms
		}
	}
	for role, perms := range file.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("role table file has an empty role name")
		}
		cleaned := make([]string, 0, len(perms))
		for _, p := range perms {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, fmt.Errorf("role %q has an empty permission", role)
			}
			cleaned = append(cleaned, p)
		}
		table[role] = cleaned
	}
	return table, nil
}

package escalation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kaunda/regcycle/model"
)

// audienceDoc is the YAML shape of the audience file: default recipients
// per role, plus per-process overrides (for example the executive assigned
// to one specific cycle).
type audienceDoc struct {
	Defaults  map[string][]string            `yaml:"defaults"`
	Processes map[string]map[string][]string `yaml:"processes"`
}

// StaticRoleResolver resolves roles to recipients from a YAML audience
// file. Process-scoped entries are combined with the role's defaults, so a
// cycle's assigned executive is notified alongside global admins.
type StaticRoleResolver struct {
	doc audienceDoc
}

var _ model.RoleResolver = (*StaticRoleResolver)(nil)

// NewStaticRoleResolver loads the audience file at path. An empty path
// yields an empty resolver; every role then resolves to no recipients.
func NewStaticRoleResolver(path string) (*StaticRoleResolver, error) {
	r := &StaticRoleResolver{}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("escalation: reading audience file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &r.doc); err != nil {
		return nil, fmt.Errorf("escalation: parsing audience file %s: %w", path, err)
	}
	return r, nil
}

// Resolve returns the distinct recipients for a role scoped to the process.
func (r *StaticRoleResolver) Resolve(_ context.Context, processID, role string) ([]string, error) {
	seen := make(map[string]bool)
	var recipients []string

	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				recipients = append(recipients, id)
			}
		}
	}

	if scoped, ok := r.doc.Processes[processID]; ok {
		add(scoped[role])
	}
	add(r.doc.Defaults[role])
	return recipients, nil
}

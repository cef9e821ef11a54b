package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog holds the role and permission configuration. It is built once at
// startup, validated, and safe for concurrent reads afterwards.
type Catalog struct {
	roles       map[RoleName]Role
	permissions map[string]Permission
	assignments map[RoleName][]string
}

// NewCatalog constructs a catalog from the given configuration.
func NewCatalog(roles []Role, permissions []Permission, assignments []Assignment) *Catalog {
	c := &Catalog{
		roles:       make(map[RoleName]Role, len(roles)),
		permissions: make(map[string]Permission, len(permissions)),
		assignments: make(map[RoleName][]string),
	}
	for _, r := range roles {
		c.roles[r.Name] = r
	}
	for _, p := range permissions {
		c.permissions[p.Name] = p
	}
	for _, a := range assignments {
		c.assignments[a.Role] = append(c.assignments[a.Role], a.Permission)
	}
	return c
}

// DefaultCatalog returns the built-in five tier catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultRoles(), defaultPermissions(), defaultAssignments())
}

// Validate checks the catalog for configuration errors. An unknown role name
// or a duplicated hierarchy level must abort startup rather than surface as a
// runtime condition.
func (c *Catalog) Validate() error {
	if len(c.roles) == 0 {
		return fmt.Errorf("rbac: catalog has no roles")
	}
	levels := make(map[int]RoleName, len(c.roles))
	for name, role := range c.roles {
		if strings.TrimSpace(string(name)) == "" {
			return fmt.Errorf("rbac: role with empty name")
		}
		if other, ok := levels[role.Level]; ok {
			return fmt.Errorf("rbac: roles %s and %s share level %d", other, name, role.Level)
		}
		levels[role.Level] = name
	}
	for name, perm := range c.permissions {
		want := fmt.Sprintf("%s:%s", perm.Resource, perm.Action)
		if name != want {
			return fmt.Errorf("rbac: permission %q does not match resource:action form %q", name, want)
		}
	}
	for role, perms := range c.assignments {
		if _, ok := c.roles[role]; !ok {
			return fmt.Errorf("rbac: assignment references unknown role %q", role)
		}
		seen := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			if _, ok := c.permissions[p]; !ok {
				return fmt.Errorf("rbac: role %s assigned unknown permission %q", role, p)
			}
			if _, dup := seen[p]; dup {
				return fmt.Errorf("rbac: role %s assigned permission %q twice", role, p)
			}
			seen[p] = struct{}{}
		}
	}
	return nil
}

// HasRole reports whether want is an exact member of the held role set.
func (c *Catalog) HasRole(held []RoleName, want RoleName) bool {
	for _, r := range held {
		if r == want {
			return true
		}
	}
	return false
}

// MeetsMinimumRole reports whether any held role sits at or above the level
// of min. An empty role set never satisfies any threshold.
func (c *Catalog) MeetsMinimumRole(held []RoleName, min RoleName) bool {
	threshold, ok := c.roles[min]
	if !ok {
		return false
	}
	for _, r := range held {
		role, ok := c.roles[r]
		if !ok {
			continue
		}
		if role.Level >= threshold.Level {
			return true
		}
	}
	return false
}

// RolesAtOrAbove returns the role names whose level is >= the given role's
// level, ordered from lowest to highest tier.
func (c *Catalog) RolesAtOrAbove(name RoleName) []RoleName {
	threshold, ok := c.roles[name]
	if !ok {
		return nil
	}
	matched := make([]Role, 0, len(c.roles))
	for _, role := range c.roles {
		if role.Level >= threshold.Level {
			matched = append(matched, role)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Level < matched[j].Level })
	names := make([]RoleName, len(matched))
	for i, role := range matched {
		names[i] = role.Name
	}
	return names
}

// Role looks up a role by name.
func (c *Catalog) Role(name RoleName) (Role, bool) {
	role, ok := c.roles[name]
	return role, ok
}

// Roles returns every role ordered by hierarchy level.
func (c *Catalog) Roles() []Role {
	out := make([]Role, 0, len(c.roles))
	for _, role := range c.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// Permissions returns every permission ordered by name.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, 0, len(c.permissions))
	for _, p := range c.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RolePermissions returns the permission names assigned to a role.
func (c *Catalog) RolePermissions(name RoleName) []string {
	perms := c.assignments[name]
	out := make([]string, len(perms))
	copy(out, perms)
	sort.Strings(out)
	return out
}

// LowestRole returns the least privileged role in the catalog. Used as the
// fallback tier when group synchronisation fails.
func (c *Catalog) LowestRole() RoleName {
	var lowest Role
	first := true
	for _, role := range c.roles {
		if first || role.Level < lowest.Level {
			lowest = role
			first = false
		}
	}
	return lowest.Name
}

// TopRole returns the most privileged role in the catalog.
func (c *Catalog) TopRole() RoleName {
	var top Role
	for _, role := range c.roles {
		if role.Level > top.Level {
			top = role
		}
	}
	return top.Name
}

func defaultRoles() []Role {
	return []Role{
		{Name: RoleUser, Description: "Read-only access to own resources", System: true, Level: 10},
		{Name: RoleOperator, Description: "Day-to-day network operations", System: true, Level: 20},
		{Name: RoleAuditor, Description: "Operations plus audit trail access", System: true, Level: 30},
		{Name: RoleAdmin, Description: "Full network administration", System: true, Level: 40},
		{Name: RoleOwner, Description: "Unrestricted control including role management", System: true, Level: 50},
	}
}

func defaultPermissions() []Permission {
	resources := map[Resource][]ActionKind{
		ResourceNodes:   {ActionView, ActionEdit, ActionDelete},
		ResourceRoutes:  {ActionView, ActionEdit},
		ResourceACL:     {ActionView, ActionEdit},
		ResourceKeys:    {ActionView, ActionEdit},
		ResourceAPIKeys: {ActionView, ActionEdit, ActionDelete},
		ResourceUsers:   {ActionView, ActionEdit},
		ResourceRoles:   {ActionView, ActionEdit},
		ResourceAudit:   {ActionView},
	}
	var perms []Permission
	for res, actions := range resources {
		for _, act := range actions {
			perms = append(perms, Permission{
				Name:     fmt.Sprintf("%s:%s", res, act),
				Resource: res,
				Action:   act,
			})
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms
}

func defaultAssignments() []Assignment {
	grants := map[RoleName][]string{
		RoleUser: {"nodes:view", "routes:view"},
		RoleOperator: {
			"nodes:view", "nodes:edit", "routes:view", "routes:edit",
			"keys:view", "keys:edit", "users:view",
		},
		RoleAuditor: {
			"nodes:view", "nodes:edit", "routes:view", "routes:edit",
			"keys:view", "keys:edit", "users:view", "acl:view", "audit:view",
		},
		RoleAdmin: {
			"nodes:view", "nodes:edit", "nodes:delete", "routes:view", "routes:edit",
			"keys:view", "keys:edit", "users:view", "users:edit", "acl:view", "acl:edit",
			"audit:view", "apikeys:view", "apikeys:edit", "apikeys:delete",
		},
		RoleOwner: {
			"nodes:view", "nodes:edit", "nodes:delete", "routes:view", "routes:edit",
			"keys:view", "keys:edit", "users:view", "users:edit", "acl:view", "acl:edit",
			"audit:view", "apikeys:view", "apikeys:edit", "apikeys:delete",
			"roles:view", "roles:edit",
		},
	}
	var out []Assignment
	for _, role := range defaultRoles() {
		for _, perm := range grants[role.Name] {
			out = append(out, Assignment{Role: role.Name, Permission: perm})
		}
	}
	return out
}

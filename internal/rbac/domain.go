package rbac

// RoleName identifies one of the tiered authorization roles.
type RoleName string

// Built-in role tiers ordered by hierarchy level.
const (
	RoleUser     RoleName = "USER"
	RoleOperator RoleName = "OPERATOR"
	RoleAuditor  RoleName = "AUDITOR"
	RoleAdmin    RoleName = "ADMIN"
	RoleOwner    RoleName = "OWNER"
)

// Role represents a high-level authorization tier.
type Role struct {
	Name        RoleName
	Description string
	System      bool
	Level       int
}

// Resource categorises the object a permission applies to.
type Resource string

// Resource categories.
const (
	ResourceNodes   Resource = "nodes"
	ResourceRoutes  Resource = "routes"
	ResourceACL     Resource = "acl"
	ResourceKeys    Resource = "keys"
	ResourceAPIKeys Resource = "apikeys"
	ResourceUsers   Resource = "users"
	ResourceRoles   Resource = "roles"
	ResourceAudit   Resource = "audit"
)

// ActionKind categorises what a permission allows on its resource.
type ActionKind string

// Action kinds.
const (
	ActionView   ActionKind = "view"
	ActionEdit   ActionKind = "edit"
	ActionDelete ActionKind = "delete"
)

// Permission represents an atomic resource:action capability.
type Permission struct {
	Name     string
	Resource Resource
	Action   ActionKind
}

// Assignment ties a permission to a role.
type Assignment struct {
	Role       RoleName
	Permission string
}

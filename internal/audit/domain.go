package audit

import (
	"fmt"
	"time"
)

// Action enumerates every state-changing operation the gateway records.
type Action string

// Audited actions.
const (
	ActionUserLogin        Action = "USER_LOGIN"
	ActionAssignRole       Action = "ASSIGN_ROLE"
	ActionRevokeRole       Action = "REVOKE_ROLE"
	ActionExpireNode       Action = "EXPIRE_NODE"
	ActionRenameNode       Action = "RENAME_NODE"
	ActionDeleteNode       Action = "DELETE_NODE"
	ActionEnableRoute      Action = "ENABLE_ROUTE"
	ActionDisableRoute     Action = "DISABLE_ROUTE"
	ActionUpdateACL        Action = "UPDATE_ACL"
	ActionCreatePreAuthKey Action = "CREATE_PREAUTH_KEY"
	ActionExpirePreAuthKey Action = "EXPIRE_PREAUTH_KEY"
	ActionCreateAPIKey     Action = "CREATE_API_KEY"
	ActionExpireAPIKey     Action = "EXPIRE_API_KEY"
	ActionDeleteAPIKey     Action = "DELETE_API_KEY"
)

// ResourceType enumerates the resource categories an entry can reference.
type ResourceType string

// Audited resource types.
const (
	ResourceNode    ResourceType = "NODE"
	ResourceRoute   ResourceType = "ROUTE"
	ResourceACL     ResourceType = "ACL"
	ResourceKey     ResourceType = "KEY"
	ResourceUser    ResourceType = "USER"
	ResourceRole    ResourceType = "ROLE"
	ResourceSetting ResourceType = "SETTING"
	ResourceAPIKey  ResourceType = "API_KEY"
)

// Entry is one immutable audit record. Once written it is never updated or
// deleted through any exposed operation.
type Entry struct {
	ID           int64          `json:"id"`
	Action       Action         `json:"action"`
	ActorID      int64          `json:"actorId"`
	ActorEmail   string         `json:"actorEmail,omitempty"`
	Origin       string         `json:"origin"`
	ResourceType ResourceType   `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	OldValue     string         `json:"oldValue,omitempty"`
	NewValue     string         `json:"newValue,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Validate checks that the entry names a known action and resource type.
func (e Entry) Validate() error {
	if !ValidAction(e.Action) {
		return fmt.Errorf("audit: unknown action %q", e.Action)
	}
	if !ValidResourceType(e.ResourceType) {
		return fmt.Errorf("audit: unknown resource type %q", e.ResourceType)
	}
	if e.ResourceID == "" {
		return fmt.Errorf("audit: resource id required")
	}
	return nil
}

// Actions returns every valid action name.
func Actions() []Action {
	return []Action{
		ActionUserLogin, ActionAssignRole, ActionRevokeRole,
		ActionExpireNode, ActionRenameNode, ActionDeleteNode,
		ActionEnableRoute, ActionDisableRoute, ActionUpdateACL,
		ActionCreatePreAuthKey, ActionExpirePreAuthKey,
		ActionCreateAPIKey, ActionExpireAPIKey, ActionDeleteAPIKey,
	}
}

// ResourceTypes returns every valid resource type name.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceNode, ResourceRoute, ResourceACL, ResourceKey,
		ResourceUser, ResourceRole, ResourceSetting, ResourceAPIKey,
	}
}

// ValidAction reports whether a is a member of the closed action enum.
func ValidAction(a Action) bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// ValidResourceType reports whether rt is a member of the closed enum.
func ValidResourceType(rt ResourceType) bool {
	for _, known := range ResourceTypes() {
		if rt == known {
			return true
		}
	}
	return false
}

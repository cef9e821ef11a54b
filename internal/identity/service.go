package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/meshgate/meshgate/internal/rbac"
)

// ErrRoleSyncDegraded indicates that role synchronisation failed and the
// session was downgraded to the lowest privilege tier.
var ErrRoleSyncDegraded = errors.New("identity: role sync degraded")

// GroupMap maps identity provider group names to internal roles. Groups
// without a mapping are ignored during synchronisation.
type GroupMap map[string]rbac.RoleName

// DefaultGroupMap returns the built-in provider group to role table.
func DefaultGroupMap() GroupMap {
	return GroupMap{
		"vpn-users":     rbac.RoleUser,
		"vpn-operators": rbac.RoleOperator,
		"vpn-auditors":  rbac.RoleAuditor,
		"vpn-admins":    rbac.RoleAdmin,
	}
}

// Service reconciles externally asserted identity with internal membership.
type Service struct {
	repo    Repository
	catalog *rbac.Catalog
	groups  GroupMap
	logger  *slog.Logger
}

// NewService constructs an identity Service.
func NewService(repo Repository, catalog *rbac.Catalog, groups GroupMap, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, groups: groups, logger: logger}
}

// SyncRoles upserts the user keyed by the external subject and replaces its
// role membership with the mapped group set. When the membership write fails
// the login is downgraded to the lowest tier and ErrRoleSyncDegraded is
// returned alongside the user so the caller can log the gap.
func (s *Service) SyncRoles(ctx context.Context, subject, email, name string, groups []string) (User, []rbac.RoleName, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return User{}, nil, fmt.Errorf("identity: subject required")
	}
	user, err := s.repo.UpsertUser(ctx, subject, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(name))
	if err != nil {
		return User{}, nil, err
	}
	roles := s.MapGroups(groups)
	if err := s.repo.ReplaceUserRoles(ctx, user.ID, roles); err != nil {
		s.logger.Error("role sync failed, downgrading session",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err))
		return user, []rbac.RoleName{s.catalog.LowestRole()}, fmt.Errorf("%w: %v", ErrRoleSyncDegraded, err)
	}
	return user, roles, nil
}

// MapGroups translates asserted group names into the deduplicated internal
// role set. Unmapped groups are ignored, not errors.
func (s *Service) MapGroups(groups []string) []rbac.RoleName {
	seen := make(map[rbac.RoleName]struct{}, len(groups))
	var roles []rbac.RoleName
	for _, g := range groups {
		role, ok := s.groups[strings.TrimSpace(g)]
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// EnsureOwnerExists grants the top tier role to userID when the system has no
// holder yet. Safe under concurrent logins: the conditional insert plus the
// owner singleton index guarantee exactly one bootstrap owner.
func (s *Service) EnsureOwnerExists(ctx context.Context, userID int64) error {
	granted, err := s.repo.GrantOwnerIfAbsent(ctx, userID, s.catalog.TopRole())
	if err != nil {
		return err
	}
	if granted {
		s.logger.Info("bootstrap owner granted", slog.Int64("user_id", userID))
	}
	return nil
}

// Roles returns the user's current membership from the store.
func (s *Service) Roles(ctx context.Context, userID int64) ([]rbac.RoleName, error) {
	return s.repo.UserRoles(ctx, userID)
}

// User fetches a user by id.
func (s *Service) User(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// AssignRole grants a catalog role to a user.
func (s *Service) AssignRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	if _, ok := s.catalog.Role(role); !ok {
		return fmt.Errorf("identity: unknown role %q", role)
	}
	return s.repo.GrantRole(ctx, userID, role)
}

// RevokeRole removes a catalog role from a user.
func (s *Service) RevokeRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	if _, ok := s.catalog.Role(role); !ok {
		return fmt.Errorf("identity: unknown role %q", role)
	}
	return s.repo.RevokeRole(ctx, userID, role)
}

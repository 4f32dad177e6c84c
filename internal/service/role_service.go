// Package service provides business logic services for Sentinel Identity.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// RoleService handles role and membership management.
type RoleService struct {
	roleRepo repository.RoleRepository
	logger   zerolog.Logger
}

// NewRoleService creates a new RoleService.
func NewRoleService(roleRepo repository.RoleRepository, logger zerolog.Logger) *RoleService {
	return &RoleService{
		roleRepo: roleRepo,
		logger:   logger.With().Str("service", "role").Logger(),
	}
}

// CreateRoleInput contains the data needed to create a role.
type CreateRoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// Create creates a new role with its permissions.
func (s *RoleService) Create(ctx context.Context, input CreateRoleInput) (*domain.Role, error) {
	if input.Name == "" {
		return nil, ErrInvalidRoleName
	}

	role := domain.NewRole(input.Name, input.Description, input.Permissions)

	if err := s.roleRepo.Create(ctx, role); err != nil {
		if errors.Is(err, domain.ErrRoleAlreadyExists) {
			return nil, ErrRoleAlreadyExists
		}
		s.logger.Error().Err(err).Str("role", input.Name).Msg("failed to create role")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("role", role.Name).Int("permissions", len(role.Permissions)).Msg("role created")
	return role, nil
}

// GetByName retrieves a role by name.
func (s *RoleService) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return role, nil
}

// List returns all roles.
func (s *RoleService) List(ctx context.Context) ([]*domain.Role, error) {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list roles")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return roles, nil
}

// Delete deletes a role and its memberships.
func (s *RoleService) Delete(ctx context.Context, name string) error {
	if err := s.roleRepo.Delete(ctx, name); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.logger.Info().Str("role", name).Msg("role deleted")
	return nil
}

// Grant assigns the role to the account. Idempotent.
func (s *RoleService) Grant(ctx context.Context, accountID int64, roleName string) error {
	if err := s.roleRepo.AssignToAccount(ctx, accountID, roleName); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return ErrRoleNotFound
		}
		s.logger.Error().Err(err).Int64("account_id", accountID).Str("role", roleName).Msg("failed to grant role")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.logger.Info().Int64("account_id", accountID).Str("role", roleName).Msg("role granted")
	return nil
}

// Revoke removes the role from the account.
func (s *RoleService) Revoke(ctx context.Context, accountID int64, roleName string) error {
	if err := s.roleRepo.RemoveFromAccount(ctx, accountID, roleName); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.logger.Info().Int64("account_id", accountID).Str("role", roleName).Msg("role revoked")
	return nil
}

// RolesFor returns the names of all roles the account belongs to.
func (s *RoleService) RolesFor(ctx context.Context, accountID int64) ([]string, error) {
	roles, err := s.roleRepo.RolesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return roles, nil
}

// Provider returns a domain.RoleProvider bound to the given context. Lookup
// failures read as absence of membership; they are logged, not surfaced,
// because the provider feeds display and admin checks rather than the
// authentication gate.
func (s *RoleService) Provider(ctx context.Context) domain.RoleProvider {
	return &roleProvider{ctx: ctx, svc: s}
}

type roleProvider struct {
	ctx context.Context
	svc *RoleService
}

var _ domain.RoleProvider = (*roleProvider)(nil)

func (p *roleProvider) HasRole(accountID int64, name string) bool {
	has, err := p.svc.roleRepo.HasRole(p.ctx, accountID, name)
	if err != nil {
		p.svc.logger.Warn().Err(err).Int64("account_id", accountID).Str("role", name).Msg("role lookup failed")
		return false
	}
	return has
}

func (p *roleProvider) PermissionsFor(accountID int64) []string {
	perms, err := p.svc.roleRepo.PermissionsForAccount(p.ctx, accountID)
	if err != nil {
		p.svc.logger.Warn().Err(err).Int64("account_id", accountID).Msg("permission lookup failed")
		return nil
	}
	return perms
}

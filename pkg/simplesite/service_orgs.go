package simplesite

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// duplicateAs maps a repository ErrDuplicate onto a field-scoped validation error.
func duplicateAs(err error, field, message string) error {
	if errors.Is(err, ErrDuplicate) {
		return NewValidationError(field, message)
	}
	return err
}

func validateEmail(v *ValidationError, email string) {
	if email == "" {
		v.Add("email", "is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "must be a valid email address")
	}
}

func validatePassword(v *ValidationError, password string) {
	if len(password) < minPasswordLength {
		v.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *service) RegisterUser(ctx context.Context, req RegisterUserRequest) (*User, *Organisation, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)

	v := &ValidationError{}
	if name == "" {
		v.Add("name", "is required")
	}
	validateEmail(v, email)
	validatePassword(v, req.Password)
	if v.HasErrors() {
		return nil, nil, v
	}

	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		return nil, nil, NewValidationError("email", "has already been taken")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	now := s.timestamp()
	user := &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		return nil, nil, duplicateAs(err, "email", "has already been taken")
	}

	// Every user gets a personal organisation; the id suffix keeps its slug unique.
	org := &Organisation{
		ID:        uuid.New(),
		Name:      name + "'s organisation",
		Slug:      Slugify(name) + "-" + user.ID.String()[:8],
		Personal:  true,
		OwnerID:   user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.createOrganisationWithOwner(ctx, org); err != nil {
		return nil, nil, err
	}

	return user, org, nil
}

func (s *service) createOrganisationWithOwner(ctx context.Context, org *Organisation) error {
	if err := s.repository.CreateOrganisation(ctx, org); err != nil {
		return duplicateAs(err, "name", "is already taken")
	}
	return s.repository.UpsertMembership(ctx, &Membership{
		OrganisationID: org.ID,
		UserID:         org.OwnerID,
		Role:           RoleOwner,
		CreatedAt:      org.CreatedAt,
	})
}

func (s *service) AuthenticateUser(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repository.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !checkPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repository.GetUser(ctx, id)
}

func (s *service) CreateOrganisation(ctx context.Context, userID uuid.UUID, req CreateOrganisationRequest) (*Organisation, error) {
	name := strings.TrimSpace(req.Name)
	orgSlug := Slugify(name)
	if name == "" || orgSlug == "" {
		return nil, NewValidationError("name", "is required")
	}
	if _, err := s.repository.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.timestamp()
	org := &Organisation{
		ID:        uuid.New(),
		Name:      name,
		Slug:      orgSlug,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.createOrganisationWithOwner(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *service) ListOrganisationsForUser(ctx context.Context, userID uuid.UUID) ([]*Organisation, error) {
	return s.repository.ListOrganisationsForUser(ctx, userID)
}

func (s *service) ResolveScope(ctx context.Context, orgID, userID uuid.UUID) (Scope, error) {
	org, err := s.repository.GetOrganisation(ctx, orgID)
	if err != nil {
		return Scope{}, err
	}
	m, err := s.repository.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Scope{}, &ForbiddenError{Op: "access organisation", Required: RoleViewer}
		}
		return Scope{}, err
	}
	return Scope{Organisation: org, UserID: userID, Role: m.Role}, nil
}

func (s *service) AddMember(ctx context.Context, scope Scope, req AddMemberRequest) (*Membership, error) {
	if err := scope.Require("add member", RoleAdmin); err != nil {
		return nil, err
	}
	if !req.Role.IsValid() {
		return nil, NewValidationError("role", "is not a valid role")
	}
	if req.Role == RoleOwner && scope.Role != RoleOwner {
		return nil, &ForbiddenError{Op: "grant owner role", Required: RoleOwner, Actual: scope.Role}
	}

	user, err := s.repository.GetUserByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewValidationError("email", "does not belong to a registered user")
		}
		return nil, err
	}

	m := &Membership{
		OrganisationID: scope.OrganisationID(),
		UserID:         user.ID,
		Role:           req.Role,
		CreatedAt:      s.timestamp(),
	}
	if err := s.repository.UpsertMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) RemoveMember(ctx context.Context, scope Scope, userID uuid.UUID) error {
	if err := scope.Require("remove member", RoleAdmin); err != nil {
		return err
	}
	if userID == scope.Organisation.OwnerID {
		return NewValidationError("user_id", "the organisation owner cannot be removed")
	}
	return s.repository.DeleteMembership(ctx, scope.OrganisationID(), userID)
}

func (s *service) ListMembers(ctx context.Context, scope Scope) ([]*Membership, error) {
	if err := scope.Require("list members", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListMemberships(ctx, scope.OrganisationID())
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"sikap/api/internal/authpw"
	"sikap/api/internal/importer"
	"sikap/api/internal/rbac"
	"sikap/api/internal/store"
)

type UserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   int64  `json:"roleId"`
	Role     string `json:"role"`
	IsActive *bool  `json:"isActive"`
}

func requireAction(session Session, action rbac.Action) error {
	if !session.can(action) {
		return forbidden()
	}
	return nil
}

var (
	errEmailExists      = domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	errCannotDeleteSelf = domainError(http.StatusBadRequest, "CANNOT_DELETE_SELF", "You cannot delete your own account", nil)
)

// resolveRole picks the role by id, else by name. ok is false when neither
// was given.
func (s *Service) resolveRole(ctx context.Context, input UserInput) (store.Role, bool, error) {
	var (
		role store.Role
		err  error
	)
	switch {
	case input.RoleID > 0:
		role, err = s.store.GetRoleByID(ctx, input.RoleID)
	case strings.TrimSpace(input.Role) != "":
		role, err = s.store.GetRoleByName(ctx, strings.ToLower(strings.TrimSpace(input.Role)))
	default:
		return store.Role{}, false, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Role{}, false, validationError("unknown role")
	}
	if err != nil {
		return store.Role{}, false, err
	}
	return role, true, nil
}

func (s *Service) ListUsers(ctx context.Context, session Session, params store.ListParams) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	users, total, err := s.store.ListUsers(ctx, params)
	if err != nil {
		return nil, err
	}
	return paged(mapEach(users, userPayload), total, params), nil
}

func (s *Service) GetUser(ctx context.Context, session Session, id int64) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) CreateUser(ctx context.Context, session Session, input UserInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if input.Name == "" || input.Email == "" || input.Password == "" {
		return nil, validationError("name, email, password and role are required")
	}
	if len(input.Password) < authpw.MinPasswordLength {
		return nil, validationError(authpw.ErrWeakPassword.Error())
	}
	role, ok, err := s.resolveRole(ctx, input)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, validationError("name, email, password and role are required")
	}

	hash, err := s.auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	user, err := s.store.CreateUser(ctx, store.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     active,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errEmailExists
	}
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) UpdateUser(ctx context.Context, session Session, id int64, input UserInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = email
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	role, ok, err := s.resolveRole(ctx, input)
	if err != nil {
		return nil, err
	}
	if ok {
		user.RoleID = role.ID
	}
	if input.Password != "" && len(input.Password) < authpw.MinPasswordLength {
		return nil, validationError(authpw.ErrWeakPassword.Error())
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errEmailExists
		}
		return nil, err
	}
	if input.Password != "" {
		hash, err := s.auth.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateUserPassword(ctx, id, hash); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return userPayload(updated), nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, id int64) error {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return err
	}
	if id == session.UserID {
		return errCannotDeleteSelf
	}
	deleted, err := s.store.DeleteUsers(ctx, []int64{id})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return notFound("User")
	}
	return nil
}

func (s *Service) BulkDeleteUsers(ctx context.Context, session Session, ids []int64) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionUserManage); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, validationError("ids are required")
	}
	for _, id := range ids {
		if id == session.UserID {
			return nil, errCannotDeleteSelf
		}
	}
	deleted, err := s.store.DeleteUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}

func (s *Service) ImportUsers(ctx context.Context, session Session, data []byte) (importer.Result, error) {
	if err := requireAction(session, rbac.ActionUserImport); err != nil {
		return importer.Result{}, err
	}
	result, err := importer.Users(ctx, s.store, s.auth.HashPassword, data, s.log)
	if errors.Is(err, importer.ErrEmpty) {
		return importer.Result{}, errEmptyImport
	}
	return result, err
}

var errEmptyImport = domainError(http.StatusBadRequest, "EMPTY_IMPORT", "The file has no data rows", nil)

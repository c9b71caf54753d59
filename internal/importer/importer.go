// Package importer loads links and users from simple comma-separated files.
//
// The format is deliberately naive: one record per line, a header line that
// is skipped, fields split on every comma, no quoting.
package importer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"sikap/api/internal/store"
)

// ErrEmpty is returned when nothing follows the header line.
var ErrEmpty = errors.New("import file has no data rows")

const (
	DefaultCategory = "General"
	DefaultRole     = "viewer"
)

// Result is the accounting summary returned for an import.
type Result struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Rows splits the payload into trimmed fields per data line.
func Rows(data []byte) ([][]string, error) {
	text := string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) <= 1 {
		return nil, ErrEmpty
	}

	rows := make([][]string, 0, len(kept)-1)
	for _, line := range kept[1:] {
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	return rows, nil
}

type LinkStore interface {
	GetCategoryByName(ctx context.Context, name string) (store.Category, error)
	CreateCategory(ctx context.Context, category store.Category) (store.Category, error)
	CreateLink(ctx context.Context, link store.Link) (store.Link, error)
}

// Links imports title,url,category rows. Missing categories are created;
// an empty category column means DefaultCategory.
func Links(ctx context.Context, s LinkStore, data []byte, log zerolog.Logger) (Result, error) {
	rows, err := Rows(data)
	if err != nil {
		return Result{}, err
	}

	result := Result{Total: len(rows)}
	categories := map[string]int64{}
	for line, fields := range rows {
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			result.Failed++
			continue
		}
		name := DefaultCategory
		if len(fields) > 2 && fields[2] != "" {
			name = fields[2]
		}

		categoryID, ok := categories[name]
		if !ok {
			categoryID, err = resolveCategory(ctx, s, name)
			if err != nil {
				log.Warn().Err(err).Int("row", line+2).Msg("import link: resolve category")
				result.Failed++
				continue
			}
			categories[name] = categoryID
		}

		if _, err := s.CreateLink(ctx, store.Link{Title: fields[0], URL: fields[1], CategoryID: categoryID, IsActive: true}); err != nil {
			log.Warn().Err(err).Int("row", line+2).Msg("import link: insert")
			result.Failed++
			continue
		}
		result.Success++
	}
	return result, nil
}

func resolveCategory(ctx context.Context, s LinkStore, name string) (int64, error) {
	category, err := s.GetCategoryByName(ctx, name)
	if err == nil {
		return category.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	category, err = s.CreateCategory(ctx, store.Category{Name: name})
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	return category.ID, nil
}

type UserStore interface {
	GetRoleByName(ctx context.Context, name string) (store.Role, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// PasswordHasher turns a plaintext password into its stored hash.
type PasswordHasher func(password string) (string, error)

// Users imports name,email,password,role rows as active accounts. Unknown or
// empty roles fall back to DefaultRole; existing emails count as failures.
func Users(ctx context.Context, s UserStore, hash PasswordHasher, data []byte, log zerolog.Logger) (Result, error) {
	rows, err := Rows(data)
	if err != nil {
		return Result{}, err
	}

	result := Result{Total: len(rows)}
	roles := map[string]int64{}
	for line, fields := range rows {
		if len(fields) < 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
			result.Failed++
			continue
		}
		roleName := DefaultRole
		if len(fields) > 3 && fields[3] != "" {
			roleName = strings.ToLower(fields[3])
		}

		roleID, ok := roles[roleName]
		if !ok {
			roleID, err = resolveRole(ctx, s, roleName)
			if err != nil {
				log.Warn().Err(err).Int("row", line+2).Msg("import user: resolve role")
				result.Failed++
				continue
			}
			roles[roleName] = roleID
		}

		passwordHash, err := hash(fields[2])
		if err != nil {
			log.Warn().Err(err).Int("row", line+2).Msg("import user: hash password")
			result.Failed++
			continue
		}
		_, err = s.CreateUser(ctx, store.User{
			Name:         fields[0],
			Email:        fields[1],
			PasswordHash: passwordHash,
			RoleID:       roleID,
			IsActive:     true,
		})
		if err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				log.Warn().Err(err).Int("row", line+2).Msg("import user: insert")
			}
			result.Failed++
			continue
		}
		result.Success++
	}
	return result, nil
}

func resolveRole(ctx context.Context, s UserStore, name string) (int64, error) {
	role, err := s.GetRoleByName(ctx, name)
	if err == nil {
		return role.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	role, err = s.GetRoleByName(ctx, DefaultRole)
	if err != nil {
		return 0, fmt.Errorf("resolve fallback role: %w", err)
	}
	return role.ID, nil
}

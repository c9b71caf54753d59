package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const folderColumns = `
	f.id, f.name, f.owner_id, u.name, f.parent_id, f.created_at,
	(SELECT COUNT(*) FROM archives a WHERE a.folder_id = f.id)`

const folderFrom = ` FROM folders f JOIN users u ON u.id = f.owner_id `

func scanFolder(row rowScanner) (Folder, error) {
	var (
		folder Folder
		parent sql.NullInt64
	)
	if err := row.Scan(&folder.ID, &folder.Name, &folder.OwnerID, &folder.OwnerName, &parent, &folder.CreatedAt, &folder.ArchiveCount); err != nil {
		return Folder{}, err
	}
	folder.ParentID = int64Ptr(parent)
	return folder, nil
}

func (s *PostgresStore) queryFolders(ctx context.Context, op, query string, args ...any) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, folder)
	}
	return items, rows.Err()
}

func (s *PostgresStore) shareIDs(ctx context.Context, query string, id int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list share ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan share id: %w", err)
		}
		ids = append(ids, userID)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CreateFolder(ctx context.Context, folder Folder) (Folder, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO folders (name, owner_id, parent_id) VALUES ($1, $2, $3) RETURNING id
	`, folder.Name, folder.OwnerID, nullableInt64(folder.ParentID)).Scan(&id)
	if err != nil {
		return Folder{}, fmt.Errorf("insert folder: %w", classify(err))
	}
	return s.GetFolder(ctx, id)
}

func (s *PostgresStore) GetFolder(ctx context.Context, id int64) (Folder, error) {
	folder, err := scanFolder(s.db.QueryRowContext(ctx, `SELECT `+folderColumns+folderFrom+`WHERE f.id = $1`, id))
	if err != nil {
		return Folder{}, err
	}
	folder.SharedWith, err = s.shareIDs(ctx, `SELECT user_id FROM folder_shares WHERE folder_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return Folder{}, err
	}
	return folder, nil
}

func (s *PostgresStore) ListFolders(ctx context.Context, filter FolderFilter) ([]Folder, int, error) {
	params := filter.ListParams.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.All {
		viewer := arg(filter.ViewerID)
		where = append(where, fmt.Sprintf(`(f.owner_id = %s OR EXISTS (
			SELECT 1 FROM folder_shares fs WHERE fs.folder_id = f.id AND fs.user_id = %s))`, viewer, viewer))
	}
	if pattern := likePattern(params.Search); pattern != "" {
		where = append(where, "f.name ILIKE "+arg(pattern))
	}
	switch {
	case filter.ParentID != nil:
		where = append(where, "f.parent_id = "+arg(*filter.ParentID))
	case filter.RootOnly:
		where = append(where, "f.parent_id IS NULL")
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders f `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count folders: %w", err)
	}

	limit := arg(params.Limit)
	offset := arg(params.Offset())
	items, err := s.queryFolders(ctx, "list folders", `
		SELECT `+folderColumns+folderFrom+clause+`
		ORDER BY f.created_at DESC, f.id DESC
		LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListSubfolders(ctx context.Context, parentID int64) ([]Folder, error) {
	folders, err := s.queryFolders(ctx, "list subfolders", `
		SELECT `+folderColumns+folderFrom+`
		WHERE f.parent_id = $1
		ORDER BY f.created_at DESC, f.id DESC
	`, parentID)
	if err != nil {
		return nil, err
	}
	for i := range folders {
		folders[i].SharedWith, err = s.shareIDs(ctx, `SELECT user_id FROM folder_shares WHERE folder_id = $1 ORDER BY user_id`, folders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return folders, nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, id int64, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE folders SET name=$2 WHERE id=$1`, id, name)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	return affectedOrNotFound(result, "rename folder")
}

// DeleteFolders removes the folders together with their subfolder trees and
// archives, returning the stored file paths of every removed archive.
func (s *PostgresStore) DeleteFolders(ctx context.Context, ids []int64) ([]string, error) {
	paths := make([]string, 0)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			WITH RECURSIVE tree AS (
				SELECT id FROM folders WHERE id = ANY($1)
				UNION
				SELECT f.id FROM folders f JOIN tree t ON f.parent_id = t.id
			)
			SELECT a.file_path FROM archives a WHERE a.folder_id IN (SELECT id FROM tree)
		`, ids)
		if err != nil {
			return fmt.Errorf("collect archive files: %w", err)
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return fmt.Errorf("scan archive file: %w", err)
			}
			paths = append(paths, path)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("delete folders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// ReplaceFolderShares swaps the whole share list in one transaction.
func (s *PostgresStore) ReplaceFolderShares(ctx context.Context, folderID int64, userIDs []int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM folder_shares WHERE folder_id = $1`, folderID); err != nil {
			return fmt.Errorf("clear folder shares: %w", err)
		}
		if len(userIDs) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO folder_shares (folder_id, user_id)
			SELECT $1, UNNEST($2::bigint[])
			ON CONFLICT DO NOTHING
		`, folderID, userIDs); err != nil {
			return fmt.Errorf("insert folder shares: %w", classify(err))
		}
		return nil
	})
}

func (s *PostgresStore) ListFolderShares(ctx context.Context, folderID int64) ([]User, error) {
	return s.queryUsers(ctx, "list folder shares", `
		SELECT `+userColumns+userFrom+`
		JOIN folder_shares fs ON fs.user_id = u.id
		WHERE fs.folder_id = $1
		ORDER BY u.name ASC
	`, folderID)
}

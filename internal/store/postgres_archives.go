package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const archiveColumns = `
	a.id, a.title, a.file_path, a.file_name, a.file_type, a.file_size,
	a.folder_id, f.owner_id, a.uploader_id, u.name, a.created_at`

const archiveFrom = `
	FROM archives a
	JOIN folders f ON f.id = a.folder_id
	JOIN users u ON u.id = a.uploader_id `

func scanArchive(row rowScanner) (Archive, error) {
	var archive Archive
	err := row.Scan(
		&archive.ID, &archive.Title, &archive.FilePath, &archive.FileName, &archive.FileType, &archive.FileSize,
		&archive.FolderID, &archive.FolderOwnerID, &archive.UploaderID, &archive.UploaderName, &archive.CreatedAt,
	)
	if err != nil {
		return Archive{}, err
	}
	return archive, nil
}

func (s *PostgresStore) queryArchives(ctx context.Context, op, query string, args ...any) ([]Archive, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Archive, 0)
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		items = append(items, archive)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// attachArchiveShares fills SharedWith for every archive with one query.
func (s *PostgresStore) attachArchiveShares(ctx context.Context, archives []Archive) error {
	if len(archives) == 0 {
		return nil
	}
	ids := make([]int64, len(archives))
	index := make(map[int64]int, len(archives))
	for i, archive := range archives {
		ids[i] = archive.ID
		index[archive.ID] = i
		archives[i].SharedWith = make([]int64, 0)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT archive_id, user_id FROM archive_shares
		WHERE archive_id = ANY($1)
		ORDER BY archive_id, user_id
	`, ids)
	if err != nil {
		return fmt.Errorf("list archive shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var archiveID, userID int64
		if err := rows.Scan(&archiveID, &userID); err != nil {
			return fmt.Errorf("scan archive share: %w", err)
		}
		if i, ok := index[archiveID]; ok {
			archives[i].SharedWith = append(archives[i].SharedWith, userID)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) CreateArchive(ctx context.Context, archive Archive) (Archive, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO archives (title, file_path, file_name, file_type, file_size, folder_id, uploader_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, archive.Title, archive.FilePath, archive.FileName, archive.FileType, archive.FileSize, archive.FolderID, archive.UploaderID).Scan(&id)
	if err != nil {
		return Archive{}, fmt.Errorf("insert archive: %w", classify(err))
	}
	return s.GetArchive(ctx, id)
}

func (s *PostgresStore) GetArchive(ctx context.Context, id int64) (Archive, error) {
	archive, err := scanArchive(s.db.QueryRowContext(ctx, `SELECT `+archiveColumns+archiveFrom+`WHERE a.id = $1`, id))
	if err != nil {
		return Archive{}, err
	}
	items := []Archive{archive}
	if err := s.attachArchiveShares(ctx, items); err != nil {
		return Archive{}, err
	}
	return items[0], nil
}

func (s *PostgresStore) GetArchives(ctx context.Context, ids []int64) ([]Archive, error) {
	items, err := s.queryArchives(ctx, "get archives", `
		SELECT `+archiveColumns+archiveFrom+`
		WHERE a.id = ANY($1)
		ORDER BY a.created_at DESC, a.id DESC
	`, ids)
	if err != nil {
		return nil, err
	}
	return items, s.attachArchiveShares(ctx, items)
}

func (s *PostgresStore) ListFolderArchives(ctx context.Context, folderID int64) ([]Archive, error) {
	items, err := s.queryArchives(ctx, "list folder archives", `
		SELECT `+archiveColumns+archiveFrom+`
		WHERE a.folder_id = $1
		ORDER BY a.created_at DESC, a.id DESC
	`, folderID)
	if err != nil {
		return nil, err
	}
	return items, s.attachArchiveShares(ctx, items)
}

func (s *PostgresStore) DeleteArchives(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM archives WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete archives: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete archives rows: %w", err)
	}
	return affected, nil
}

// ReplaceArchiveShares swaps the whole share list in one transaction.
func (s *PostgresStore) ReplaceArchiveShares(ctx context.Context, archiveID int64, userIDs []int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM archive_shares WHERE archive_id = $1`, archiveID); err != nil {
			return fmt.Errorf("clear archive shares: %w", err)
		}
		if len(userIDs) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archive_shares (archive_id, user_id)
			SELECT $1, UNNEST($2::bigint[])
			ON CONFLICT DO NOTHING
		`, archiveID, userIDs); err != nil {
			return fmt.Errorf("insert archive shares: %w", classify(err))
		}
		return nil
	})
}

func (s *PostgresStore) ListArchiveShares(ctx context.Context, archiveID int64) ([]User, error) {
	return s.queryUsers(ctx, "list archive shares", `
		SELECT `+userColumns+userFrom+`
		JOIN archive_shares s ON s.user_id = u.id
		WHERE s.archive_id = $1
		ORDER BY u.name ASC
	`, archiveID)
}

func (s *PostgresStore) SearchArchives(ctx context.Context, q ArchiveQuery) ([]Archive, error) {
	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if pattern := likePattern(q.Text); pattern != "" {
		p := arg(pattern)
		where = append(where, fmt.Sprintf("(a.title ILIKE %s OR a.file_name ILIKE %s)", p, p))
	}
	if q.FolderID != nil {
		where = append(where, "a.folder_id = "+arg(*q.FolderID))
	}
	if !q.All {
		viewer := arg(q.ViewerID)
		where = append(where, fmt.Sprintf(`(a.uploader_id = %s OR f.owner_id = %s OR EXISTS (
			SELECT 1 FROM archive_shares s WHERE s.archive_id = a.id AND s.user_id = %s))`, viewer, viewer, viewer))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	items, err := s.queryArchives(ctx, "search archives", `
		SELECT `+archiveColumns+archiveFrom+clause+`
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT `+arg(limit), args...)
	if err != nil {
		return nil, err
	}
	return items, s.attachArchiveShares(ctx, items)
}

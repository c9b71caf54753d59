package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const categoryColumns = `
	c.id, c.name, c.in_charge_id, COALESCE(u.name, ''),
	(SELECT COUNT(*) FROM links l WHERE l.category_id = c.id)`

const categoryFrom = ` FROM categories c LEFT JOIN users u ON u.id = c.in_charge_id `

func scanCategory(row rowScanner) (Category, error) {
	var (
		category Category
		inCharge sql.NullInt64
	)
	if err := row.Scan(&category.ID, &category.Name, &inCharge, &category.InChargeName, &category.LinkCount); err != nil {
		return Category{}, err
	}
	category.InChargeID = int64Ptr(inCharge)
	return category, nil
}

func (s *PostgresStore) queryCategories(ctx context.Context, op, query string, args ...any) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, category)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListCategories(ctx context.Context, params ListParams) ([]Category, int, error) {
	params = params.Normalize()
	pattern := likePattern(params.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories c WHERE ($1 = '' OR c.name ILIKE $1)`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count categories: %w", err)
	}
	items, err := s.queryCategories(ctx, "list categories", `
		SELECT `+categoryColumns+categoryFrom+`
		WHERE ($1 = '' OR c.name ILIKE $1)
		ORDER BY c.name ASC, c.id ASC
		LIMIT $2 OFFSET $3
	`, pattern, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListAllCategories(ctx context.Context) ([]Category, error) {
	return s.queryCategories(ctx, "list all categories", `SELECT `+categoryColumns+categoryFrom+`ORDER BY c.name ASC, c.id ASC`)
}

func (s *PostgresStore) GetCategory(ctx context.Context, id int64) (Category, error) {
	return scanCategory(s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+categoryFrom+`WHERE c.id = $1`, id))
}

func (s *PostgresStore) GetCategoryByName(ctx context.Context, name string) (Category, error) {
	return scanCategory(s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+categoryFrom+`
		WHERE c.name = $1
		ORDER BY c.id ASC
		LIMIT 1
	`, name))
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category Category) (Category, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, in_charge_id) VALUES ($1, $2) RETURNING id
	`, category.Name, nullableInt64(category.InChargeID)).Scan(&id)
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", classify(err))
	}
	return s.GetCategory(ctx, id)
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, category Category) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name=$2, in_charge_id=$3 WHERE id=$1
	`, category.ID, category.Name, nullableInt64(category.InChargeID))
	if err != nil {
		return fmt.Errorf("update category: %w", classify(err))
	}
	return affectedOrNotFound(result, "update category")
}

// DeleteCategories fails with ErrReferenced when any category still has links.
func (s *PostgresStore) DeleteCategories(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete categories: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete categories rows: %w", err)
	}
	return affected, nil
}

const linkColumns = `l.id, l.title, l.url, l.category_id, c.name, l.is_active, l.created_at`

const linkFrom = ` FROM links l JOIN categories c ON c.id = l.category_id `

func scanLink(row rowScanner) (Link, error) {
	var link Link
	if err := row.Scan(&link.ID, &link.Title, &link.URL, &link.CategoryID, &link.CategoryName, &link.IsActive, &link.CreatedAt); err != nil {
		return Link{}, err
	}
	return link, nil
}

func (s *PostgresStore) queryLinks(ctx context.Context, op, query string, args ...any) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListLinks(ctx context.Context, filter LinkFilter) ([]Link, int, error) {
	params := filter.ListParams.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if pattern := likePattern(params.Search); pattern != "" {
		p := arg(pattern)
		where = append(where, fmt.Sprintf("(l.title ILIKE %s OR l.url ILIKE %s)", p, p))
	}
	if filter.CategoryID != nil {
		where = append(where, "l.category_id = "+arg(*filter.CategoryID))
	}
	if filter.Active != nil {
		where = append(where, "l.is_active = "+arg(*filter.Active))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links l `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count links: %w", err)
	}

	limit := arg(params.Limit)
	offset := arg(params.Offset())
	items, err := s.queryLinks(ctx, "list links", `
		SELECT `+linkColumns+linkFrom+clause+`
		ORDER BY l.id DESC
		LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListActiveLinks returns every active link grouped by category name.
func (s *PostgresStore) ListActiveLinks(ctx context.Context) ([]Link, error) {
	return s.queryLinks(ctx, "list active links", `
		SELECT `+linkColumns+linkFrom+`
		WHERE l.is_active
		ORDER BY c.name ASC, l.title ASC, l.id ASC
	`)
}

func (s *PostgresStore) GetLink(ctx context.Context, id int64) (Link, error) {
	return scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+linkFrom+`WHERE l.id = $1`, id))
}

func (s *PostgresStore) CreateLink(ctx context.Context, link Link) (Link, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO links (title, url, category_id, is_active) VALUES ($1, $2, $3, $4) RETURNING id
	`, link.Title, link.URL, link.CategoryID, link.IsActive).Scan(&id)
	if err != nil {
		return Link{}, fmt.Errorf("insert link: %w", classify(err))
	}
	return s.GetLink(ctx, id)
}

func (s *PostgresStore) UpdateLink(ctx context.Context, link Link) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE links SET title=$2, url=$3, category_id=$4, is_active=$5 WHERE id=$1
	`, link.ID, link.Title, link.URL, link.CategoryID, link.IsActive)
	if err != nil {
		return fmt.Errorf("update link: %w", classify(err))
	}
	return affectedOrNotFound(result, "update link")
}

func (s *PostgresStore) DeleteLinks(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete links rows: %w", err)
	}
	return affected, nil
}

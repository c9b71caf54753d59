package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"sikap/api/internal/export"
	"sikap/api/internal/importer"
	"sikap/api/internal/rbac"
	"sikap/api/internal/store"
)

type CategoryInput struct {
	Name       string `json:"name"`
	InChargeID *int64 `json:"inChargeId"`
}

type LinkInput struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	CategoryID int64  `json:"categoryId"`
	IsActive   *bool  `json:"isActive"`
}

var (
	errCategoryInUse  = domainError(http.StatusConflict, "CATEGORY_IN_USE", "Category still has links", nil)
	errPDFUnavailable = domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil)
)

// Categories

func (s *Service) ListCategories(ctx context.Context, params store.ListParams) (map[string]any, error) {
	categories, total, err := s.store.ListCategories(ctx, params)
	if err != nil {
		return nil, err
	}
	return paged(mapEach(categories, categoryPayload), total, params), nil
}

func (s *Service) GetCategory(ctx context.Context, id int64) (map[string]any, error) {
	category, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	return categoryPayload(category), nil
}

func (s *Service) CreateCategory(ctx context.Context, session Session, input CategoryInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || input.InChargeID == nil {
		return nil, validationError("name and inChargeId are required")
	}
	if err := s.checkUsersExist(ctx, []int64{*input.InChargeID}); err != nil {
		return nil, err
	}
	category, err := s.store.CreateCategory(ctx, store.Category{Name: name, InChargeID: input.InChargeID})
	if err != nil {
		return nil, err
	}
	return categoryPayload(category), nil
}

func (s *Service) UpdateCategory(ctx context.Context, session Session, id int64, input CategoryInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return nil, err
	}
	category, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		category.Name = name
	}
	if input.InChargeID != nil {
		if err := s.checkUsersExist(ctx, []int64{*input.InChargeID}); err != nil {
			return nil, err
		}
		category.InChargeID = input.InChargeID
	}
	if err := s.store.UpdateCategory(ctx, category); err != nil {
		return nil, err
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory refuses while any link still references the category.
func (s *Service) DeleteCategory(ctx context.Context, session Session, id int64) error {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return err
	}
	deleted, err := s.store.DeleteCategories(ctx, []int64{id})
	if errors.Is(err, store.ErrReferenced) {
		return errCategoryInUse
	}
	if err != nil {
		return err
	}
	if deleted == 0 {
		return notFound("Category")
	}
	return nil
}

// BulkDeleteCategories is all-or-nothing: one category in use fails the batch.
func (s *Service) BulkDeleteCategories(ctx context.Context, session Session, ids []int64) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, validationError("ids are required")
	}
	deleted, err := s.store.DeleteCategories(ctx, uniqueIDs(ids))
	if errors.Is(err, store.ErrReferenced) {
		return nil, errCategoryInUse
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}

func (s *Service) ExportCategoriesCSV(ctx context.Context, session Session) (*export.Result, error) {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return nil, err
	}
	return s.exports.CategoriesCSV(ctx)
}

func (s *Service) ExportLinkDirectoryPDF(ctx context.Context, session Session) (*export.Result, error) {
	if err := requireAction(session, rbac.ActionCategoryManage); err != nil {
		return nil, err
	}
	result, err := s.exports.DirectoryPDF(ctx)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, errPDFUnavailable
	}
	return result, err
}

// Links

func (s *Service) ListLinks(ctx context.Context, filter store.LinkFilter) (map[string]any, error) {
	links, total, err := s.store.ListLinks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return paged(mapEach(links, linkPayload), total, filter.ListParams), nil
}

// LandingLinks lists active links for the public landing page.
func (s *Service) LandingLinks(ctx context.Context) (map[string]any, error) {
	links, err := s.store.ListActiveLinks(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(links, linkPayload)}, nil
}

func (s *Service) GetLink(ctx context.Context, id int64) (map[string]any, error) {
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	return linkPayload(link), nil
}

func (s *Service) checkCategory(ctx context.Context, id int64) error {
	_, err := s.store.GetCategory(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return validationError("category does not exist")
	}
	return err
}

func (s *Service) CreateLink(ctx context.Context, session Session, input LinkInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionLinkWrite); err != nil {
		return nil, err
	}
	title, url := strings.TrimSpace(input.Title), strings.TrimSpace(input.URL)
	if title == "" || url == "" || input.CategoryID <= 0 {
		return nil, validationError("title, url and categoryId are required")
	}
	if err := s.checkCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	link, err := s.store.CreateLink(ctx, store.Link{Title: title, URL: url, CategoryID: input.CategoryID, IsActive: active})
	if err != nil {
		return nil, err
	}
	return linkPayload(link), nil
}

func (s *Service) UpdateLink(ctx context.Context, session Session, id int64, input LinkInput) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionLinkWrite); err != nil {
		return nil, err
	}
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		link.Title = title
	}
	if url := strings.TrimSpace(input.URL); url != "" {
		link.URL = url
	}
	if input.CategoryID > 0 && input.CategoryID != link.CategoryID {
		if err := s.checkCategory(ctx, input.CategoryID); err != nil {
			return nil, err
		}
		link.CategoryID = input.CategoryID
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if err := s.store.UpdateLink(ctx, link); err != nil {
		return nil, err
	}
	return s.GetLink(ctx, id)
}

func (s *Service) DeleteLink(ctx context.Context, session Session, id int64) error {
	if err := requireAction(session, rbac.ActionLinkWrite); err != nil {
		return err
	}
	deleted, err := s.store.DeleteLinks(ctx, []int64{id})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return notFound("Link")
	}
	return nil
}

func (s *Service) BulkDeleteLinks(ctx context.Context, session Session, ids []int64) (map[string]any, error) {
	if err := requireAction(session, rbac.ActionLinkWrite); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, validationError("ids are required")
	}
	deleted, err := s.store.DeleteLinks(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}

func (s *Service) ImportLinks(ctx context.Context, session Session, data []byte) (importer.Result, error) {
	if err := requireAction(session, rbac.ActionLinkWrite); err != nil {
		return importer.Result{}, err
	}
	result, err := importer.Links(ctx, s.store, data, s.log)
	if errors.Is(err, importer.ErrEmpty) {
		return importer.Result{}, errEmptyImport
	}
	return result, err
}

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"sikap/api/internal/store"
)

// DataStore is the read side the exports need.
type DataStore interface {
	ListAllCategories(ctx context.Context) ([]store.Category, error)
	ListActiveLinks(ctx context.Context) ([]store.Link, error)
}

// Service provides category and link exports
type Service struct {
	store DataStore
	now   func() time.Time
	pdf   func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, now: time.Now, pdf: renderPDF}
}

// CategoriesCSV lists every category name under a "Category Name" header.
func (s *Service) CategoriesCSV(ctx context.Context) (*Result, error) {
	categories, err := s.store.ListAllCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Category Name"}); err != nil {
		return nil, err
	}
	for _, category := range categories {
		if err := w.Write([]string{category.Name}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: "categories.csv",
		MimeType: "text/csv; charset=utf-8",
	}, nil
}

// Directory groups active links by category. Categories without active
// links are left out.
func (s *Service) Directory(ctx context.Context) (DirectoryData, error) {
	categories, err := s.store.ListAllCategories(ctx)
	if err != nil {
		return DirectoryData{}, fmt.Errorf("list categories: %w", err)
	}
	links, err := s.store.ListActiveLinks(ctx)
	if err != nil {
		return DirectoryData{}, fmt.Errorf("list links: %w", err)
	}

	inCharge := make(map[int64]string, len(categories))
	for _, category := range categories {
		inCharge[category.ID] = category.InChargeName
	}

	data := DirectoryData{Title: "Link Directory", GeneratedAt: s.now(), Groups: []DirectoryGroup{}}
	for _, link := range links {
		n := len(data.Groups)
		if n == 0 || data.Groups[n-1].Category != link.CategoryName {
			data.Groups = append(data.Groups, DirectoryGroup{
				Category: link.CategoryName,
				InCharge: inCharge[link.CategoryID],
			})
			n++
		}
		data.Groups[n-1].Links = append(data.Groups[n-1].Links, DirectoryLink{Title: link.Title, URL: link.URL})
	}
	return data, nil
}

// DirectoryPDF renders the link directory as a PDF. It fails with
// ErrPDFDependencyMissing when no browser is installed.
func (s *Service) DirectoryPDF(ctx context.Context) (*Result, error) {
	data, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	html, err := RenderDirectoryHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return s.pdf(ctx, html, data.Title)
}

package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"roivault/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetReport(ctx context.Context, id string) (ReportInfo, error)
	GetSections(ctx context.Context, reportID, versionID string) ([]store.Section, error)
	ListComments(ctx context.Context, reportID string) ([]CommentInfo, error)
}

// ReportInfo holds basic report metadata
type ReportInfo struct {
	ID          string
	Title       string
	Description string
	Status      string
	WarehouseID string
	OwnerName   string
	UpdatedAt   time.Time
}

// CommentInfo holds comment metadata
type CommentInfo struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Service provides report export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetReport(ctx, req.ReportID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	sections, err := s.store.GetSections(ctx, req.ReportID, req.VersionID)
	if err != nil {
		return nil, fmt.Errorf("get sections: %w", err)
	}

	data := TemplateData{
		Title:       info.Title,
		Description: info.Description,
		Status:      info.Status,
		WarehouseID: info.WarehouseID,
		Author:      info.OwnerName,
		UpdatedAt:   info.UpdatedAt,
		ContentHTML: template.HTML(SectionsToHTML(sections)),
		Comments:    []TemplateComment{},
	}

	if req.IncludeComments {
		comments, err := s.store.ListComments(ctx, req.ReportID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		for _, c := range comments {
			data.Comments = append(data.Comments, TemplateComment{
				Author:    c.Author,
				Body:      c.Body,
				CreatedAt: c.CreatedAt,
			})
		}
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, info.Title)
	case FormatDOCX:
		return exportDOCX(html, info.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

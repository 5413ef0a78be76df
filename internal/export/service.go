package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marginalia/api/internal/store"
	"marginalia/api/internal/votes"
)

// DataStore defines the interface for data access
type DataStore interface {
	ListAnnotationsByURI(ctx context.Context, uri, groupID string) ([]store.Annotation, error)
	ListReplies(ctx context.Context, annotationID string) ([]store.Annotation, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
}

// Service builds annotation reports
type Service struct {
	store DataStore
	// displayNames substitutes profile display names for raw user ids,
	// mirroring the client_display_names feature toggle.
	displayNames bool
}

// NewService creates a new export service
func NewService(store DataStore, displayNames bool) *Service {
	return &Service{store: store, displayNames: displayNames}
}

// Export generates an annotation report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	data, err := s.buildReport(ctx, req)
	if err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(*data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := "annotations-" + req.URI
	switch req.Format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) buildReport(ctx context.Context, req Request) (*TemplateData, error) {
	annotations, err := s.store.ListAnnotationsByURI(ctx, req.URI, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	if len(annotations) == 0 {
		return nil, ErrNothingToExport
	}

	sort.Slice(annotations, func(i, j int) bool {
		return annotations[i].CreatedAt.Before(annotations[j].CreatedAt)
	})

	names := map[string]string{}

	data := TemplateData{
		URI:         req.URI,
		GroupName:   req.GroupID,
		GeneratedAt: time.Now(),
		Annotations: []TemplateAnnotation{},
	}

	for _, ann := range annotations {
		if ann.IsReply() {
			continue
		}

		replies, err := s.store.ListReplies(ctx, ann.ID)
		if err != nil {
			return nil, fmt.Errorf("list replies: %w", err)
		}

		state := votes.Derive(ann, replies, "")

		entry := TemplateAnnotation{
			Author:    s.resolveName(ctx, names, ann.UserID),
			BodyHTML:  FormatBody(ann.Text),
			Tags:      votes.Strip(ann.Tags),
			Likes:     state.Likes,
			Dislikes:  state.Dislikes,
			CreatedAt: ann.CreatedAt,
			Replies:   []TemplateReply{},
		}

		if req.IncludeReplies {
			for _, reply := range replies {
				// Vote artifacts in the reply encoding are bookkeeping,
				// not discussion.
				if votes.HasMarker(reply.Tags) {
					continue
				}
				entry.Replies = append(entry.Replies, TemplateReply{
					Author:   s.resolveName(ctx, names, reply.UserID),
					BodyHTML: FormatBody(reply.Text),
				})
			}
		}

		data.Annotations = append(data.Annotations, entry)
	}

	return &data, nil
}

func (s *Service) resolveName(ctx context.Context, cache map[string]string, userID string) string {
	if !s.displayNames {
		return userID
	}
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if user, err := s.store.GetUserByID(ctx, userID); err == nil && user.DisplayName != "" {
		name = user.DisplayName
	}
	cache[userID] = name
	return name
}

package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"marginalia/api/internal/store"
)

type fakeDataStore struct {
	annotations map[string][]store.Annotation
	replies     map[string][]store.Annotation
	users       map[string]store.User
}

func (f *fakeDataStore) ListAnnotationsByURI(_ context.Context, uri, _ string) ([]store.Annotation, error) {
	return f.annotations[uri], nil
}

func (f *fakeDataStore) ListReplies(_ context.Context, annotationID string) ([]store.Annotation, error) {
	return f.replies[annotationID], nil
}

func (f *fakeDataStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, errors.New("not found")
	}
	return user, nil
}

func TestBuildReport(t *testing.T) {
	ds := &fakeDataStore{
		annotations: map[string][]store.Annotation{
			"https://example.com/article": {
				{
					ID:        "ann_1",
					UserID:    "alice",
					URI:       "https://example.com/article",
					Text:      "First point.\nSecond line.",
					Tags:      []string{"review", "vote:like:bob:1700000000"},
					CreatedAt: time.Unix(1700000000, 0),
				},
			},
		},
		replies: map[string][]store.Annotation{
			"ann_1": {
				{
					ID:     "ann_2",
					UserID: "carol",
					Text:   "Agreed.",
					Refs:   []string{"ann_1"},
				},
				{
					ID:     "ann_3",
					UserID: "dave",
					Tags:   []string{"vote:dislike"},
					Refs:   []string{"ann_1"},
				},
			},
		},
		users: map[string]store.User{
			"alice": {ID: "alice", DisplayName: "Alice A"},
		},
	}

	svc := NewService(ds, true)
	data, err := svc.buildReport(context.Background(), Request{
		URI:            "https://example.com/article",
		Format:         FormatPDF,
		IncludeReplies: true,
	})
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}

	if len(data.Annotations) != 1 {
		t.Fatalf("got %d annotations, want 1", len(data.Annotations))
	}
	ann := data.Annotations[0]
	if ann.Author != "Alice A" {
		t.Errorf("author = %q, want display name", ann.Author)
	}
	if ann.Likes != 1 || ann.Dislikes != 1 {
		t.Errorf("tallies = %d/%d, want 1/1", ann.Likes, ann.Dislikes)
	}
	for _, tag := range ann.Tags {
		if strings.HasPrefix(tag, "vote:") {
			t.Errorf("vote marker leaked into report tags: %q", tag)
		}
	}
	if len(ann.Replies) != 1 {
		t.Fatalf("got %d replies, want 1 (vote artifact excluded)", len(ann.Replies))
	}
	if ann.Replies[0].Author != "carol" {
		t.Errorf("reply author = %q, want fallback to user id", ann.Replies[0].Author)
	}
	if !strings.Contains(string(ann.BodyHTML), "<br>") {
		t.Errorf("body line breaks not preserved: %q", ann.BodyHTML)
	}
}

func TestBuildReportDisplayNamesDisabled(t *testing.T) {
	ds := &fakeDataStore{
		annotations: map[string][]store.Annotation{
			"https://example.com/article": {
				{ID: "ann_1", UserID: "alice", URI: "https://example.com/article", Text: "A point."},
			},
		},
		users: map[string]store.User{
			"alice": {ID: "alice", DisplayName: "Alice A"},
		},
	}

	svc := NewService(ds, false)
	data, err := svc.buildReport(context.Background(), Request{
		URI:    "https://example.com/article",
		Format: FormatPDF,
	})
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if data.Annotations[0].Author != "alice" {
		t.Errorf("author = %q, want raw user id while display names are off", data.Annotations[0].Author)
	}
}

func TestBuildReportNothingToExport(t *testing.T) {
	svc := NewService(&fakeDataStore{annotations: map[string][]store.Annotation{}}, true)
	_, err := svc.buildReport(context.Background(), Request{URI: "https://example.com/empty"})
	if !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("err = %v, want ErrNothingToExport", err)
	}
}

func TestRenderReportHTML(t *testing.T) {
	data := TemplateData{
		URI:         "https://example.com/article",
		GroupName:   "biology-101",
		GeneratedAt: time.Unix(1700000000, 0),
		Annotations: []TemplateAnnotation{
			{
				Author:    "Alice A",
				BodyHTML:  FormatBody("This is the <content>."),
				Tags:      []string{"review"},
				Likes:     2,
				Dislikes:  1,
				CreatedAt: time.Unix(1700000000, 0),
				Replies: []TemplateReply{
					{Author: "carol", BodyHTML: FormatBody("Agreed.")},
				},
			},
		},
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}

	if !strings.Contains(html, "https://example.com/article") {
		t.Error("HTML missing document URI")
	}
	if !strings.Contains(html, "Alice A") {
		t.Error("HTML missing author")
	}
	if !strings.Contains(html, "biology-101") {
		t.Error("HTML missing group name")
	}
	if !strings.Contains(html, "Agreed.") {
		t.Error("HTML missing reply")
	}
	// Annotation text is user input and must stay escaped.
	if strings.Contains(html, "<content>") {
		t.Error("annotation body was not escaped")
	}
	if !strings.Contains(html, "&lt;content&gt;") {
		t.Error("escaped annotation body missing")
	}
}

func TestFormatBody(t *testing.T) {
	got := FormatBody("a < b\nnext")
	if string(got) != "a &lt; b<br>next" {
		t.Errorf("FormatBody = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "annotations"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

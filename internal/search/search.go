package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	URI     string   `json:"uri"`
	GroupID string   `json:"groupId"`
	Author  string   `json:"author"`
	Snippet string   `json:"snippet"`
	Tags    []string `json:"tags,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterURI     string
	FilterGroupID string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push annotations into a search index.
type Indexer interface {
	IndexAnnotation(a AnnotationRecord) error
	DeleteAnnotation(id string) error
}

// AnnotationRecord is the data we index for an annotation. Tags must already
// be stripped of vote markers before indexing.
type AnnotationRecord struct {
	ID      string   `json:"id"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags"`
	URI     string   `json:"uri"`
	GroupID string   `json:"groupId"`
	Author  string   `json:"author"`
}

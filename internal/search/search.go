package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultReport  ResultType = "report"
	ResultVersion ResultType = "version"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ReportID string     `json:"reportId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType string // empty = all types
	Limit      int
	Offset     int
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

// Indexer can push entities into a search index.
type Indexer interface {
	IndexReport(r ReportRecord) error
	IndexVersion(v VersionRecord) error
	IndexComment(c CommentRecord) error
	DeleteReport(id string) error
}

// ReportRecord is the data we index for a report.
type ReportRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	WarehouseID string `json:"warehouseId"`
	SectionText string `json:"sectionText"`
}

// VersionRecord is the data we index for a named version.
type VersionRecord struct {
	ID          string `json:"id"`
	ReportID    string `json:"reportId"`
	Name        string `json:"name"`
	Notes       string `json:"notes"`
	SectionText string `json:"sectionText"`
}

// CommentRecord is the data we index for a report comment.
type CommentRecord struct {
	ID       string `json:"id"`
	ReportID string `json:"reportId"`
	Author   string `json:"author"`
	Body     string `json:"body"`
}

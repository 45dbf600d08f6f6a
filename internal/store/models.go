package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Report statuses follow the approval lifecycle. A report starts in
// StatusDraft and only the approval workflow moves it forward.
const (
	StatusDraft           = "draft"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusPublished       = "published"
	StatusArchived        = "archived"
)

// Section content types.
const (
	ContentText  = "text"
	ContentChart = "chart"
	ContentTable = "table"
)

type ChartData struct {
	Type     string     `json:"type"`
	Labels   []string   `json:"labels"`
	Datasets []ChartSet `json:"datasets"`
}

type ChartSet struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// SectionContent is a tagged union: Type selects which payload field is
// meaningful. Chart and Table stay nil for text sections.
type SectionContent struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Chart *ChartData `json:"chartData,omitempty"`
	Table *TableData `json:"tableData,omitempty"`
}

type Section struct {
	SectionID string         `json:"sectionId"`
	Title     string         `json:"title"`
	Order     int            `json:"order"`
	Content   SectionContent `json:"content"`
}

// Version is an immutable snapshot of a report's sections. Sections are
// deep copies taken at creation time and are never touched afterwards.
type Version struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Sections  []Section `json:"sections"`
}

// Approver statuses and roles.
const (
	ApproverPending  = "pending"
	ApproverApproved = "approved"
	ApproverRejected = "rejected"

	ApproverRoleReviewer = "reviewer"
	ApproverRoleApprover = "approver"
)

type Approver struct {
	UserID    string     `json:"userId"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Required  bool       `json:"required"`
	Order     int        `json:"order"`
	Comments  string     `json:"comments,omitempty"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

// Aggregate approval statuses.
const (
	ApprovalNone      = "none"
	ApprovalPending   = "pending"
	ApprovalApproved  = "approved"
	ApprovalRejected  = "rejected"
	ApprovalCancelled = "cancelled"
)

// ApprovalEvent is append-only history; entries are never mutated.
type ApprovalEvent struct {
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Comments  string    `json:"comments,omitempty"`
}

// Lock kinds. One active lock per kind per report.
const (
	LockKindEdit         = "edit"
	LockKindFinalization = "finalization"
)

type Lock struct {
	Kind     string    `json:"kind"`
	LockedBy string    `json:"lockedBy"`
	LockedAt time.Time `json:"lockedAt"`
	Reason   string    `json:"reason,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Report is the aggregate root. All lifecycle operations are a
// read-modify-write against one Report row; Revision is the optimistic
// concurrency token checked and incremented on every write.
type Report struct {
	ID             string
	Title          string
	Description    string
	Status         string
	OwnerID        string
	CompanyID      string
	WarehouseID    string
	AssessmentID   string
	TemplateID     string
	IsPublic       bool
	SharedWith     []string
	Editors        []string
	Viewers        []string
	Sections       []Section
	ApprovalStatus string
	Approvers      []Approver
	History        []ApprovalEvent
	EditLock       *Lock
	Finalization   *Lock
	Comments       []Comment
	Revision       int64
	CreatedAt      time.Time
	LastModified   time.Time
	LastModifiedBy string
}

// Locked reports true when the finalization lock is engaged.
func (r *Report) Locked() bool {
	return r.Finalization != nil
}

// CloneSections returns a structural deep copy. Version snapshots must not
// alias the live sections, or later edits would rewrite history.
func CloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i, section := range sections {
		out[i] = section
		out[i].Content = cloneContent(section.Content)
	}
	return out
}

func cloneContent(content SectionContent) SectionContent {
	cloned := content
	if content.Chart != nil {
		chart := ChartData{
			Type:   content.Chart.Type,
			Labels: append([]string(nil), content.Chart.Labels...),
		}
		if content.Chart.Datasets != nil {
			chart.Datasets = make([]ChartSet, len(content.Chart.Datasets))
			for i, set := range content.Chart.Datasets {
				chart.Datasets[i] = ChartSet{
					Label:  set.Label,
					Values: append([]float64(nil), set.Values...),
				}
			}
		}
		cloned.Chart = &chart
	}
	if content.Table != nil {
		table := TableData{
			Headers: append([]string(nil), content.Table.Headers...),
		}
		if content.Table.Rows != nil {
			table.Rows = make([][]string, len(content.Table.Rows))
			for i, row := range content.Table.Rows {
				table.Rows[i] = append([]string(nil), row...)
			}
		}
		cloned.Table = &table
	}
	return cloned
}

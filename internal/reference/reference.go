// Package reference defines the core domain types for citation records.
package reference

// Row is one citation record of an incoming batch. Every field is raw text
// until the curator rewrites it.
type Row struct {
	ID        string `json:"id"`    // Space-separated "scheme:value" identifiers
	Title     string `json:"title"` // Title of the bibliographic resource
	Author    string `json:"author"`
	PubDate   string `json:"pub_date"`
	Venue     string `json:"venue"` // "Name [scheme:value ...]"
	Volume    string `json:"volume"`
	Issue     string `json:"issue"`
	Page      string `json:"page"`
	Type      string `json:"type"`
	Publisher string `json:"publisher"`
	Editor    string `json:"editor"`
}

// Column names a field of a Row. Audit log entries are keyed by column.
type Column string

const (
	ColumnID        Column = "id"
	ColumnTitle     Column = "title"
	ColumnAuthor    Column = "author"
	ColumnPubDate   Column = "pub_date"
	ColumnVenue     Column = "venue"
	ColumnVolume    Column = "volume"
	ColumnIssue     Column = "issue"
	ColumnPage      Column = "page"
	ColumnType      Column = "type"
	ColumnPublisher Column = "publisher"
	ColumnEditor    Column = "editor"
)

// Columns lists every row column in CSV header order.
var Columns = []Column{
	ColumnID, ColumnTitle, ColumnAuthor, ColumnPubDate, ColumnVenue,
	ColumnVolume, ColumnIssue, ColumnPage, ColumnType, ColumnPublisher, ColumnEditor,
}

// Get returns the value of a column.
func (r *Row) Get(col Column) string {
	switch col {
	case ColumnID:
		return r.ID
	case ColumnTitle:
		return r.Title
	case ColumnAuthor:
		return r.Author
	case ColumnPubDate:
		return r.PubDate
	case ColumnVenue:
		return r.Venue
	case ColumnVolume:
		return r.Volume
	case ColumnIssue:
		return r.Issue
	case ColumnPage:
		return r.Page
	case ColumnType:
		return r.Type
	case ColumnPublisher:
		return r.Publisher
	case ColumnEditor:
		return r.Editor
	}
	return ""
}

// Set assigns the value of a column. Unknown columns are ignored.
func (r *Row) Set(col Column, value string) {
	switch col {
	case ColumnID:
		r.ID = value
	case ColumnTitle:
		r.Title = value
	case ColumnAuthor:
		r.Author = value
	case ColumnPubDate:
		r.PubDate = value
	case ColumnVenue:
		r.Venue = value
	case ColumnVolume:
		r.Volume = value
	case ColumnIssue:
		r.Issue = value
	case ColumnPage:
		r.Page = value
	case ColumnType:
		r.Type = value
	case ColumnPublisher:
		r.Publisher = value
	case ColumnEditor:
		r.Editor = value
	}
}

// Kind separates the two entity namespaces.
type Kind string

const (
	KindBR Kind = "br" // Bibliographic resource
	KindRA Kind = "ra" // Responsible agent
)

// KindFor returns the entity kind a column's identifiers belong to.
func KindFor(col Column) Kind {
	switch col {
	case ColumnAuthor, ColumnEditor, ColumnPublisher:
		return KindRA
	}
	return KindBR
}

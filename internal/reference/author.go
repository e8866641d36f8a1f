package reference

// Role is the part an agent plays for a bibliographic resource.
type Role string

const (
	RoleAuthor    Role = "author"
	RoleEditor    Role = "editor"
	RolePublisher Role = "publisher"
)

// Roles lists roles in the order the curator processes them.
var Roles = []Role{RoleAuthor, RolePublisher, RoleEditor}

// Column returns the row column holding contributors for the role.
func (r Role) Column() Column {
	switch r {
	case RoleEditor:
		return ColumnEditor
	case RolePublisher:
		return ColumnPublisher
	}
	return ColumnAuthor
}

// IsPerson reports whether contributors in this role carry "Family, Given" names.
func (r Role) IsPerson() bool {
	return r != RolePublisher
}

// Resource types recognised for containment.
const (
	TypeJournal        = "journal"
	TypeJournalArticle = "journal article"
	TypeJournalIssue   = "journal issue"
	TypeJournalVolume  = "journal volume"
)

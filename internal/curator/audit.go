package curator

import (
	"strings"

	"github.com/matsen/bibmeta/internal/reference"
)

// Audit statuses.
const (
	StatusExists   = "ENTITY ALREADY EXISTS"
	StatusProposed = "NEW VALUE PROPOSED"
	StatusDropped  = "INVALID VALUE DROPPED"

	InfoReorderRefused = "Proposed new RA sequence: REFUSED"
)

// AuditEntry records what the curator did to one field of one row.
type AuditEntry struct {
	Status   string   `json:"status,omitempty"`
	Conflict string   `json:"conflict,omitempty"` // "br/<id>" or "ra/<id>"
	Sources  []string `json:"sources,omitempty"`  // identifiers behind the conflict
	Dropped  []string `json:"dropped,omitempty"`  // original values that were discarded
	Info     string   `json:"info,omitempty"`
	Meta     string   `json:"meta,omitempty"` // canonical id of the row, id column only
}

// auditEntry is an AuditEntry before canonicalization.
type auditEntry struct {
	AuditEntry
	conflict     Token
	conflictKind reference.Kind
}

// auditLog is keyed by row index, then column.
type auditLog struct {
	rows map[int]map[reference.Column]*auditEntry
}

func newAuditLog() *auditLog {
	return &auditLog{rows: make(map[int]map[reference.Column]*auditEntry)}
}

func (a *auditLog) entry(row int, col reference.Column) *auditEntry {
	cols, ok := a.rows[row]
	if !ok {
		cols = make(map[reference.Column]*auditEntry)
		a.rows[row] = cols
	}
	e, ok := cols[col]
	if !ok {
		e = &auditEntry{}
		cols[col] = e
	}
	return e
}

func (a *auditLog) status(row int, col reference.Column, status string) {
	a.entry(row, col).Status = status
}

// exists marks an entity found already persisted unless the field carries a
// stronger status.
func (a *auditLog) exists(row int, col reference.Column) {
	if e := a.entry(row, col); e.Status == "" {
		e.Status = StatusExists
	}
}

func (a *auditLog) dropped(row int, col reference.Column, values ...string) {
	e := a.entry(row, col)
	e.Dropped = append(e.Dropped, values...)
}

func (a *auditLog) info(row int, col reference.Column, msg string) {
	e := a.entry(row, col)
	if e.Info == "" {
		e.Info = msg
		return
	}
	if !strings.Contains(e.Info, msg) {
		e.Info += "; " + msg
	}
}

func (a *auditLog) conflict(row int, col reference.Column, kind reference.Kind, tok Token, sources []string) {
	e := a.entry(row, col)
	e.conflict = tok
	e.conflictKind = kind
	e.Sources = sources
}

// Package identifier parses and renders external identifiers such as DOIs,
// ISSNs and ORCIDs.
package identifier

import (
	"regexp"
	"strings"

	"github.com/matsen/bibmeta/internal/normalize"
	"github.com/matsen/bibmeta/internal/reference"
)

// Known identifier schemes.
const (
	SchemeDOI       = "doi"
	SchemeISSN      = "issn"
	SchemeISBN      = "isbn"
	SchemeORCID     = "orcid"
	SchemeVIAF      = "viaf"
	SchemeWikidata  = "wikidata"
	SchemePMID      = "pmid"
	SchemePMCID     = "pmcid"
	SchemeURL       = "url"
	SchemeWikipedia = "wikipedia"
	SchemeCrossref  = "crossref"

	// SchemeMeta marks a canonical reference ("meta:br/0601").
	SchemeMeta = "meta"
)

var knownSchemes = map[string]bool{
	SchemeDOI:       true,
	SchemeISSN:      true,
	SchemeISBN:      true,
	SchemeORCID:     true,
	SchemeVIAF:      true,
	SchemeWikidata:  true,
	SchemePMID:      true,
	SchemePMCID:     true,
	SchemeURL:       true,
	SchemeWikipedia: true,
	SchemeCrossref:  true,
}

// IsKnownScheme reports whether scheme belongs to the closed scheme set.
func IsKnownScheme(scheme string) bool {
	return knownSchemes[scheme]
}

// ID is an external identifier. The scheme is lower-case; the value keeps
// its original case.
type ID struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// String renders the identifier as "scheme:value".
func (id ID) String() string {
	return id.Scheme + ":" + id.Value
}

// IsMeta reports whether the identifier is a canonical reference.
func (id ID) IsMeta() bool {
	return id.Scheme == SchemeMeta
}

// Meta returns the canonical reference for an entity ("meta:br/0601").
func Meta(kind reference.Kind, id string) ID {
	return ID{Scheme: SchemeMeta, Value: string(kind) + "/" + id}
}

// Parse parses a single "scheme:value" token. Only known schemes are
// accepted; canonical references are rejected here, use ParseList for those.
func Parse(token string) (ID, bool) {
	id, ok := split(normalize.StringFix(strings.TrimSpace(token)))
	if !ok || !IsKnownScheme(id.Scheme) {
		return ID{}, false
	}
	return id, true
}

func split(token string) (ID, bool) {
	scheme, value, ok := strings.Cut(token, ":")
	if !ok {
		return ID{}, false
	}
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	value = strings.TrimSpace(value)
	if scheme == "" || value == "" {
		return ID{}, false
	}
	return ID{Scheme: scheme, Value: value}, true
}

// List is the result of parsing an identifier list.
type List struct {
	IDs      []ID     // external identifiers, deduplicated, in input order
	Explicit string   // canonical id from a single "meta:<kind>/<id>" token
	Dropped  []string // tokens that were discarded
}

var colonSpacing = regexp.MustCompile(`\s*:\s*`)

// ParseList splits a raw identifier list on sep (whitespace when sep is
// empty) and normalises every token.
//
// A single "meta:<kind>/<id>" token yields Explicit and is removed from IDs.
// When more than one token has the meta scheme, all of them are dropped and
// the list carries no explicit reference. Meta tokens for another kind,
// unknown schemes and tokens without a value are dropped as well.
func ParseList(raw, sep string, kind reference.Kind) List {
	raw = colonSpacing.ReplaceAllString(strings.ReplaceAll(raw, "\x00", ""), ":")

	var tokens []string
	if sep != "" {
		for _, t := range strings.Split(raw, sep) {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
	} else {
		tokens = strings.Fields(raw)
	}

	metaCount := 0
	for _, t := range tokens {
		if strings.HasPrefix(strings.ToLower(t), SchemeMeta) {
			metaCount++
		}
	}

	var list List
	seen := make(map[ID]bool)
	prefix := string(kind) + "/"
	for _, t := range tokens {
		if metaCount > 1 && strings.HasPrefix(strings.ToLower(t), SchemeMeta) {
			list.Dropped = append(list.Dropped, t)
			continue
		}
		id, ok := split(normalize.StringFix(t))
		if !ok {
			list.Dropped = append(list.Dropped, t)
			continue
		}
		if id.IsMeta() {
			canonical, found := strings.CutPrefix(id.Value, prefix)
			if !found || canonical == "" || list.Explicit != "" {
				list.Dropped = append(list.Dropped, t)
				continue
			}
			list.Explicit = canonical
			continue
		}
		if !IsKnownScheme(id.Scheme) {
			list.Dropped = append(list.Dropped, t)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		list.IDs = append(list.IDs, id)
	}
	return list
}

// Join renders identifiers space-separated.
func Join(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}

// Contains reports whether ids holds id.
func Contains(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

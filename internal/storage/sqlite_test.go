package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/curator"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func runBatch(t *testing.T, res resolver.Resolver, alloc curator.Allocator, rows ...reference.Row) *curator.Result {
	t.Helper()
	out, err := curator.New(res, alloc, curator.Options{}).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out
}

func metaID(t *testing.T, kind reference.Kind, ids string) string {
	t.Helper()
	for _, f := range strings.Fields(ids) {
		if v, ok := strings.CutPrefix(f, "meta:"+string(kind)+"/"); ok {
			return v
		}
	}
	t.Fatalf("no %s reference in %q", kind, ids)
	return ""
}

var articleRow = reference.Row{
	ID:      "doi:10.1/a",
	Title:   "first paper",
	Author:  "Smith, John [orcid:0000-0001]; Doe, Jane",
	Venue:   "Journal [issn:1111-2222]",
	Volume:  "1",
	Issue:   "2",
	Page:    "1-9",
	Type:    "journal article",
	PubDate: "2020",
}

func TestPersistAndResolve(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alloc := counter.NewMemory(nil)

	first := runBatch(t, s, alloc, articleRow)
	if err := s.Persist(ctx, first); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	article := metaID(t, reference.KindBR, first.Rows[0].ID)
	venue := metaID(t, reference.KindBR, first.Rows[0].Venue)

	found, err := s.FindEntityByExternalID(ctx, reference.KindBR, identifier.ID{Scheme: "doi", Value: "10.1/a"})
	if err != nil {
		t.Fatalf("FindEntityByExternalID() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != article || found[0].Title != "First Paper" {
		t.Fatalf("FindEntityByExternalID() = %+v", found)
	}
	if got, want := found[0].IDs[0].LocalID, first.Identifiers[reference.KindBR]["doi:10.1/a"]; got != want {
		t.Errorf("identifier entity = %q, want %q", got, want)
	}

	chain, err := s.FindOrderedContributors(ctx, article, reference.RoleAuthor)
	if err != nil {
		t.Fatalf("FindOrderedContributors() error = %v", err)
	}
	if len(chain) != 2 || chain[0].AgentTitle != "Smith, John" || chain[1].AgentTitle != "Doe, Jane" {
		t.Fatalf("chain = %+v", chain)
	}
	if len(chain[0].IDs) != 1 || chain[0].IDs[0].ID.String() != "orcid:0000-0001" {
		t.Errorf("agent ids = %+v", chain[0].IDs)
	}

	rec, err := s.FindFullRecord(ctx, article)
	if err != nil {
		t.Fatalf("FindFullRecord() error = %v", err)
	}
	if rec == nil {
		t.Fatal("FindFullRecord() = nil")
	}
	if rec.Type != "journal article" || rec.PubDate != "2020" || rec.Volume != "1" || rec.Issue != "2" {
		t.Errorf("record = %+v", rec)
	}
	if want := "Journal [issn:1111-2222 meta:br/" + venue + "]"; rec.Venue != want {
		t.Errorf("venue = %q, want %q", rec.Venue, want)
	}
	if rec.Page == nil || rec.Page.Range != "1-9" {
		t.Errorf("page = %+v", rec.Page)
	}

	tree, err := s.FindVenueTree(ctx, venue)
	if err != nil {
		t.Fatalf("FindVenueTree() error = %v", err)
	}
	if tree == nil || tree.Volumes["1"].Issues["2"] == "" {
		t.Fatalf("tree = %+v", tree)
	}

	// The same row again resolves entirely against the store.
	second := runBatch(t, s, alloc, articleRow)
	for _, name := range counter.Names {
		if second.Minted[name] != 0 {
			t.Errorf("second batch minted %d %s", second.Minted[name], name)
		}
	}
	if got := metaID(t, reference.KindBR, second.Rows[0].ID); got != article {
		t.Errorf("second batch resource = %q, want %q", got, article)
	}
	for col, entry := range second.Audit[0] {
		if entry.Status == curator.StatusProposed || entry.Conflict != "" || entry.Info != "" {
			t.Errorf("second batch %s audit = %+v", col, entry)
		}
	}
	if err := s.Persist(ctx, second); err != nil {
		t.Fatalf("Persist() second batch error = %v", err)
	}
	if n, _ := s.Count(ctx, reference.KindBR); n != 4 {
		t.Errorf("Count(br) = %d, want 4 (article, venue, volume, issue)", n)
	}
}

func TestConflictsAreQuarantined(t *testing.T) {
	ctx := context.Background()
	mem := resolver.NewMemory()
	doiID, _ := identifier.Parse("doi:10.1/x")
	isbnID, _ := identifier.Parse("isbn:123")
	mem.AddEntity(reference.KindBR, resolver.Entity{ID: "0609001", IDs: []resolver.Identifier{{LocalID: "0609101", ID: doiID}}})
	mem.AddEntity(reference.KindBR, resolver.Entity{ID: "0609002", IDs: []resolver.Identifier{{LocalID: "0609102", ID: isbnID}}})

	res := runBatch(t, mem, counter.NewMemory(nil), reference.Row{ID: "doi:10.1/x isbn:123"})
	s := openTestStore(t)
	if err := s.Persist(ctx, res); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	found, err := s.FindEntityByExternalID(ctx, reference.KindBR, doiID)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("conflict entity matched: %+v", found)
	}

	conflicts, err := s.Conflicts(ctx)
	if err != nil {
		t.Fatalf("Conflicts() error = %v", err)
	}
	if len(conflicts) != 1 || len(conflicts[0].IDs) != 2 || !conflicts[0].Conflict {
		t.Fatalf("Conflicts() = %+v", conflicts)
	}
	if conflicts[0].RunID != res.RunID {
		t.Errorf("run id = %q, want %q", conflicts[0].RunID, res.RunID)
	}

	e, err := s.FindEntityByCanonicalID(ctx, reference.KindBR, conflicts[0].ID)
	if err != nil || e == nil {
		t.Errorf("FindEntityByCanonicalID() = %v, %v; want the conflict", e, err)
	}
}

func TestFindOrderedContributorsFollowsChain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, r := range [][4]string{
		{"0601", "0700", "", "0801"},
		{"0602", "0700", "0601", "0802"},
		{"0603", "0700", "0602", "0803"},
		{"0604", "0700", "0699", "0804"},
		{"0605", "0701", "", "0805"},
	} {
		if _, err := s.db.Exec(`INSERT INTO roles (id, br_id, role, agent_id, next_id) VALUES (?, ?, 'author', ?, ?)`,
			r[0], r[1], r[3], r[2]); err != nil {
			t.Fatal(err)
		}
	}

	chain, err := s.FindOrderedContributors(ctx, "0700", reference.RoleAuthor)
	if err != nil {
		t.Fatalf("FindOrderedContributors() error = %v", err)
	}
	var got []string
	for _, c := range chain {
		got = append(got, c.RoleID)
	}
	if strings.Join(got, ",") != "0603,0602,0601,0604" {
		t.Errorf("order = %v", got)
	}

	none, err := s.FindOrderedContributors(ctx, "0700", reference.RoleEditor)
	if err != nil || len(none) != 0 {
		t.Errorf("editors = %v, %v", none, err)
	}
}

func TestLookupsOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tests := []struct {
		name string
		fn   func() (any, error)
	}{
		{"canonical", func() (any, error) { return s.FindEntityByCanonicalID(ctx, reference.KindBR, "0601") }},
		{"tree", func() (any, error) { return s.FindVenueTree(ctx, "0601") }},
		{"page", func() (any, error) { return s.FindPageRange(ctx, "0601") }},
		{"record", func() (any, error) { return s.FindFullRecord(ctx, "0601") }},
		{"get", func() (any, error) { return s.Get(ctx, reference.KindRA, "0601") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.fn()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			switch p := v.(type) {
			case *resolver.Entity:
				if p != nil {
					t.Errorf("got %+v, want nil", p)
				}
			case *resolver.VenueTree:
				if p != nil {
					t.Errorf("got %+v, want nil", p)
				}
			case *resolver.PageRange:
				if p != nil {
					t.Errorf("got %+v, want nil", p)
				}
			case *resolver.FullRecord:
				if p != nil {
					t.Errorf("got %+v, want nil", p)
				}
			case *Record:
				if p != nil {
					t.Errorf("got %+v, want nil", p)
				}
			}
		})
	}

	local, err := s.FindIdentifierID(ctx, reference.KindBR, identifier.ID{Scheme: "doi", Value: "x"})
	if err != nil || local != "" {
		t.Errorf("FindIdentifierID() = %q, %v", local, err)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res := runBatch(t, s, counter.NewMemory(nil), articleRow)
	if err := s.Persist(ctx, res); err != nil {
		t.Fatal(err)
	}
	article := metaID(t, reference.KindBR, res.Rows[0].ID)

	rec, err := s.Get(ctx, reference.KindBR, article)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec == nil || rec.Resource == nil || len(rec.Contributors[reference.RoleAuthor]) != 2 {
		t.Fatalf("Get() = %+v", rec)
	}
	if rec.RunID != res.RunID || rec.Conflict {
		t.Errorf("record = %+v", rec)
	}

	agent := rec.Contributors[reference.RoleAuthor][0].AgentID
	ra, err := s.Get(ctx, reference.KindRA, agent)
	if err != nil || ra == nil {
		t.Fatalf("Get(ra) = %v, %v", ra, err)
	}
	if ra.Resource != nil || ra.Contributors != nil {
		t.Errorf("agent record carries resource facts: %+v", ra)
	}
}

func TestPersistRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	doiID, _ := identifier.Parse("doi:10.1/x")

	bad := &curator.Result{
		RunID: "bad",
		Entities: map[reference.Kind][]curator.Entity{
			reference.KindBR: {
				{ID: "0601", Title: "Kept Out"},
				{ID: "0602", IDs: []identifier.ID{doiID, identifier.Meta(reference.KindBR, "0602")}},
			},
		},
		Identifiers: map[reference.Kind]map[string]string{},
	}
	if err := s.Persist(ctx, bad); err == nil {
		t.Fatal("Persist() succeeded with an unindexed identifier")
	}
	if n, err := s.Count(ctx, reference.KindBR); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v; want nothing written", n, err)
	}
}

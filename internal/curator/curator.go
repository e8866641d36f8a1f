// Package curator deduplicates a batch of citation rows into bibliographic
// resources and responsible agents.
//
// A batch runs in fixed passes over all rows: identity of each row, then
// field equality across rows about the same resource, then venues, volumes
// and issues, then contributors. Canonical ids are minted once at the end.
// Every pass depends on the complete output of the previous one, so rows are
// never processed concurrently.
package curator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/identifier"
	"github.com/matsen/bibmeta/internal/metrics"
	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
)

// DefaultPrefix is prepended to every minted canonical id.
const DefaultPrefix = "060"

// ErrAlreadyRun is returned when Run is called twice on one Curator.
var ErrAlreadyRun = errors.New("curator already ran")

// Allocator hands out ranges of canonical id numbers.
type Allocator interface {
	// Reserve reserves n consecutive values of the named counter and returns
	// the first one.
	Reserve(name counter.Name, n int) (int64, error)
}

// Options configures a Curator.
type Options struct {
	Prefix    string // canonical id prefix, DefaultPrefix when empty
	Separator string // identifier list separator, whitespace when empty
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	RunID     string // generated when empty
}

// Curator curates one batch. It is single-use.
type Curator struct {
	res     resolver.Resolver
	alloc   Allocator
	opts    Options
	log     *zap.Logger
	metrics *metrics.Recorder
	ran     bool

	seq         int
	br, ra      *table
	brConflicts *table
	raConflicts *table
	idIndex     map[reference.Kind]map[identifier.ID]string

	rows  []*rowState
	audit *auditLog

	trees     map[Token]*venueTree
	treeOrder []Token
	loaded    map[Token]bool // persisted venues whose stored tree is in trees

	sequences map[Token]map[reference.Role]*sequence
	seqOrder  []Token
	roleOrder []Token

	pages     map[Token]*pageEntry
	pageOrder []Token

	resources     map[Token]*resource
	resourceOrder []Token

	canonical map[Token]string
}

// rowState is a row being curated along with what was resolved for it.
type rowState struct {
	index int
	row   reference.Row
	br    Token
	venue Token
}

type volumeNode struct {
	id     Token
	issues map[string]Token
}

type venueTree struct {
	volumes map[string]*volumeNode
	issues  map[string]Token
}

func newVenueTree() *venueTree {
	return &venueTree{
		volumes: make(map[string]*volumeNode),
		issues:  make(map[string]Token),
	}
}

type seqEntry struct {
	role  Token
	agent Token
}

type sequence struct {
	entries []seqEntry
}

type pageEntry struct {
	id  Token
	rng string
}

type resource struct {
	typ     string
	pubDate string
	label   string
	partOf  Token
}

// New returns a Curator reading persisted state from res and drawing
// canonical ids from alloc.
func New(res resolver.Resolver, alloc Allocator, opts Options) *Curator {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Curator{
		res:       metrics.InstrumentResolver(res, opts.Metrics),
		alloc:     alloc,
		opts:      opts,
		log:       logger.With(zap.String("run_id", opts.RunID)),
		metrics:   opts.Metrics,
		idIndex:   map[reference.Kind]map[identifier.ID]string{reference.KindBR: {}, reference.KindRA: {}},
		audit:     newAuditLog(),
		trees:     make(map[Token]*venueTree),
		loaded:    make(map[Token]bool),
		sequences: make(map[Token]map[reference.Role]*sequence),
		pages:     make(map[Token]*pageEntry),
		resources: make(map[Token]*resource),
	}
	c.br = newTable(reference.KindBR, false, &c.seq)
	c.ra = newTable(reference.KindRA, false, &c.seq)
	c.brConflicts = newTable(reference.KindBR, true, &c.seq)
	c.raConflicts = newTable(reference.KindRA, true, &c.seq)
	c.br.onMerge = c.mergeTrees
	c.ra.onMerge = func(from, into Token) {
		c.log.Debug("agent merged", zap.Stringer("from", from), zap.Stringer("into", into))
		c.metrics.Merge(string(reference.KindRA))
	}
	return c
}

// Run curates rows and returns the canonicalized batch. Any resolver or
// allocator error aborts the batch; no partial result is returned.
func (c *Curator) Run(ctx context.Context, rows []reference.Row) (*Result, error) {
	if c.ran {
		return nil, ErrAlreadyRun
	}
	c.ran = true
	start := time.Now()
	c.log.Info("curation started", zap.Int("rows", len(rows)))

	c.rows = make([]*rowState, len(rows))
	for i, r := range rows {
		c.rows[i] = &rowState{index: i, row: r}
	}

	for _, rs := range c.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.curateRow(ctx, rs); err != nil {
			return nil, fmt.Errorf("row %d: %w", rs.index, err)
		}
	}
	if err := c.checkEquality(ctx); err != nil {
		return nil, err
	}
	c.log.Info("identity pass done", zap.Int("resources", len(c.br.index)), zap.Int("conflicts", len(c.brConflicts.index)))

	for _, rs := range c.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.curateVenue(ctx, rs); err != nil {
			return nil, fmt.Errorf("row %d venue: %w", rs.index, err)
		}
	}
	c.log.Info("venue pass done", zap.Int("venues", len(c.trees)))

	for _, rs := range c.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, role := range reference.Roles {
			if err := c.curateContributors(ctx, rs, role); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", rs.index, role, err)
			}
		}
	}
	c.log.Info("contributor pass done", zap.Int("agents", len(c.ra.index)), zap.Int("conflicts", len(c.raConflicts.index)))

	if err := c.collectPages(ctx); err != nil {
		return nil, err
	}
	minted, err := c.canonicalize(ctx)
	if err != nil {
		return nil, err
	}

	result := c.result(minted)
	c.metrics.Rows(len(rows))
	c.metrics.Batch(time.Since(start))
	c.log.Info("curation finished",
		zap.Int("rows_in", len(rows)),
		zap.Int("rows_out", len(result.Rows)),
		zap.Int("br_minted", minted[counter.BR]),
		zap.Int("ra_minted", minted[counter.RA]),
		zap.Int("conflicts", len(result.Conflicts[reference.KindBR])+len(result.Conflicts[reference.KindRA])),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// entities returns the entity table of kind.
func (c *Curator) entities(kind reference.Kind) *table {
	if kind == reference.KindRA {
		return c.ra
	}
	return c.br
}

// conflicts returns the conflict table of kind.
func (c *Curator) conflicts(kind reference.Kind) *table {
	if kind == reference.KindRA {
		return c.raConflicts
	}
	return c.brConflicts
}

// record returns the live record of tok in either table of kind.
func (c *Curator) record(kind reference.Kind, tok Token) *record {
	if rec := c.entities(kind).get(tok); rec != nil {
		return rec
	}
	return c.conflicts(kind).get(tok)
}

// nextSeq returns a fresh provisional token that belongs to no table.
func (c *Curator) nextSeq() Token {
	c.seq++
	return Token{Seq: c.seq}
}

// describe records containment facts about a bibliographic resource. The
// first non-empty value of each field wins.
func (c *Curator) describe(tok Token, typ, pubDate, label string, partOf Token) {
	tok = c.br.find(tok)
	r, ok := c.resources[tok]
	if !ok {
		r = &resource{}
		c.resources[tok] = r
		c.resourceOrder = append(c.resourceOrder, tok)
	}
	if r.typ == "" {
		r.typ = typ
	}
	if r.pubDate == "" {
		r.pubDate = pubDate
	}
	if r.label == "" {
		r.label = label
	}
	if r.partOf.IsZero() {
		r.partOf = partOf
	}
}

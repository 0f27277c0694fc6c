package workload

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"

	"libris/pkg/common"
	"libris/pkg/core"
	"libris/pkg/core/index"
	"libris/pkg/core/structure"
	"libris/pkg/dataset"
)

var ErrInvalidConfig = errors.New("invalid workload config")

const (
	syntheticPrefix = "synthetic-"
	missPrefix      = "~missing-"
	maxAttempts     = 8
)

type Config struct {
	Operations int
	Mix        map[Kind]int
	// MissRatio is the share of lookups that target a key no book has.
	MissRatio float64
	// Fields are the searchable fields lookups and ranges draw from.
	Fields []common.Field
	Seed   uint64
}

// Generator produces the operation sequence described by its Config.
// It holds no mutable state; every call to Ops replays from the seed.
type Generator struct {
	ds       *dataset.Dataset
	cfg      Config
	kinds    []Kind
	cum      []int
	samplers map[common.Field]*sampler
	popular  *sampler
	present  *structure.BloomFilter
	skipped  []Kind
}

func New(ds *dataset.Dataset, cfg Config) (*Generator, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", ErrInvalidConfig)
	}
	if cfg.Operations < 0 {
		return nil, fmt.Errorf("%w: operations must be >= 0, got %d", ErrInvalidConfig, cfg.Operations)
	}
	if cfg.MissRatio < 0 || cfg.MissRatio > 1 || math.IsNaN(cfg.MissRatio) {
		return nil, fmt.Errorf("%w: miss ratio must be in [0, 1], got %v", ErrInvalidConfig, cfg.MissRatio)
	}
	if len(cfg.Mix) == 0 {
		cfg.Mix = DefaultMix()
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = core.DefaultFields()
	}

	g := &Generator{
		ds:       ds,
		cfg:      cfg,
		samplers: make(map[common.Field]*sampler, len(cfg.Fields)),
	}

	total := 0
	for _, k := range Kinds() {
		w, ok := cfg.Mix[k]
		if !ok || w == 0 {
			continue
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %d for %s", ErrInvalidConfig, w, k)
		}
		if len(ds.Users) == 0 && needsUsers(k) {
			g.skipped = append(g.skipped, k)
			continue
		}
		total += w
		g.kinds = append(g.kinds, k)
		g.cum = append(g.cum, total)
	}
	for k := range cfg.Mix {
		if _, err := ParseKind(string(k)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if total == 0 && len(g.skipped) > 0 {
		return nil, fmt.Errorf("%w: %v need users and the dataset has none", ErrInvalidConfig, g.skipped)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: operation mix has no positive weight", ErrInvalidConfig)
	}

	g.cfg.Fields = nil
	for _, f := range cfg.Fields {
		if !slices.Contains(common.Fields(), f) {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidConfig, common.ErrUnknownField, f)
		}
		if _, ok := g.samplers[f]; !ok {
			g.samplers[f] = newSampler(ds.Books, f)
			g.cfg.Fields = append(g.cfg.Fields, f)
		}
	}

	g.popular = newPopularitySampler(ds.Books, ds.Users)
	g.present = structure.NewBloomFilter(len(ds.Books)*len(g.cfg.Fields), 0.001)
	for _, b := range ds.Books {
		for _, f := range g.cfg.Fields {
			g.present.Add(f.Of(b))
		}
	}
	return g, nil
}

// Kinds returns the operation kinds with a positive weight, in report order.
func (g *Generator) Kinds() []Kind {
	return slices.Clone(g.kinds)
}

// Skipped returns the weighted kinds that can never be generated because the
// dataset has no users. Their weight is not given to other kinds.
func (g *Generator) Skipped() []Kind {
	return slices.Clone(g.skipped)
}

func needsUsers(k Kind) bool {
	return k == KindCheckout || k == KindReturn
}

// WithSeed returns a generator over the same dataset and mix with another seed.
func (g *Generator) WithSeed(seed uint64) *Generator {
	c := *g
	c.cfg.Seed = seed
	return &c
}

func (g *Generator) Len() int {
	return g.cfg.Operations
}

// Ops yields the workload lazily. Each call starts over from the seed against a
// fresh copy of the dataset, so every returned operation is valid when applied
// in order to a catalog populated from the same dataset.
func (g *Generator) Ops() iter.Seq2[Op, error] {
	return func(yield func(Op, error) bool) {
		st, err := g.newState()
		if err != nil {
			yield(Op{}, err)
			return
		}
		for range g.cfg.Operations {
			op, err := st.next()
			if err != nil {
				yield(Op{}, err)
				return
			}
			if !yield(op, nil) {
				return
			}
		}
	}
}

// Collect materializes the whole workload.
func (g *Generator) Collect() ([]Op, error) {
	ops := make([]Op, 0, g.cfg.Operations)
	for op, err := range g.Ops() {
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

type loan struct {
	userID string
	bookID string
}

// state is the shadow of the catalog under test while a sequence is generated.
type state struct {
	g      *Generator
	r      *rand.Rand
	shadow *core.Catalog

	users     []string
	live      []string
	livePos   map[string]int
	synthetic []string
	loans     []loan
	seq       int
	misses    int
}

func (g *Generator) newState() (*state, error) {
	shadow, err := core.New(index.KindHash, core.WithFields())
	if err != nil {
		return nil, err
	}
	if _, err := core.Populate(shadow, g.ds.Books, g.ds.Users); err != nil {
		return nil, fmt.Errorf("workload: populate shadow catalog: %w", err)
	}

	st := &state{
		g:       g,
		r:       rand.New(rand.NewPCG(g.cfg.Seed, 0x6c6962726973)),
		shadow:  shadow,
		livePos: make(map[string]int, len(g.ds.Books)),
	}
	for _, b := range g.ds.Books {
		st.addLive(b.ID)
	}
	for _, u := range shadow.Users() {
		st.users = append(st.users, u.ID)
		for _, bookID := range u.Borrowed {
			st.loans = append(st.loans, loan{userID: u.ID, bookID: bookID})
		}
	}
	return st, nil
}

func (st *state) addLive(id string) {
	st.livePos[id] = len(st.live)
	st.live = append(st.live, id)
}

func (st *state) removeLive(id string) {
	i, ok := st.livePos[id]
	if !ok {
		return
	}
	last := len(st.live) - 1
	st.live[i] = st.live[last]
	st.livePos[st.live[i]] = i
	st.live = st.live[:last]
	delete(st.livePos, id)
}

func (st *state) pickKind() Kind {
	g := st.g
	x := st.r.IntN(g.cum[len(g.cum)-1]) + 1
	i, _ := slices.BinarySearch(g.cum, x)
	return g.kinds[i]
}

func (st *state) next() (Op, error) {
	switch st.pickKind() {
	case KindInsert:
		return st.insert()
	case KindLookup:
		return st.lookup(), nil
	case KindRange:
		return st.rangeScan(), nil
	case KindRecommend:
		return st.recommend(), nil
	case KindCheckout:
		if op, ok := st.checkout(); ok {
			return op, nil
		}
		return st.lookup(), nil
	case KindReturn:
		if op, ok := st.giveBack(); ok {
			return op, nil
		}
		if op, ok := st.checkout(); ok {
			return op, nil
		}
		return st.lookup(), nil
	case KindDelete:
		if op, ok := st.remove(); ok {
			return op, nil
		}
		return st.insert()
	}
	return Op{}, ErrUnknownOp
}

func (st *state) field() common.Field {
	fields := st.g.cfg.Fields
	return fields[st.r.IntN(len(fields))]
}

// missKey returns a key no dataset book carries in any searched field.
func (st *state) missKey() string {
	for {
		st.misses++
		key := fmt.Sprintf("%s%06d", missPrefix, st.misses)
		if !st.g.present.MayContain(key) {
			return key
		}
	}
}

func (st *state) lookup() Op {
	f := st.field()
	s := st.g.samplers[f]
	if s.empty() || st.r.Float64() < st.g.cfg.MissRatio {
		return Op{Kind: KindLookup, Field: f, Key: st.missKey()}
	}
	return Op{Kind: KindLookup, Field: f, Key: s.draw(st.r)}
}

func (st *state) rangeScan() Op {
	f := st.field()
	s := st.g.samplers[f]
	key := ""
	if !s.empty() {
		key = s.draw(st.r)
	}
	lo, hi := prefixBounds(key)
	return Op{Kind: KindRange, Field: f, Key: lo, KeyHi: hi}
}

// recommend seeds on a dataset book; those are never deleted by the workload.
func (st *state) recommend() Op {
	p := st.g.popular
	if p.empty() {
		return st.lookup()
	}
	return Op{Kind: KindRecommend, BookID: p.draw(st.r)}
}

func (st *state) insert() (Op, error) {
	for {
		st.seq++
		b := common.Book{
			ID:     fmt.Sprintf("%s%06d", syntheticPrefix, st.seq),
			Title:  fmt.Sprintf("Synthetic Volume %d", st.seq),
			Author: "Synthetic Author",
			Copies: 1 + st.r.IntN(3),
			Rating: math.Round(st.r.Float64()*500) / 100,
			Year:   1900 + st.r.IntN(125),
		}
		if n := len(st.g.ds.Books); n > 0 {
			model := st.g.ds.Books[st.r.IntN(n)]
			b.Author = model.Author
			b.Genre = model.Genre
		}
		err := st.shadow.AddBook(b)
		if errors.Is(err, core.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return Op{}, err
		}
		b.Available = b.Copies
		st.addLive(b.ID)
		st.synthetic = append(st.synthetic, b.ID)
		return Op{Kind: KindInsert, BookID: b.ID, Book: &b}, nil
	}
}

func (st *state) checkout() (Op, bool) {
	if len(st.users) == 0 || len(st.live) == 0 {
		return Op{}, false
	}
	for range maxAttempts {
		userID := st.users[st.r.IntN(len(st.users))]
		bookID := st.live[st.r.IntN(len(st.live))]
		if err := st.shadow.Checkout(userID, bookID); err != nil {
			continue
		}
		st.loans = append(st.loans, loan{userID: userID, bookID: bookID})
		return Op{Kind: KindCheckout, UserID: userID, BookID: bookID}, true
	}
	return Op{}, false
}

func (st *state) giveBack() (Op, bool) {
	if len(st.loans) == 0 {
		return Op{}, false
	}
	i := st.r.IntN(len(st.loans))
	l := st.loans[i]
	st.loans[i] = st.loans[len(st.loans)-1]
	st.loans = st.loans[:len(st.loans)-1]
	if err := st.shadow.ReturnBook(l.userID, l.bookID); err != nil {
		return Op{}, false
	}
	return Op{Kind: KindReturn, UserID: l.userID, BookID: l.bookID}, true
}

// remove only deletes books the workload inserted itself, so dataset books
// stay available for lookups.
func (st *state) remove() (Op, bool) {
	for range maxAttempts {
		if len(st.synthetic) == 0 {
			return Op{}, false
		}
		i := st.r.IntN(len(st.synthetic))
		id := st.synthetic[i]
		if err := st.shadow.RemoveBook(id); err != nil {
			continue
		}
		st.synthetic = slices.Delete(st.synthetic, i, i+1)
		st.removeLive(id)
		return Op{Kind: KindDelete, BookID: id}, true
	}
	return Op{}, false
}

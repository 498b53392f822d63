// Package terms implements hash-consed terms: immutable cons cells interned
// in a Pool so that structural equality coincides with pointer identity.
//
// A UTerm is a pair (head, tail) where head is an Atom -- a small
// identity-comparable value -- and tail is either nil or another UTerm of the
// same pool. For any (head, tail) the pool holds exactly one UTerm, so terms
// can be compared and used as hash-map keys by identity, in O(1), regardless
// of their structural size. Kernel blueprints (see the kernelize package) are
// UTerms, which is what makes them usable as code-generation cache keys.
//
// Terms live for the lifetime of their pool. The pool grows monotonically
// until Reset, which invalidates all outstanding terms.
package terms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Atom is any value accepted as a term head: small integers, interned
// Symbols, runes, dtype enums and already-interned terms of the same pool.
//
// The restriction exists so atom equality is O(1) identity: floating-point
// values and free-form strings are rejected (intern a Symbol instead).
type Atom any

// UTerm is an immutable interned cons cell. See the package documentation.
//
// The zero UTerm is never used; terms are only created through Pool.Intern.
type UTerm struct {
	head Atom
	tail *UTerm

	pool *Pool
	gen  uint32

	// children indexes the interned terms (h, self) by h. It starts as an
	// inline association slice (the child's head is the key) and is upgraded
	// to a map once it outgrows the pool's threshold. Guarded by the pool
	// mutex; invisible to term semantics.
	childList []*UTerm
	childMap  map[Atom]*UTerm
}

// Head returns the term's head atom.
func (t *UTerm) Head() Atom { return t.head }

// Tail returns the term's tail, or nil if this is the last cell.
func (t *UTerm) Tail() *UTerm { return t.tail }

// Len returns the number of cells until the nil tail.
func (t *UTerm) Len() (n int) {
	for ; t != nil; t = t.tail {
		n++
	}
	return
}

// Elements returns the heads of the cells of the list starting at t.
func (t *UTerm) Elements() []Atom {
	out := make([]Atom, 0, t.Len())
	for ; t != nil; t = t.tail {
		out = append(out, t.head)
	}
	return out
}

// At returns the head of the i-th cell. It panics past the end of the list.
func (t *UTerm) At(i int) Atom {
	for ; i > 0; i-- {
		t = t.tail
	}
	return t.head
}

// String renders the list starting at t as an s-expression.
func (t *UTerm) String() string {
	var b strings.Builder
	t.format(&b)
	return b.String()
}

func (t *UTerm) format(b *strings.Builder) {
	b.WriteByte('(')
	for cell := t; cell != nil; cell = cell.tail {
		if cell != t {
			b.WriteByte(' ')
		}
		if sub, ok := cell.head.(*UTerm); ok {
			sub.format(b)
			continue
		}
		fmt.Fprintf(b, "%v", cell.head)
	}
	b.WriteByte(')')
}

// DefaultChildTableUpgradeThreshold is the child-table size past which the
// inline association slice is converted to a hash map.
const DefaultChildTableUpgradeThreshold = 8

// Pool interns UTerms. See the package documentation.
//
// All methods are safe for concurrent use: interning is serialized behind a
// single mutex, so after racing Intern calls with equal arguments every
// caller observes the same term and exactly one node was added.
type Pool struct {
	mu     sync.Mutex
	leaves map[Atom]*UTerm
	count  int
	gen    uint32

	leafCapacity     int
	upgradeThreshold int
}

// Option configures a Pool. See WithInitialLeafCapacity and
// WithChildTableUpgradeThreshold.
type Option func(p *Pool)

// WithInitialLeafCapacity hints the initial size of the leaf table.
func WithInitialLeafCapacity(hint int) Option {
	return func(p *Pool) { p.leafCapacity = hint }
}

// WithChildTableUpgradeThreshold sets the child-table size past which the
// inline association slice is upgraded to a hash map. Defaults to
// DefaultChildTableUpgradeThreshold.
func WithChildTableUpgradeThreshold(n int) Option {
	return func(p *Pool) { p.upgradeThreshold = n }
}

// NewPool returns an empty pool.
func NewPool(options ...Option) *Pool {
	p := &Pool{upgradeThreshold: DefaultChildTableUpgradeThreshold}
	for _, option := range options {
		option(p)
	}
	p.leaves = make(map[Atom]*UTerm, p.leafCapacity)
	return p
}

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

// Default returns the process-wide pool, lazily initialized on first use.
func Default() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool()
	})
	return defaultPool
}

// NodeCount returns the number of terms interned so far.
func (p *Pool) NodeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Reset clears the pool. All outstanding terms of the pool become invalid:
// using one as a head or tail afterwards is a fatal error. Intended for
// long-running processes that want to drop accumulated blueprints.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaves = make(map[Atom]*UTerm, p.leafCapacity)
	p.count = 0
	p.gen++
}

// String implements fmt.Stringer with a short usage summary.
func (p *Pool) String() string {
	return fmt.Sprintf("terms.Pool{%s nodes}", humanize.Comma(int64(p.NodeCount())))
}

// checkAtom validates the Atom contract for head values. Fatal on violation.
func (p *Pool) checkAtom(head Atom) {
	switch h := head.(type) {
	case int, int32, int64, Symbol, dtypes.DType:
		// rune is int32.
	case *UTerm:
		if h == nil {
			// A nil term is the empty list, a valid element.
			return
		}
		if h.pool != p || h.gen != p.gen {
			exceptions.Panicf("terms: head term %s is not owned by this pool", h)
		}
	case float32, float64, string, []byte:
		exceptions.Panicf("terms: %T is not a valid atom; floats and strings are excluded, intern a Symbol instead", head)
	default:
		exceptions.Panicf("terms: %T is not a valid atom", head)
	}
}

// Intern returns the unique term (head, tail) of the pool, creating it on
// first use. tail must be nil or a term of this pool.
func (p *Pool) Intern(head Atom, tail *UTerm) *UTerm {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkAtom(head)

	if tail == nil {
		if t, found := p.leaves[head]; found {
			return t
		}
		t := p.newTerm(head, nil)
		p.leaves[head] = t
		return t
	}

	if tail.pool != p || tail.gen != p.gen {
		exceptions.Panicf("terms: tail term %s is not owned by this pool", tail)
	}

	// Consult the tail's child table.
	if tail.childMap != nil {
		if t, found := tail.childMap[head]; found {
			return t
		}
		t := p.newTerm(head, tail)
		tail.childMap[head] = t
		return t
	}
	for _, t := range tail.childList {
		if t.head == head {
			return t
		}
	}
	t := p.newTerm(head, tail)
	tail.childList = append(tail.childList, t)
	if len(tail.childList) > p.upgradeThreshold {
		tail.childMap = make(map[Atom]*UTerm, len(tail.childList))
		for _, child := range tail.childList {
			tail.childMap[child.head] = child
		}
		tail.childList = nil
	}
	return t
}

// newTerm allocates a fresh node. Callers must hold p.mu.
func (p *Pool) newTerm(head Atom, tail *UTerm) *UTerm {
	p.count++
	return &UTerm{head: head, tail: tail, pool: p, gen: p.gen}
}

// List interns the nil-terminated list of the given atoms and returns its
// first cell, or nil for an empty list.
func (p *Pool) List(atoms ...Atom) *UTerm {
	var list *UTerm
	for i := len(atoms) - 1; i >= 0; i-- {
		list = p.Intern(atoms[i], list)
	}
	return list
}

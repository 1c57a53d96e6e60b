// Package filter implements the ordered, composable article predicate
// chain of spec.md §4.F. Grounded on the teacher's
// internal/nntp/nntp-peering-pattern.go (ordered pattern checks that
// return a reason struct and short-circuit), generalized from peer
// send/exclude/reject patterns to posting-time predicates.
package filter

import (
	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wire"
)

// Deps bundles the collaborators every predicate may consult.
type Deps struct {
	Store  *store.Store
	Auth   *auth.Store
	Config *config.Config
}

// Predicate is one article check in the chain.
type Predicate interface {
	// Check returns nil to accept, or a *nntperr.Error to reject.
	Check(deps Deps, msg *wire.Message, size int64) error
	Name() string
}

// Chain is an ordered sequence of Predicates. The chain short-circuits
// on the first failure (spec.md §4.F, invariant 5: monotone — appending
// a predicate can only shrink the accepted set).
type Chain struct {
	predicates []Predicate
}

// NewChain builds a chain with the built-in predicates in spec.md's
// default order, plus any optional predicates (e.g. milter) appended.
func NewChain(optional ...Predicate) *Chain {
	c := &Chain{predicates: []Predicate{
		HeaderFilter{},
		SizeFilter{},
		GroupExistenceFilter{},
		ModerationFilter{},
	}}
	c.predicates = append(c.predicates, optional...)
	return c
}

// Run evaluates every predicate in order, returning the first rejection.
func (c *Chain) Run(deps Deps, msg *wire.Message, size int64) error {
	for _, p := range c.predicates {
		if err := p.Check(deps, msg, size); err != nil {
			return err
		}
	}
	return nil
}

// Append adds a predicate to the end of the chain after construction.
func (c *Chain) Append(p Predicate) {
	c.predicates = append(c.predicates, p)
}

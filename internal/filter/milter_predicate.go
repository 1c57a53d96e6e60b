package filter

import (
	"github.com/nntpcore/newsd/internal/milter"
	"github.com/nntpcore/newsd/internal/nntperr"
	"github.com/nntpcore/newsd/internal/wire"
)

// MilterPredicate adapts a milter.Client into the Predicate interface,
// factory-constructed from config per spec.md §4.F.
type MilterPredicate struct {
	Client *milter.Client
}

func (MilterPredicate) Name() string { return "milter" }

func (p MilterPredicate) Check(_ Deps, msg *wire.Message, _ int64) error {
	from, _ := msg.Get("From")
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Name] = h.Value
	}
	verdict, err := p.Client.Check(from, headers, msg.Body)
	if err != nil {
		return nntperr.Wrap(nntperr.KindIO, "milter check failed", err)
	}
	switch verdict {
	case milter.Ok:
		return nil
	case milter.Reject:
		return nntperr.New(nntperr.KindFilterRejected, "rejected by milter")
	case milter.Discard:
		return nntperr.New(nntperr.KindFilterRejected, "discarded by milter")
	default:
		return nntperr.New(nntperr.KindFilterRejected, "milter temporary failure")
	}
}

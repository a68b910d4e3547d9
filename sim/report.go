package sim

import (
	"context"

	"dag-ledger/models"

	"golang.org/x/sync/errgroup"
)

// ParticipantReport is one participant's view at the end of a run.
type ParticipantReport struct {
	ID      string        `json:"id"`
	Blocks  int           `json:"blocks"`
	Orphans int           `json:"orphans"`
	Tips    []models.Hash `json:"tips"`
	// Digest identifies the merged order of the whole DAG.
	Digest models.Hash `json:"digest"`
	// Ordered counts the blocks in the merged order. The rest were left out as conflicts.
	Ordered int `json:"ordered"`
}

type Report struct {
	Slots         int                 `json:"slots"`
	Produced      int                 `json:"produced"`
	Skipped       int                 `json:"skipped"`
	Equivocations int                 `json:"equivocations"`
	Participants  []ParticipantReport `json:"participants"`
	// CanonicalTip is the longest chain among the first participant's tips.
	CanonicalTip models.Hash `json:"canonical_tip"`
	// OffChain counts the blocks that tip does not descend from.
	OffChain int `json:"off_chain"`
}

// Converged reports whether every participant holds the same DAG and the same merged order.
func (r *Report) Converged() bool {
	if len(r.Participants) == 0 {
		return true
	}
	first := r.Participants[0]
	for _, p := range r.Participants {
		if p.Blocks != first.Blocks || p.Digest != first.Digest || p.Orphans != 0 {
			return false
		}
	}
	return true
}

func (n *Network) report(ctx context.Context) (*Report, error) {
	r := &Report{
		Slots:         n.cfg.Slots,
		Produced:      n.produced,
		Skipped:       n.skipped,
		Equivocations: n.equivocations,
		Participants:  make([]ParticipantReport, len(n.participants)),
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range n.participants {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seq, err := p.Order()
			if err != nil {
				return err
			}
			r.Participants[i] = ParticipantReport{
				ID:      p.ID(),
				Blocks:  p.Len(),
				Orphans: p.Orphans(),
				Tips:    p.Tips(),
				Digest:  seq.Digest(),
				Ordered: seq.Size(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chosen, offChain, err := n.participants[0].LongestChain(n.participants[0].Tips())
	if err != nil {
		return nil, err
	}
	r.CanonicalTip = chosen
	r.OffChain = len(offChain)
	return r, nil
}

// Package sim runs several participants against each other over an in-process network with
// skipped slots, late deliveries and equivocating leaders.
package sim

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/rand"

	"dag-ledger/finality"
	"dag-ledger/logger"
	"dag-ledger/models"
	"dag-ledger/node"
	"dag-ledger/validators"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned by NewNetwork.
var ErrInvalidConfig = errors.New("invalid simulation config")

type Config struct {
	Participants int
	Slots        int
	// SkipRate is the chance a leader produces nothing in its slot.
	SkipRate float64
	// EquivocationRate is the chance a producing leader signs two blocks for its slot, each sent
	// first to one half of the network.
	EquivocationRate float64
	// DelayRate is the chance one delivery arrives a slot late.
	DelayRate float64
	Seed      int64
	Params    finality.Params
}

func DefaultConfig() Config {
	return Config{
		Participants:     4,
		Slots:            40,
		SkipRate:         0.1,
		EquivocationRate: 0.05,
		DelayRate:        0.2,
		Seed:             1,
		Params:           finality.DefaultParams(),
	}
}

func (c Config) validate() error {
	if c.Participants < 1 {
		return errors.Wrapf(ErrInvalidConfig, "%d participants", c.Participants)
	}
	if c.Slots < 0 {
		return errors.Wrapf(ErrInvalidConfig, "%d slots", c.Slots)
	}
	for name, rate := range map[string]float64{"skip": c.SkipRate, "equivocation": c.EquivocationRate, "delay": c.DelayRate} {
		if rate < 0 || rate > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s rate %v", name, rate)
		}
	}
	return c.Params.Validate()
}

type delivery struct {
	to     int
	number int
	block  *models.SignedBlock
}

// Network drives the participants slot by slot. It is not safe for concurrent use; Run fans the
// deliveries of one slot out itself.
type Network struct {
	cfg          Config
	keys         []*validators.Key
	participants []*node.Participant
	byID         map[string]int
	rng          *rand.Rand
	pending      []delivery

	produced      int
	skipped       int
	equivocations int
	lastSkipped   bool
}

func NewNetwork(cfg Config) (*Network, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := &Network{
		cfg:  cfg,
		byID: make(map[string]int),
		rng:  rand.New(rand.NewSource(cfg.Seed)),
	}
	pubs := make([]ed25519.PublicKey, 0, cfg.Participants)
	for i := 0; i < cfg.Participants; i++ {
		key := validators.NewKey([]byte(fmt.Sprintf("sim-%d-%d", cfg.Seed, i)))
		n.keys = append(n.keys, key)
		n.byID[key.ID()] = i
		pubs = append(pubs, key.Public())
	}
	registry, err := validators.NewRegistry(pubs)
	if err != nil {
		return nil, err
	}
	block, err := models.NewBlock(0, nil, []models.SystemTx{&models.Payload{Data: []byte(fmt.Sprintf("genesis-%d", cfg.Seed))}})
	if err != nil {
		return nil, err
	}
	genesis := models.NewSignedBlock(block, nil)
	for _, key := range n.keys {
		p, err := node.New(node.Config{Params: cfg.Params, Registry: registry, Key: key}, genesis)
		if err != nil {
			return nil, err
		}
		n.participants = append(n.participants, p)
	}
	return n, nil
}

func (n *Network) Participants() []*node.Participant {
	return append([]*node.Participant(nil), n.participants...)
}

// Run plays every slot, then delivers whatever is still in flight and reports.
func (n *Network) Run(ctx context.Context) (*Report, error) {
	for slot := 1; slot <= n.cfg.Slots; slot++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		due := n.pending
		n.pending = nil
		if err := n.deliver(ctx, due); err != nil {
			return nil, err
		}
		outgoing, err := n.produce(slot)
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", slot)
		}
		if err := n.deliver(ctx, outgoing); err != nil {
			return nil, err
		}
	}
	flush := n.pending
	n.pending = nil
	if err := n.deliver(ctx, flush); err != nil {
		return nil, err
	}
	report, err := n.report(ctx)
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("Simulation finished",
		zap.Int("slots", n.cfg.Slots),
		zap.Int("produced", n.produced),
		zap.Int("skipped", n.skipped),
		zap.Int("equivocations", n.equivocations),
		zap.Bool("converged", report.Converged()))
	return report, nil
}

// produce lets the leader of slot act and returns the deliveries to make right away. Late ones are
// queued for the next slot.
func (n *Network) produce(slot int) ([]delivery, error) {
	leader := n.byID[n.participants[0].Leader(slot)]
	if n.rng.Float64() < n.cfg.SkipRate {
		n.skipped++
		n.lastSkipped = true
		logger.Logger.Debug("Leader skipped", zap.Int("timeslot", slot), zap.Int("leader", leader))
		return nil, nil
	}

	p := n.participants[leader]
	txs := []models.SystemTx{&models.Payload{Data: []byte(fmt.Sprintf("slot-%d", slot))}}
	if tips := p.Tips(); len(tips) > 0 {
		txs = append(txs, &models.PositiveAck{Block: tips[0]})
	}
	if n.lastSkipped {
		txs = append(txs, &models.NegativeAck{Timeslot: slot - 1})
	}
	n.lastSkipped = false

	block, err := p.Produce(slot, txs...)
	if err != nil {
		return nil, err
	}
	n.produced++

	var twin *models.SignedBlock
	if n.rng.Float64() < n.cfg.EquivocationRate {
		twinTxs := append([]models.SystemTx{&models.Payload{Data: []byte(fmt.Sprintf("slot-%d-twin", slot))}}, txs[1:]...)
		raw, err := models.NewBlock(int64(slot), block.Block.PrevHashes(), twinTxs)
		if err != nil {
			return nil, err
		}
		twin = n.keys[leader].Sign(raw)
		if err := p.Receive(slot, twin); err != nil {
			return nil, err
		}
		n.equivocations++
		logger.Logger.Debug("Leader equivocated", zap.Int("timeslot", slot), zap.Int("leader", leader))
	}

	var now []delivery
	half := 0
	for i := range n.participants {
		if i == leader {
			continue
		}
		first, second := block, twin
		if twin != nil && half%2 == 1 {
			first, second = twin, block
		}
		half++
		d := delivery{to: i, number: slot, block: first}
		if n.rng.Float64() < n.cfg.DelayRate {
			n.pending = append(n.pending, d)
		} else {
			now = append(now, d)
		}
		if second != nil {
			n.pending = append(n.pending, delivery{to: i, number: slot, block: second})
		}
	}
	return now, nil
}

// deliver hands every block to its recipient. Recipients run concurrently, and each one receives
// its blocks in order from a single goroutine.
func (n *Network) deliver(ctx context.Context, deliveries []delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	batches := make(map[int][]delivery)
	for _, d := range deliveries {
		batches[d.to] = append(batches[d.to], d)
	}
	g, ctx := errgroup.WithContext(ctx)
	for to, batch := range batches {
		p := n.participants[to]
		g.Go(func() error {
			for _, d := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := p.Receive(d.number, d.block); err != nil {
					return errors.Wrapf(err, "delivering %s", d.block.Hash())
				}
			}
			return nil
		})
	}
	return g.Wait()
}

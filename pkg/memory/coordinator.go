// Package memory implements the MemoryCoordinator described in §4.11:
// a compact per-hardware_id memory context prepended to the prompt on
// the read path, and a distill-and-persist write path run after each
// exchange via an external MemoryAnalyser.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// ReadBudget bounds the read path per §4.11: on timeout or error, no
// block is prepended.
const ReadBudget = 2 * time.Second

// MaxFieldSize bounds each distilled memory field per §4.11.
const MaxFieldSize = 10 * 1024

// Pair is the {short, long} memory tuple carried in both directions.
type Pair struct {
	Short string
	Long  string
}

// DatabaseAdapter is the persistence capability MemoryCoordinator
// depends on; PostgresAdapter is the concrete implementation wired in
// §9's domain stack.
type DatabaseAdapter interface {
	Fetch(ctx context.Context, hardwareID string) (Pair, error)
	Store(ctx context.Context, hardwareID string, pair Pair) error
}

// Analyser is the external MemoryAnalyser capability: given the prompt
// and the final assistant text of one exchange, it proposes an updated
// {short, long} pair.
type Analyser interface {
	Distil(ctx context.Context, hardwareID, prompt, finalText string, previous Pair) (Pair, error)
}

// Coordinator implements the read/write paths of §4.11.
type Coordinator struct {
	db       DatabaseAdapter
	analyser Analyser
	log      logger.Logger
}

// New constructs a Coordinator. analyser may be nil, in which case the
// write path is a no-op — wiring a real MemoryAnalyser is optional, as
// named in §9's open questions, and skipping it only means memories
// never update, not that reads fail.
func New(db DatabaseAdapter, analyser Analyser, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop{}
	}
	return &Coordinator{db: db, analyser: analyser, log: log}
}

// ContextBlock fetches {short, long} for hardwareID within ReadBudget
// and renders the MEMORY CONTEXT block to prepend to the prompt. It
// returns an empty string, no error, on timeout or any fetch failure,
// matching §4.11's "no block is prepended" rule.
func (c *Coordinator) ContextBlock(ctx context.Context, hardwareID string) string {
	ctx, cancel := context.WithTimeout(ctx, ReadBudget)
	defer cancel()

	pair, err := c.db.Fetch(ctx, hardwareID)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.log.Warn("memory read path failed, omitting context block", "hardware_id", hardwareID, "err", err)
		return ""
	}

	return fmt.Sprintf(
		"MEMORY CONTEXT\nSHORT-TERM MEMORY: %s\nLONG-TERM MEMORY: %s\nMEMORY USAGE INSTRUCTIONS: use this context only when relevant.",
		pair.Short, pair.Long,
	)
}

// Distil invokes the MemoryAnalyser and persists its result after one
// exchange completes. Failures are logged and swallowed per §4.11; the
// caller never needs to react to a write-path error.
func (c *Coordinator) Distil(ctx context.Context, hardwareID, prompt, finalText string) {
	if c.analyser == nil {
		return
	}

	previous, err := c.db.Fetch(ctx, hardwareID)
	if err != nil {
		c.log.Warn("memory write path: could not load previous pair", "hardware_id", hardwareID, "err", err)
		previous = Pair{}
	}

	updated, err := c.analyser.Distil(ctx, hardwareID, prompt, finalText, previous)
	if err != nil {
		c.log.Warn("memory analyser failed", "hardware_id", hardwareID, "err", err)
		return
	}

	updated = clampPair(updated)

	if err := c.db.Store(ctx, hardwareID, updated); err != nil {
		c.log.Warn("memory store failed", "hardware_id", hardwareID, "err", err)
	}
}

func clampPair(p Pair) Pair {
	if len(p.Short) > MaxFieldSize {
		p.Short = p.Short[:MaxFieldSize]
	}
	if len(p.Long) > MaxFieldSize {
		p.Long = p.Long[:MaxFieldSize]
	}
	return p
}

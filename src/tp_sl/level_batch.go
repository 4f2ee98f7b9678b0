package tp_sl

import "agentengine/src/model"

// LevelBatch is the take-profit level window of a position.
//
// Offset is the levels-hit count at which the active batch started and Ceiling the
// levels-hit count at which it is exhausted. A DCA buy replaces the window with a fresh
// batch so the configured levels are evaluated again from index 0.
type LevelBatch struct {
	Offset  int
	Ceiling int
}

// NewLevelBatch returns the initial batch of a newly opened position.
func NewLevelBatch(levels int) LevelBatch {
	return LevelBatch{Offset: 0, Ceiling: levels}
}

// BatchOf reads the batch stored on p. Legacy rows without a ceiling get one full batch.
func BatchOf(p *model.Position, levels int) LevelBatch {
	b := LevelBatch{Offset: p.TPBatchStartLevel, Ceiling: p.TotalTakeProfitLevels}
	if b.Ceiling <= 0 {
		b.Ceiling = b.Offset + levels
	}
	return b
}

// Index is the configured level index evaluated next for levelsHit.
func (b LevelBatch) Index(levelsHit int) int {
	i := levelsHit - b.Offset
	if i < 0 {
		return 0
	}
	return i
}

// Remaining is how many levels can still be hit in this batch.
func (b LevelBatch) Remaining(levelsHit int) int {
	r := b.Ceiling - levelsHit
	if r < 0 {
		return 0
	}
	return r
}

// Append starts a fresh batch of n levels at levelsHit.
func (b LevelBatch) Append(levelsHit, n int) LevelBatch {
	next := LevelBatch{Offset: levelsHit, Ceiling: levelsHit + n}
	if next.Ceiling < b.Ceiling {
		next.Ceiling = b.Ceiling
	}
	return next
}

// Apply writes the batch back onto p.
func (b LevelBatch) Apply(p *model.Position) {
	p.TPBatchStartLevel = b.Offset
	p.TotalTakeProfitLevels = b.Ceiling
}

package ingest

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// vesting appends migrated schedules to those already on the destination.
// When the result exceeds MaxVestingSchedules, the last two schedules are
// merged until every schedule fits.
func (in *Ingestor) vesting(_ context.Context, raw []byte, batch database.Batch) error {
	v, err := records.Decode[records.Vesting](raw)
	if err != nil {
		return err
	}
	in.translate(v)

	existing, err := load[records.Vesting](in.env.Store, v.Key())
	if err != nil {
		return err
	}
	var all []records.VestingSchedule
	if existing != nil && len(existing.Schedules) > 0 {
		in.env.Log.Warn("Merging with existing vesting schedule", "who", v.Who)
		all = append(all, existing.Schedules...)
	}
	all = append(all, v.Schedules...)

	limit := in.env.Config.MaxVestingSchedules
	if limit < 2 {
		return fmt.Errorf("invalid vesting schedule limit %d", limit)
	}
	all, merged := in.conv.Schedules(all)
	if merged > 0 {
		in.env.Log.Error("Truncated vesting schedules", "who", v.Who, "truncated", merged)
	}
	v.Schedules = all
	return put(batch, v)
}

// endingBlock is the first block at which s is fully unlocked.
func endingBlock(s records.VestingSchedule) uint64 {
	if s.PerBlock.IsZero() {
		return s.Starting
	}
	blocks := new(uint256.Int).Div(s.Locked, s.PerBlock)
	if new(uint256.Int).Mod(s.Locked, s.PerBlock).Sign() > 0 {
		blocks.AddUint64(blocks, 1)
	}
	if !blocks.IsUint64() {
		return ^uint64(0)
	}
	return satAdd(s.Starting, blocks.Uint64())
}

// lockedAt is the amount still locked by s at block now.
func lockedAt(s records.VestingSchedule, now uint64) *uint256.Int {
	if now <= s.Starting {
		return s.Locked.Clone()
	}
	vested := new(uint256.Int).Mul(s.PerBlock, uint256.NewInt(now-s.Starting))
	if vested.Cmp(s.Locked) >= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(s.Locked, vested)
}

// mergeSchedules combines two schedules into one that unlocks the remaining
// amount of both by the later of their ending blocks.
func mergeSchedules(a, b records.VestingSchedule, now uint64) records.VestingSchedule {
	locked := new(uint256.Int).Add(lockedAt(a, now), lockedAt(b, now))
	start := max(now, a.Starting, b.Starting)
	end := max(endingBlock(a), endingBlock(b))

	duration := uint64(1)
	if end > start {
		duration = end - start
	}
	perBlock := new(uint256.Int).Div(locked, uint256.NewInt(duration))
	if perBlock.IsZero() {
		perBlock.SetOne()
	}
	return records.VestingSchedule{Locked: locked, PerBlock: perBlock, Starting: start}
}

package ingest

import "github.com/luxfi/migrator/pkg/records"

// proxy types without a destination counterpart
var unsupportedProxyTypes = map[records.ProxyType]bool{
	records.ProxyAuction:          true,
	records.ProxyParaRegistration: true,
}

// Converter rewrites records into the form the handlers store on the
// destination, without touching any store. The consistency checks use the
// same conversions to predict the destination state.
type Converter struct {
	cfg   Config
	clock Clock
}

// NewConverter creates a converter. A nil clock reads as block zero on both chains.
func NewConverter(cfg Config, clock Clock) Converter {
	if clock == nil {
		clock = FixedClock{}
	}
	return Converter{cfg: cfg.withDefaults(), clock: clock}
}

// Delay converts a duration in source blocks to destination blocks.
func (c Converter) Delay(d uint64) uint64 {
	ratio := c.cfg.BlockRatio
	if ratio <= 1 {
		return d
	}
	return d / ratio
}

// Reanchor converts an absolute source block into a destination block by
// keeping its distance to the current block of each chain.
func (c Converter) Reanchor(ts uint64) uint64 {
	srcNow, dstNow := c.clock.SourceNow(), c.clock.DestinationNow()
	if ts <= srcNow {
		since := c.Delay(srcNow - ts)
		if since > dstNow {
			return 0
		}
		return dstNow - since
	}
	return satAdd(dstNow, c.Delay(ts-srcNow))
}

// Proxies drops unsupported proxy kinds, converts delays and truncates the
// list to MaxProxies. It returns the dropped definitions and the number of
// definitions cut by truncation.
func (c Converter) Proxies(p *records.Proxies) (dropped []records.ProxyDefinition, truncated int) {
	limit := c.cfg.MaxProxies
	kept := make([]records.ProxyDefinition, 0, len(p.Proxies))
	for i, def := range p.Proxies {
		if unsupportedProxyTypes[def.Type] {
			dropped = append(dropped, def)
			continue
		}
		if len(kept) == limit {
			truncated = len(p.Proxies) - i
			break
		}
		def.Delay = c.Delay(def.Delay)
		kept = append(kept, def)
	}
	p.Proxies = kept
	return dropped, truncated
}

// Pool re-anchors the commission throttle of a bonded pool.
func (c Converter) Pool(p *records.BondedPool) {
	cm := &p.Commission
	if cm.ThrottleFrom != 0 {
		// one extra block so a pending commission change is never enacted early
		cm.ThrottleFrom = satAdd(c.Reanchor(cm.ThrottleFrom), 1)
	}
	if cm.MinDelay != 0 {
		cm.MinDelay = satAdd(c.Delay(cm.MinDelay), 1)
	}
}

// Schedules merges the last two schedules until at most MaxVestingSchedules
// remain. It returns the number of merges.
func (c Converter) Schedules(all []records.VestingSchedule) ([]records.VestingSchedule, int) {
	limit := c.cfg.MaxVestingSchedules
	merged := 0
	now := c.clock.DestinationNow()
	for len(all) > limit {
		n := len(all)
		all = append(all[:n-2], mergeSchedules(all[n-2], all[n-1], now))
		merged++
	}
	return all, merged
}

// Agenda drops the tasks whose origin has no destination counterpart and
// returns them.
func (c Converter) Agenda(a *records.Agenda) []records.ScheduledTask {
	var dropped []records.ScheduledTask
	kept := make([]records.ScheduledTask, 0, len(a.Tasks))
	for _, t := range a.Tasks {
		if !t.Origin.Portable() {
			dropped = append(dropped, t)
			continue
		}
		kept = append(kept, t)
	}
	a.Tasks = kept
	return dropped
}

func satAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}

// FixedClock is a Clock with constant block numbers.
type FixedClock struct {
	Source      uint64
	Destination uint64
}

func (c FixedClock) SourceNow() uint64      { return c.Source }
func (c FixedClock) DestinationNow() uint64 { return c.Destination }

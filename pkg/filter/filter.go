// Package filter decides which user calls each chain accepts while the
// migration is running.
package filter

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/stage"
)

// Category groups the calls of one runtime module.
type Category string

const (
	System           Category = "system"
	Timestamp        Category = "timestamp"
	Consensus        Category = "consensus"
	Session          Category = "session"
	ParachainSystem  Category = "parachain_system"
	Parachains       Category = "parachains"
	MessageQueue     Category = "message_queue"
	Utility          Category = "utility"
	Balances         Category = "balances"
	Assets           Category = "assets"
	Scheduler        Category = "scheduler"
	XCM              Category = "xcm"
	Indices          Category = "indices"
	Staking          Category = "staking"
	NominationPools  Category = "nomination_pools"
	FastUnstake      Category = "fast_unstake"
	VoterList        Category = "voter_list"
	Vesting          Category = "vesting"
	Multisig         Category = "multisig"
	Proxy            Category = "proxy"
	Preimage         Category = "preimage"
	Referenda        Category = "referenda"
	ConvictionVoting Category = "conviction_voting"
	Bounties         Category = "bounties"
	Treasury         Category = "treasury"
	Recovery         Category = "recovery"
	Society          Category = "society"
	OnDemand         Category = "on_demand"
	Registrar        Category = "registrar"
)

// Call is a user transaction as seen by the filter.
type Call struct {
	Chain    core.Chain
	Category Category
	Name     string
}

func (c Call) String() string {
	return fmt.Sprintf("%s.%s on %s", c.Category, c.Name, c.Chain)
}

// Phase is the position of a chain relative to its migration.
type Phase uint8

const (
	Before Phase = iota
	During
	After
)

func (p Phase) String() string {
	switch p {
	case Before:
		return "before"
	case During:
		return "during"
	default:
		return "after"
	}
}

// SourcePhase maps a source stage to its phase.
func SourcePhase(s stage.Stage) Phase {
	switch s {
	case stage.Pending:
		return Before
	case stage.MigrationDone:
		return After
	}
	return During
}

// DestinationPhase maps a destination stage to its phase.
func DestinationPhase(s stage.DestinationStage) Phase {
	switch s {
	case stage.DestinationPending:
		return Before
	case stage.DestinationDone:
		return After
	}
	return During
}

// StageReader exposes the current stage of both chains.
type StageReader interface {
	SourceStage() stage.Stage
	DestinationStage() stage.DestinationStage
}

// Stages is a fixed StageReader.
type Stages struct {
	Source      stage.Stage
	Destination stage.DestinationStage
}

func (s Stages) SourceStage() stage.Stage                 { return s.Source }
func (s Stages) DestinationStage() stage.DestinationStage { return s.Destination }

// Rule overrides the policy tables. When is an expr-lang boolean expression
// over chain, stage, phase, category and call.
type Rule struct {
	When  string `mapstructure:"when"`
	Allow bool   `mapstructure:"allow"`
}

type compiledRule struct {
	Rule
	program *exprvm.Program
}

// Filter answers whether a call is allowed. It only reads the stages.
type Filter struct {
	log    log.Logger
	stages StageReader
	rules  []compiledRule
}

// New compiles rules and returns a filter reading stages.
func New(logger log.Logger, stages StageReader, rules []Rule) (*Filter, error) {
	f := &Filter{log: logger, stages: stages}
	for i, r := range rules {
		program, err := exprlang.Compile(r.When, exprlang.Env(map[string]any{}), exprlang.AllowUndefinedVariables(), exprlang.AsBool())
		if err != nil {
			return nil, core.ErrInvalidConfigf("filter rule %d %q: %v", i, r.When, err)
		}
		f.rules = append(f.rules, compiledRule{Rule: r, program: program})
	}
	return f, nil
}

// Phase returns the phase of chain.
func (f *Filter) Phase(chain core.Chain) Phase {
	if chain == core.Source {
		return SourcePhase(f.stages.SourceStage())
	}
	return DestinationPhase(f.stages.DestinationStage())
}

func (f *Filter) stageName(chain core.Chain) string {
	if chain == core.Source {
		return f.stages.SourceStage().String()
	}
	return f.stages.DestinationStage().String()
}

// IsAllowed reports whether call may execute now. The first matching rule
// wins, otherwise the policy table of the call's chain decides.
func (f *Filter) IsAllowed(call Call) bool {
	phase := f.Phase(call.Chain)
	if len(f.rules) > 0 {
		env := map[string]any{
			"chain":    call.Chain.String(),
			"stage":    f.stageName(call.Chain),
			"phase":    phase.String(),
			"category": string(call.Category),
			"call":     call.Name,
		}
		for _, r := range f.rules {
			out, err := exprlang.Run(r.program, env)
			if err != nil {
				f.log.Warn("Filter rule failed", "rule", r.When, "call", call, "error", err)
				continue
			}
			if matched, _ := out.(bool); matched {
				return r.Allow
			}
		}
	}
	return Allowed(call.Chain, phase, call.Category)
}

// Dispatch runs fn if call is allowed and returns core.ErrFiltered otherwise.
func (f *Filter) Dispatch(call Call, fn func() error) error {
	if !f.IsAllowed(call) {
		return fmt.Errorf("%w: %s", core.ErrFiltered, call)
	}
	return fn()
}

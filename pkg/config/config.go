// Package config decodes the migrator settings from viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/controller"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/filter"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/migration"
	"github.com/luxfi/migrator/pkg/weight"
)

// Limits are the per-block budgets of both chains.
type Limits struct {
	SourceRefTime        uint64 `mapstructure:"source_ref_time"`
	SourceProofSize      uint64 `mapstructure:"source_proof_size"`
	DestinationRefTime   uint64 `mapstructure:"destination_ref_time"`
	DestinationProofSize uint64 `mapstructure:"destination_proof_size"`
	DbRead               uint64 `mapstructure:"db_read"`
	DbWrite              uint64 `mapstructure:"db_write"`
	MaxItemsPerBlock     int    `mapstructure:"max_items_per_block"`
	MaxMessagesPerBlock  int    `mapstructure:"max_messages_per_block"`
	MaxMessageSize       int    `mapstructure:"max_message_size"`
}

// Translation lists the parachains whose derived accounts are translated.
type Translation struct {
	ParaIDs           []uint16 `mapstructure:"para_ids"`
	DerivationIndices []uint16 `mapstructure:"derivation_indices"`
}

// Ingest holds the destination handler settings.
type Ingest struct {
	MaxProxies          int    `mapstructure:"max_proxies"`
	MaxVestingSchedules int    `mapstructure:"max_vesting_schedules"`
	BlockRatio          uint64 `mapstructure:"source_to_destination_blocks"`
	// KnownBadMultisigs are hex or bech32 account ids.
	KnownBadMultisigs      []string `mapstructure:"known_bad_multisigs"`
	PartialIngestionPolicy string   `mapstructure:"partial_ingestion_policy"`
	// SourceBlock and DestinationBlock anchor block numbers that are moved
	// between the chains.
	SourceBlock      uint64 `mapstructure:"source_block"`
	DestinationBlock uint64 `mapstructure:"destination_block"`
}

// Metrics configures the prometheus listener.
type Metrics struct {
	Listen string `mapstructure:"listen"`
}

// Config is the complete migrator configuration.
type Config struct {
	Source      core.ChainSpec `mapstructure:"source"`
	Destination core.ChainSpec `mapstructure:"destination"`
	Limits      Limits         `mapstructure:"limits"`
	Translation Translation    `mapstructure:"translation"`
	Ingest      Ingest         `mapstructure:"ingest"`
	Filter      []filter.Rule  `mapstructure:"filter"`
	Metrics     Metrics        `mapstructure:"metrics"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	mig := migration.DefaultConfig()
	ing := ingest.DefaultConfig()
	return &Config{
		Source:      core.ChainSpec{Name: "source", Backend: string(database.PebbleDB)},
		Destination: core.ChainSpec{Name: "destination", Backend: string(database.PebbleDB), ParaID: 1000},
		Limits: Limits{
			SourceRefTime:        500_000_000_000,
			SourceProofSize:      5 * 1024 * 1024,
			DestinationRefTime:   mig.MaxDestinationWeight.RefTime,
			DestinationProofSize: mig.MaxDestinationWeight.ProofSize,
			DbRead:               mig.DbWeight.Read.RefTime,
			DbWrite:              mig.DbWeight.Write.RefTime,
			MaxItemsPerBlock:     mig.MaxItems,
			MaxMessagesPerBlock:  mig.MaxMessages,
			MaxMessageSize:       mig.MaxMessageSize,
		},
		Translation: Translation{ParaIDs: []uint16{}, DerivationIndices: []uint16{}},
		Ingest: Ingest{
			MaxProxies:             ing.MaxProxies,
			MaxVestingSchedules:    ing.MaxVestingSchedules,
			BlockRatio:             ing.BlockRatio,
			PartialIngestionPolicy: string(controller.PolicyAccept),
		},
	}
}

// SetDefaults registers the defaults with v so that environment variables
// can override every key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("source.name", d.Source.Name)
	v.SetDefault("source.backend", d.Source.Backend)
	v.SetDefault("source.db_path", "")
	v.SetDefault("destination.name", d.Destination.Name)
	v.SetDefault("destination.backend", d.Destination.Backend)
	v.SetDefault("destination.db_path", "")
	v.SetDefault("destination.para_id", d.Destination.ParaID)
	v.SetDefault("limits.source_ref_time", d.Limits.SourceRefTime)
	v.SetDefault("limits.source_proof_size", d.Limits.SourceProofSize)
	v.SetDefault("limits.destination_ref_time", d.Limits.DestinationRefTime)
	v.SetDefault("limits.destination_proof_size", d.Limits.DestinationProofSize)
	v.SetDefault("limits.db_read", d.Limits.DbRead)
	v.SetDefault("limits.db_write", d.Limits.DbWrite)
	v.SetDefault("limits.max_items_per_block", d.Limits.MaxItemsPerBlock)
	v.SetDefault("limits.max_messages_per_block", d.Limits.MaxMessagesPerBlock)
	v.SetDefault("limits.max_message_size", d.Limits.MaxMessageSize)
	v.SetDefault("ingest.max_proxies", d.Ingest.MaxProxies)
	v.SetDefault("ingest.max_vesting_schedules", d.Ingest.MaxVestingSchedules)
	v.SetDefault("ingest.source_to_destination_blocks", d.Ingest.BlockRatio)
	v.SetDefault("ingest.partial_ingestion_policy", d.Ingest.PartialIngestionPolicy)
	v.SetDefault("ingest.source_block", 0)
	v.SetDefault("ingest.destination_block", 0)
	v.SetDefault("metrics.listen", "")
}

// Load decodes, normalizes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize applies defaults to unset values.
func (c *Config) Normalize() {
	d := Default()
	c.Source.Normalize(core.Source)
	c.Destination.Normalize(core.Destination)
	if c.Limits.MaxItemsPerBlock == 0 {
		c.Limits.MaxItemsPerBlock = d.Limits.MaxItemsPerBlock
	}
	if c.Limits.MaxMessagesPerBlock == 0 {
		c.Limits.MaxMessagesPerBlock = d.Limits.MaxMessagesPerBlock
	}
	if c.Limits.MaxMessageSize == 0 {
		c.Limits.MaxMessageSize = d.Limits.MaxMessageSize
	}
	if c.Limits.DbRead == 0 && c.Limits.DbWrite == 0 {
		c.Limits.DbRead, c.Limits.DbWrite = d.Limits.DbRead, d.Limits.DbWrite
	}
	if c.Ingest.BlockRatio == 0 {
		c.Ingest.BlockRatio = d.Ingest.BlockRatio
	}
	if c.Ingest.PartialIngestionPolicy == "" {
		c.Ingest.PartialIngestionPolicy = d.Ingest.PartialIngestionPolicy
	}
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Destination.Validate(); err != nil {
		return err
	}
	if c.Source.Backend != string(database.MemDB) && c.Source.DBPath == c.Destination.DBPath {
		return core.ErrInvalidConfig("source and destination must use different databases")
	}
	if c.Limits.MaxMessageSize <= 100 {
		return core.ErrInvalidConfigf("max_message_size must exceed the 100 byte envelope overhead, got %d", c.Limits.MaxMessageSize)
	}
	if c.Limits.MaxItemsPerBlock < 0 || c.Limits.MaxMessagesPerBlock < 0 {
		return core.ErrInvalidConfig("per block limits must not be negative")
	}
	if c.Limits.SourceRefTime == 0 || c.Limits.DestinationRefTime == 0 {
		return core.ErrInvalidConfig("block weight limits must not be zero")
	}
	if c.Ingest.MaxVestingSchedules != 0 && c.Ingest.MaxVestingSchedules < 2 {
		return core.ErrInvalidConfigf("max_vesting_schedules must be at least 2, got %d", c.Ingest.MaxVestingSchedules)
	}
	if _, err := controller.ParsePolicy(c.Ingest.PartialIngestionPolicy); err != nil {
		return err
	}
	if _, err := c.knownBadMultisigs(); err != nil {
		return err
	}
	return nil
}

// DbWeight returns the storage cost model.
func (c *Config) DbWeight() weight.DbWeight {
	return weight.DbWeight{
		Read:  weight.New(c.Limits.DbRead, 0),
		Write: weight.New(c.Limits.DbWrite, 0),
	}
}

// SourceWeight is the budget of one source block.
func (c *Config) SourceWeight() weight.Weight {
	return weight.New(c.Limits.SourceRefTime, c.Limits.SourceProofSize)
}

// DestinationWeight is the budget of one destination block.
func (c *Config) DestinationWeight() weight.Weight {
	return weight.New(c.Limits.DestinationRefTime, c.Limits.DestinationProofSize)
}

// Migration returns the extractor limits.
func (c *Config) Migration() migration.Config {
	return migration.Config{
		DbWeight:             c.DbWeight(),
		MaxDestinationWeight: c.DestinationWeight(),
		MaxItems:             c.Limits.MaxItemsPerBlock,
		MaxMessages:          c.Limits.MaxMessagesPerBlock,
		MaxMessageSize:       c.Limits.MaxMessageSize,
	}
}

func (c *Config) knownBadMultisigs() ([]account.ID, error) {
	out := make([]account.ID, 0, len(c.Ingest.KnownBadMultisigs))
	for _, s := range c.Ingest.KnownBadMultisigs {
		id, err := account.ParseID(s)
		if err != nil {
			return nil, core.ErrInvalidConfigf("known bad multisig %q: %v", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// IngestConfig returns the destination handler settings.
func (c *Config) IngestConfig() (ingest.Config, error) {
	bad, err := c.knownBadMultisigs()
	if err != nil {
		return ingest.Config{}, err
	}
	return ingest.Config{
		MaxProxies:          c.Ingest.MaxProxies,
		MaxVestingSchedules: c.Ingest.MaxVestingSchedules,
		BlockRatio:          c.Ingest.BlockRatio,
		KnownBadMultisigs:   bad,
	}, nil
}

// Clock returns the block numbers used to re-anchor moved block numbers.
func (c *Config) Clock() ingest.FixedClock {
	return ingest.FixedClock{Source: c.Ingest.SourceBlock, Destination: c.Ingest.DestinationBlock}
}

// Converter returns the record conversions of the destination handlers.
func (c *Config) Converter() (ingest.Converter, error) {
	ingestCfg, err := c.IngestConfig()
	if err != nil {
		return ingest.Converter{}, err
	}
	return ingest.NewConverter(ingestCfg, c.Clock()), nil
}

// Policy returns the partial ingestion policy.
func (c *Config) Policy() (controller.Policy, error) {
	return controller.ParsePolicy(c.Ingest.PartialIngestionPolicy)
}

// Translator builds the account translator. Without para ids only sovereign
// accounts are translated.
func (c *Config) Translator() (*account.Translator, error) {
	if len(c.Translation.ParaIDs) == 0 || len(c.Translation.DerivationIndices) == 0 {
		return account.NewTranslator(nil), nil
	}
	table, err := account.BuildTable(c.Translation.ParaIDs, c.Translation.DerivationIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to build translation table: %w", err)
	}
	return account.NewTranslator(table), nil
}

package application

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	"github.com/spf13/viper"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/config"
	"github.com/luxfi/migrator/pkg/controller"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/filter"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/migration"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/xcm"
)

var (
	// the outbound channel lives with the source, acknowledgements with the destination
	outboxPrefix = records.MetaKey("xcm/out/")
	ackPrefix    = records.MetaKey("xcm/ack/")
)

// Migrator is the main application context that holds all dependencies
type Migrator struct {
	Log     log.Logger
	BaseDir string
	Config  *viper.Viper
}

// New creates a new Migrator application instance
func New() *Migrator {
	return &Migrator{}
}

// Setup initializes the application with dependencies
func (m *Migrator) Setup(baseDir string, logger log.Logger, config *viper.Viper) {
	m.BaseDir = baseDir
	m.Log = logger
	m.Config = config
}

// GetDataDir returns the data directory path
func (m *Migrator) GetDataDir() string {
	return filepath.Join(m.BaseDir, "data")
}

// Settings decodes and validates the configuration.
func (m *Migrator) Settings() (*config.Config, error) {
	return config.Load(m.Config)
}

// ResolvePath makes a relative database path relative to the data directory.
func (m *Migrator) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || m.BaseDir == "" {
		return path
	}
	return filepath.Join(m.GetDataDir(), path)
}

// OpenChain opens the store of a chain.
func (m *Migrator) OpenChain(spec core.ChainSpec) (database.Store, error) {
	path := m.ResolvePath(spec.DBPath)
	if spec.Backend != string(database.MemDB) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := database.Open(database.DatabaseType(spec.Backend), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", spec.Name, err)
	}
	m.Log.Info("Opened chain store", "chain", spec.Name, "backend", spec.Backend, "path", path)
	return db, nil
}

// Network is a migration wired between two stores.
type Network struct {
	*controller.Pair
	Translator *account.Translator
	// Converter predicts what the destination stores for a record.
	Converter ingest.Converter
	Filter    *filter.Filter
	// Outbox and Acks are the two channels, persisted in the chain stores.
	Outbox xcm.Queue
	Acks   xcm.Queue
}

// Wire builds both controllers on top of src and dst. Metrics may be nil.
func (m *Migrator) Wire(cfg *config.Config, src, dst database.Store, mx *metrics.Metrics) (*Network, error) {
	tr, err := cfg.Translator()
	if err != nil {
		return nil, err
	}
	ingestCfg, err := cfg.IngestConfig()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	outbox := xcm.NewStoreQueue(src, outboxPrefix)
	acks := xcm.NewStoreQueue(dst, ackPrefix)
	migCfg := cfg.Migration()
	dispatcher := xcm.NewDispatcher(m.Log, outbox, migCfg.MaxMessageSize)

	source, err := controller.NewSource(controller.SourceConfig{
		Log:   m.Log,
		Store: src,
		Registry: migration.NewRegistry(migration.Deps{
			Log:        m.Log,
			Source:     src,
			Dispatcher: dispatcher,
			Metrics:    mx,
			Config:     migCfg,
		}),
		Outbox:      dispatcher,
		Inbox:       acks,
		Metrics:     mx,
		BlockWeight: cfg.SourceWeight(),
	})
	if err != nil {
		return nil, err
	}

	dest, err := controller.NewDestination(controller.DestinationConfig{
		Log: m.Log,
		Ingest: ingest.Env{
			Translator: tr,
			Clock:      cfg.Clock(),
			Config:     ingestCfg,
		},
		Store:       dst,
		Inbox:       outbox,
		Outbox:      xcm.NewDispatcher(m.Log, acks, 0),
		Metrics:     mx,
		DbWeight:    cfg.DbWeight(),
		BlockWeight: cfg.DestinationWeight(),
		Policy:      policy,
	})
	if err != nil {
		return nil, err
	}

	pair := &controller.Pair{Log: m.Log, Source: source, Destination: dest}
	f, err := filter.New(m.Log, pair, cfg.Filter)
	if err != nil {
		return nil, err
	}
	m.Log.Info("Wired migration",
		"source", cfg.Source.Name, "destination", cfg.Destination.Name,
		"stage", source.Stage(), "destinationStage", dest.Stage(), "translations", tr.Translations())

	return &Network{
		Pair:       pair,
		Translator: tr,
		Converter:  ingest.NewConverter(ingestCfg, cfg.Clock()),
		Filter:     f,
		Outbox:     outbox,
		Acks:       acks,
	}, nil
}

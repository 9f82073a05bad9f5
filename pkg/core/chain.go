package core

// Chain identifies one side of the migration.
type Chain uint8

const (
	// Source is the chain the state is taken from.
	Source Chain = iota
	// Destination is the chain the state is moved to.
	Destination
)

func (c Chain) String() string {
	switch c {
	case Source:
		return "source"
	case Destination:
		return "destination"
	default:
		return "unknown"
	}
}

// ParseChain parses a chain name as used on the command line and in filter rules.
func ParseChain(s string) (Chain, error) {
	switch s {
	case "source", "src", "relay":
		return Source, nil
	case "destination", "dest", "dst", "assethub":
		return Destination, nil
	}
	return 0, ErrInvalidConfigf("unknown chain %q", s)
}

// ChainSpec describes a chain participating in the migration.
type ChainSpec struct {
	Name    string `mapstructure:"name"`
	Backend string `mapstructure:"backend"` // "pebbledb", "badgerdb", "leveldb", "memdb"
	DBPath  string `mapstructure:"db_path"`
	ParaID  uint16 `mapstructure:"para_id"`
}

// Validate ensures the chain spec is usable
func (c *ChainSpec) Validate() error {
	if c.Name == "" {
		return ErrInvalidConfig("chain name required")
	}
	if c.Backend != "memdb" && c.DBPath == "" {
		return ErrInvalidConfigf("chain %s: db_path required for backend %q", c.Name, c.Backend)
	}
	return nil
}

// Normalize applies defaults
func (c *ChainSpec) Normalize(chain Chain) {
	if c.Name == "" {
		c.Name = chain.String()
	}
	if c.Backend == "" {
		c.Backend = "pebbledb"
	}
}

package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/ripnft/internal/fetch"
	"github.com/nao1215/ripnft/internal/report"
	"github.com/nao1215/ripnft/internal/source"
)

// Defaults. Concurrency and batch timeout match the values the tool has
// always used for public gateways.
const (
	AppName = "ripnft"

	DefaultConcurrency  = 6
	DefaultBatchTimeout = 600 * time.Second
	DefaultTaskTimeout  = 60 * time.Second
	DefaultRetries      = 3
	DefaultFormat       = "csv"
	DefaultOutputFile   = "output.csv"
	DefaultUserAgent    = "ripnft/1.0 (+https://github.com/nao1215/ripnft)"
	DefaultMaxBodySize  = fetch.DefaultMaxBodySize
	DefaultTop          = 10
)

// Config holds every option of a rip.
type Config struct {
	// Stub is the URL prefix that item indices are appended to.
	Stub string
	// IPFS treats Stub as a bare content identifier.
	IPFS bool
	// Suffix is appended after the index, e.g. ".json".
	Suffix string
	// Gateway is the IPFS gateway host.
	Gateway string
	// HTTP uses plain http for the gateway.
	HTTP bool

	// Start is the first index; Count indices are fetched from there.
	Start int
	Count int

	Concurrency  int
	BatchTimeout time.Duration
	// TaskTimeout bounds each item. Zero disables it.
	TaskTimeout time.Duration
	// Retries is the number of extra attempts for rate-limited items.
	Retries     int
	UserAgent   string
	MaxBodySize int64
	// ProxyAddress is an optional SOCKS5 proxy (host:port).
	ProxyAddress string

	// Contract is the token contract address, used for marketplace links,
	// prices and ledger reads.
	Contract       string
	MarketplaceURL string
	// RPCURL is the JSON-RPC endpoint used by the ledger command.
	RPCURL string

	// Prices enables the marketplace price lookup.
	Prices     bool
	OpenSeaKey string
	// CollectionSlug selects the marketplace collection for price lookups
	// when Contract is empty.
	CollectionSlug string

	Format     string
	OutputFile string
	// Top limits rows in text and Markdown output.
	Top int

	// RecordsFile receives the normalized records as JSON when set.
	RecordsFile string
	// FromRecords ranks a saved records file instead of fetching.
	FromRecords string

	NoProgress bool
	// Metrics dumps fetch metrics to stderr after the run.
	Metrics bool
	Verbose bool

	// SaveToDB stores the run in the history database at DBDir.
	SaveToDB bool
	DBDir    string

	ConfigFilePath string
	Collections    *File
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Gateway:        source.DefaultGateway,
		Concurrency:    DefaultConcurrency,
		BatchTimeout:   DefaultBatchTimeout,
		TaskTimeout:    DefaultTaskTimeout,
		Retries:        DefaultRetries,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MarketplaceURL: "https://opensea.io/assets/",
		Format:         DefaultFormat,
		OutputFile:     DefaultOutputFile,
		Top:            DefaultTop,
		SaveToDB:       true,
		DBDir:          XDGDataDir(),
	}
}

// StubURL returns the effective stub: bare identifiers become ipfs://ID/.
func (c *Config) StubURL() string {
	if !c.IPFS {
		return c.Stub
	}
	return source.IPFSScheme + strings.Trim(c.Stub, "/") + "/"
}

// CollectionKey names the collection in history and per-collection
// overrides: the contract when known, the stub otherwise.
func (c *Config) CollectionKey() string {
	if c.Contract != "" {
		return strings.ToLower(c.Contract)
	}
	if c.FromRecords != "" && c.Stub == "" {
		return filepath.Base(c.FromRecords)
	}
	return c.StubURL()
}

// SourceOptions returns the URL generator options for c.
func (c *Config) SourceOptions() []source.Option {
	return []source.Option{
		source.WithGateway(c.Gateway),
		source.WithHTTP(c.HTTP),
		source.WithSuffix(c.Suffix),
	}
}

// RetryPolicy returns the fetch retry policy for c.
func (c *Config) RetryPolicy() fetch.RetryPolicy {
	p := fetch.DefaultRetryPolicy()
	p.MaxAttempts = c.Retries + 1
	return p
}

// ApplyFile merges the defaults and the matching collection section of f
// into every field that was not set explicitly. explicit reports whether a
// flag was given on the command line.
func (c *Config) ApplyFile(f *File, explicit func(flag string) bool) {
	if f == nil {
		return
	}
	c.Collections = f
	c.ApplyCollection(f.Collection(c.collectionLookupKeys()...), explicit)
}

// ApplyCollection copies the set fields of col into c, skipping fields
// whose flag was given explicitly.
func (c *Config) ApplyCollection(col CollectionConfig, explicit func(flag string) bool) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !explicit(flag) {
			*dst = v
		}
	}
	setString("gateway", &c.Gateway, col.Gateway)
	setString("suffix", &c.Suffix, col.Suffix)
	setString("contract", &c.Contract, col.Contract)
	setString("marketplace", &c.MarketplaceURL, col.Marketplace)
	setString("rpc", &c.RPCURL, col.RPC)
	setString("opensea-key", &c.OpenSeaKey, col.OpenSeaKey)
	setString("collection-slug", &c.CollectionSlug, col.CollectionSlug)
	setString("proxy", &c.ProxyAddress, col.Proxy)
	setString("format", &c.Format, col.Format)

	if col.Concurrency > 0 && !explicit("concurrency") {
		c.Concurrency = col.Concurrency
	}
	if col.Timeout > 0 && !explicit("timeout") {
		c.BatchTimeout = col.Timeout
	}
	if col.TaskTimeout > 0 && !explicit("task-timeout") {
		c.TaskTimeout = col.TaskTimeout
	}
	if col.Retries != nil && !explicit("retries") {
		c.Retries = *col.Retries
	}
}

func (c *Config) collectionLookupKeys() []string {
	keys := []string{c.StubURL()}
	if c.Contract != "" {
		keys = append(keys, c.Contract)
	}
	return keys
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/ripnft.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/ripnft.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first invalid setting.
func (c *Config) Validate() error {
	if c.FromRecords == "" {
		if c.Stub == "" {
			return ErrNoStub
		}
		if c.Count <= 0 {
			return ErrInvalidCount
		}
		if c.Start < 0 {
			return ErrInvalidStart
		}
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.TaskTimeout < 0 {
		return ErrInvalidTaskTimeout
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		return ErrInvalidFormat
	}
	return nil
}

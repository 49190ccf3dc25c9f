package config

import (
	"maps"
	"slices"
	"time"
)

// CollectionConfig holds per-collection settings from the config file.
// Zero values mean "not set".
type CollectionConfig struct {
	// Stub and Count let the batch command rip the collection without flags.
	Stub  string `yaml:"stub,omitempty"`
	Count int    `yaml:"count,omitempty"`

	Suffix      string `yaml:"suffix,omitempty"`
	Gateway     string `yaml:"gateway,omitempty"`
	Contract    string `yaml:"contract,omitempty"`
	Marketplace string `yaml:"marketplace,omitempty"`
	RPC         string `yaml:"rpc,omitempty"`
	OpenSeaKey  string `yaml:"opensea_key,omitempty"`
	// CollectionSlug is the marketplace collection used for prices when
	// no contract is set.
	CollectionSlug string        `yaml:"collection_slug,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`
	Format         string        `yaml:"format,omitempty"`
	Concurrency    int           `yaml:"concurrency,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	TaskTimeout    time.Duration `yaml:"task_timeout,omitempty"`
	Retries        *int          `yaml:"retries,omitempty"`
}

// File is the structure of the .ripnft file.
type File struct {
	// Defaults apply to every collection.
	Defaults CollectionConfig `yaml:"defaults,omitempty"`

	// Collections maps a stub, contract address or free-form name to its
	// overrides.
	Collections map[string]CollectionConfig `yaml:"collections,omitempty"`
}

// Collection returns the defaults merged with the first collection entry
// matching one of keys.
func (f *File) Collection(keys ...string) CollectionConfig {
	result := f.Defaults
	for _, k := range keys {
		if c, ok := f.Collections[k]; ok {
			return merge(result, c)
		}
	}
	return result
}

// Named returns the merged settings of every collection entry, keyed by
// entry name, in name order.
func (f *File) Named() []NamedCollection {
	names := slices.Sorted(maps.Keys(f.Collections))
	out := make([]NamedCollection, 0, len(names))
	for _, name := range names {
		out = append(out, NamedCollection{
			Name:             name,
			CollectionConfig: merge(f.Defaults, f.Collections[name]),
		})
	}
	return out
}

// NamedCollection is a collection entry with its key.
type NamedCollection struct {
	Name string
	CollectionConfig
}

func merge(base, over CollectionConfig) CollectionConfig {
	r := base
	if over.Stub != "" {
		r.Stub = over.Stub
	}
	if over.Count != 0 {
		r.Count = over.Count
	}
	if over.Suffix != "" {
		r.Suffix = over.Suffix
	}
	if over.Gateway != "" {
		r.Gateway = over.Gateway
	}
	if over.Contract != "" {
		r.Contract = over.Contract
	}
	if over.Marketplace != "" {
		r.Marketplace = over.Marketplace
	}
	if over.RPC != "" {
		r.RPC = over.RPC
	}
	if over.OpenSeaKey != "" {
		r.OpenSeaKey = over.OpenSeaKey
	}
	if over.CollectionSlug != "" {
		r.CollectionSlug = over.CollectionSlug
	}
	if over.Proxy != "" {
		r.Proxy = over.Proxy
	}
	if over.Format != "" {
		r.Format = over.Format
	}
	if over.Concurrency != 0 {
		r.Concurrency = over.Concurrency
	}
	if over.Timeout != 0 {
		r.Timeout = over.Timeout
	}
	if over.TaskTimeout != 0 {
		r.TaskTimeout = over.TaskTimeout
	}
	if over.Retries != nil {
		r.Retries = over.Retries
	}
	return r
}

// Package config holds the settings of a rip: where metadata lives, how it
// is fetched, and where the ranked table goes. Settings come from CLI flags
// layered over an optional .ripnft YAML file.
package config

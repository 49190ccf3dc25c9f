// Package source turns a collection stub into per-item fetch tasks.
//
// A stub is either a plain base URL ("https://example.com/meta/") or a
// content-addressed reference ("ipfs://CID/"). Content-addressed stubs are
// rewritten through a gateway host before the item index and optional
// filename suffix are appended.
package source

// Package model defines the data structures shared by every stage of a rip.
//
// The main types are:
//   - FetchTask / FetchResult / ResultSet: input and output of the fetch stage
//   - TraitRecord / TraitColumn: normalized item traits and their frequencies
//   - RarityRow / RarityTable: the ranked output
//   - Run: the aggregate filled in by the pipeline for one collection
//
// All types serialize to JSON for report output and database storage.
package model

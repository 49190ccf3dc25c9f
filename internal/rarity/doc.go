// Package rarity ranks items by how uncommon their trait values are.
//
// For a batch of N items, every trait column contributes N/f to an item's
// score, where f is the number of items sharing the item's value in that
// column. Absent and empty values share a single "None" bucket. Rank 1 is
// the highest score; equal scores are ordered by ascending index.
package rarity

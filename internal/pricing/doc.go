// Package pricing looks up marketplace listing prices for ranked items.
//
// Prices are optional decoration of a rarity table: a failed lookup never
// invalidates a ranking.
package pricing

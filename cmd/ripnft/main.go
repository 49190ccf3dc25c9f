// Package main provides the entry point for the ripnft CLI.
//
// ripnft downloads the metadata of every item in an NFT collection,
// ranks the items by trait rarity and exports the ranked table.
//
// Usage:
//
//	ripnft rip <stub> <count>
//	ripnft ledger <contract> --rpc <url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}

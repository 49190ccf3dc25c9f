// Package pipeline runs a collection through its processing stages.
//
// A Run flows through fetch, normalize, rank and, optionally, price steps.
// Each step reads what earlier steps left on the Run and records its own
// outcome there. BatchProcessor runs several collections at once.
package pipeline

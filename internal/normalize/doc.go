// Package normalize flattens raw metadata documents into trait records.
//
// A document is expected to carry an "attributes" list of
// {"trait_type": ..., "value": ...} objects. Each document is decoded into
// either a model.TraitRecord or a Diagnostic explaining why it was skipped.
// A skipped document never stops the batch.
package normalize

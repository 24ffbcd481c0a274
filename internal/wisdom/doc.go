// Package wisdom implements the distillation pipeline that mines reusable
// response fragments ("wisdom atoms") from LLM responses.
//
// An atom is a single categorized sentence-level span: validation, reframe,
// insight, action, or closing. Atoms are deduplicated by a content hash over
// normalized text, so distilling the same response twice creates nothing new.
package wisdom

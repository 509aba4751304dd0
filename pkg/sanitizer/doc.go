// Package sanitizer normalizes request input before validation and
// storage.
//
// NormalizeEmail case-folds addresses so that uniqueness checks and
// lookups agree on a single canonical form; the trimming helpers strip the
// whitespace that copy-pasted form input tends to carry.
package sanitizer

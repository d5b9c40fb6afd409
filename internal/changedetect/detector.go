// Package changedetect classifies how a tracked document changed between
// the stored state and the state observed on disk, at two granularities:
// whole-document (CREATED / MODIFIED / UNCHANGED / RESTORED) and chunk
// (ADDED / REMOVED / UNCHANGED / REORDERED).
package changedetect

import "github.com/sourangshupal/ragversion/internal/storage"

// Outcome is the document-level classification of an observed file state.
type Outcome string

const (
	OutcomeCreated   Outcome = "CREATED"
	OutcomeModified  Outcome = "MODIFIED"
	OutcomeUnchanged Outcome = "UNCHANGED"
	OutcomeRestored  Outcome = "RESTORED"
)

// ProducesVersion reports whether this outcome results in a new Version.
// UNCHANGED is the only outcome that does not.
func (o Outcome) ProducesVersion() bool {
	return o != OutcomeUnchanged
}

// ChangeType maps a document-level outcome onto the persisted Version
// change_type. Only call for outcomes that produce a version.
func (o Outcome) ChangeType() storage.ChangeType {
	switch o {
	case OutcomeCreated:
		return storage.ChangeTypeCreated
	case OutcomeRestored:
		return storage.ChangeTypeRestored
	default:
		return storage.ChangeTypeModified
	}
}

// Classify applies the document-level decision table:
//
//	no prior document                       -> CREATED
//	prior soft-deleted                      -> RESTORED
//	content hashes equal                    -> UNCHANGED (file-hash-only
//	                                           changes are metadata noise,
//	                                           e.g. touched mtime or CRLF
//	                                           rewrites that normalize away)
//	content hashes differ                   -> MODIFIED
//
// prior is the stored Document for this path, or nil if the path has
// never been tracked. contentHash is the hash of the freshly extracted,
// normalized text.
func Classify(prior *storage.Document, contentHash string) Outcome {
	switch {
	case prior == nil:
		return OutcomeCreated
	case prior.IsDeleted:
		return OutcomeRestored
	case prior.ContentHash == contentHash:
		return OutcomeUnchanged
	default:
		return OutcomeModified
	}
}

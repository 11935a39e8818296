package domain

// DuplicateOutcome classifies where a candidate item already exists.
type DuplicateOutcome string

const (
	OutcomeUnique               DuplicateOutcome = "unique"
	OutcomeDuplicateInBuffer    DuplicateOutcome = "duplicate_in_buffer"
	OutcomeDuplicateInPermanent DuplicateOutcome = "duplicate_in_permanent"
	OutcomeDuplicateInBoth      DuplicateOutcome = "duplicate_in_both"
)

// MatchBasis identifies which check produced a duplicate match.
type MatchBasis string

const (
	BasisExternalID        MatchBasis = "external_id"
	BasisURL               MatchBasis = "url"
	BasisContentSimilarity MatchBasis = "content_similarity"
)

// StoreLocation names one of the two stores a match was found in.
type StoreLocation string

const (
	LocationBuffer    StoreLocation = "buffer"
	LocationPermanent StoreLocation = "permanent"
)

// DuplicateCheckResult is the advisory outcome of resolving one candidate
// item against the buffer and permanent stores. It carries no side effects;
// callers decide whether to write.
type DuplicateCheckResult struct {
	Outcome   DuplicateOutcome `json:"outcome"`
	Basis     MatchBasis       `json:"basis,omitempty"`
	MatchedID string           `json:"matched_id,omitempty"`
	MatchedIn StoreLocation    `json:"matched_in,omitempty"`
	// Similarity is set only when Basis is BasisContentSimilarity.
	Similarity float64 `json:"similarity,omitempty"`
}

// IsDuplicate reports whether the candidate matched an existing record.
// Parameters: none.
// Returns:
//   - bool: true unless the outcome is OutcomeUnique.
func (r DuplicateCheckResult) IsDuplicate() bool {
	return r.Outcome != OutcomeUnique
}

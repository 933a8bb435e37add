package model

// AdvancedRule is one predicate of an advanced search: a rule name, an operator
// token and the user supplied operand.
type AdvancedRule struct {
	Rule     string `json:"rule"`
	Operator string `json:"operator"`
	Input    string `json:"input"`
}

// Criteria narrows a track listing. Empty slices and nil bounds are ignored;
// year bounds are inclusive.
type Criteria struct {
	GenreIDs  []int64 `json:"genreIds,omitempty"`
	ArtistIDs []int64 `json:"artistIds,omitempty"`
	FromYear  *int    `json:"fromYear,omitempty"`
	ToYear    *int    `json:"toYear,omitempty"`
}

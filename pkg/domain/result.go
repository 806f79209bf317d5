package domain

// ResultRecord is the wire representation of a query result.
// Semantics holds JSON text and may be empty when the server did not fill it in.
type ResultRecord struct {
	TalkerID  string `json:"talker_id"`
	Sentence  string `json:"sentence"`
	Semantics string `json:"semantics"`
}

// HMIResult is the decoded result of a query.
// Semantics is an arbitrary JSON-shaped tree.
type HMIResult struct {
	Sentence  string `json:"sentence"`
	Semantics any    `json:"semantics"`
}

// LegacyResult is returned by the choice-based legacy query.
// A timeout yields an empty Result and nil Choices.
type LegacyResult struct {
	Result  string `json:"result"`
	Choices any    `json:"choices,omitempty"`
}

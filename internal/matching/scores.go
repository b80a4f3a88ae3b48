package matching

// Field weights used to rank candidates when no entry matches.
// Higher weights mark fields that identify a request more precisely.
const (
	// ScoreMethod is the weight of a method match.
	ScoreMethod = 10

	// ScoreURI is the weight of a URI match.
	ScoreURI = 15

	// ScoreHeader is the weight of each compared header.
	ScoreHeader = 2

	// ScoreBody is the weight of a body match.
	ScoreBody = 25
)

// Package kb holds the support knowledge base: entry model, loaders for the
// supported file formats, and the token-overlap ranking used to relate a
// ticket description to known issues.
package kb

const (
	// UnknownID is reported for entries loaded without an id.
	UnknownID = "UNKNOWN"

	// UntitledTitle is reported for entries loaded without a title.
	UntitledTitle = "Untitled"
)

// Entry is a single curated known issue.
type Entry struct {
	ID                string   `json:"id" yaml:"id"`
	Title             string   `json:"title" yaml:"title"`
	Category          string   `json:"category" yaml:"category"`
	Symptoms          []string `json:"symptoms" yaml:"symptoms"`
	RecommendedAction string   `json:"recommended_action" yaml:"recommended_action"`
}

// Match is an Entry scored against one description.
type Match struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Similarity        float64 `json:"similarity"`
	RecommendedAction string  `json:"recommended_action"`
}

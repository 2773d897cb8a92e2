package testutil

// FixedRunID always returns the same run id so stored rows and golden
// traces are byte-identical across test runs.
type FixedRunID string

// DefaultRunID is used when a FixedRunID is empty.
const DefaultRunID = "test-run-default"

// Generate implements driver.RunIDGenerator.
func (id FixedRunID) Generate() string {
	if id == "" {
		return DefaultRunID
	}
	return string(id)
}

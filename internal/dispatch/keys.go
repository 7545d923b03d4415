package dispatch

// PK/SK prefix constants for the dispatch table.
const (
	prefixHubRun = "HUBRUN#"
	prefixRepo   = "REPO#"
)

func hubRunPK(id string) string { return prefixHubRun + id }
func repoSK(repo string) string { return prefixRepo + repo }

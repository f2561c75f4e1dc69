package events

// LocalRepoStatus describes the readiness of the local working copy.
type LocalRepoStatus string

const (
	RepoInitializing      LocalRepoStatus = "initializing"
	RepoReady             LocalRepoStatus = "ready"
	RepoFail              LocalRepoStatus = "fail"
	RepoMissingRepository LocalRepoStatus = "missing-repository"
)

// PageGenerated is emitted by the site generator for every rendered page.
//
// This is an orchestration event used for in-process progress reporting.
// It is not durable and is not written to internal/journal.
type PageGenerated struct {
	Page    string // output path of the rendered page
	Message string // human-readable progress line
}

// RepoProgress is emitted by the local repository controller while a push is
// in flight. Empty fields are partial-overlay: consumers keep the previous
// value for any field left blank.
type RepoProgress struct {
	Phase   string
	Message string
}

// RepoMessage carries a free-text progress line from the local repository
// controller, merged into publishing progress as a message-only overlay.
type RepoMessage struct {
	Message string
}

// RepoStatusChanged is emitted whenever the local working copy transitions
// between readiness states.
type RepoStatusChanged struct {
	Status LocalRepoStatus
}

// RemoteInfoChanged signals that remote repository metadata changed
// (existence, name). It carries no payload; consumers re-read the remote
// client's accessors.
type RemoteInfoChanged struct{}

package publish

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/localrepo"
)

// Outcome re-exports the push outcome taxonomy for convenience within the
// publish package and its callers.
type Outcome = localrepo.Outcome

const (
	OutcomeSuccess    = localrepo.OutcomeSuccess
	OutcomeFail       = localrepo.OutcomeFail
	OutcomeTerminated = localrepo.OutcomeTerminated
)

// LocalRepoStatus re-exports the working-copy readiness states.
type LocalRepoStatus = events.LocalRepoStatus

// GeneratingProgress tracks the current or last generate call. Result is
// empty while a generate is in flight (or before the first one).
type GeneratingProgress struct {
	Result  string // "" | "success" | "fail"
	Message string
}

// PublishingProgress tracks the current or last publish attempt. Result is
// empty until the attempt reaches a terminal outcome.
type PublishingProgress struct {
	Phase   string
	Message string
	Result  Outcome // "" = unset
}

// Guard errors returned synchronously before any state mutation.
var (
	ErrGenerateInFlight  = errors.New("generation already in progress")
	ErrCredentialInvalid = errors.New("credentials incomplete: username, email and token are required")
)

// Canned user-facing explanations appended to classified publish outcomes.
const (
	terminatedExplanation = "Publishing terminated."
	failExplanation       = "Publishing failed. Please retry, and report the issue if it persists."
)

func explanationFor(o Outcome) string {
	switch o {
	case OutcomeTerminated:
		return terminatedExplanation
	case OutcomeFail:
		return failExplanation
	default:
		return ""
	}
}

// SiteGenerator produces the static site artifact.
type SiteGenerator interface {
	// GenerateSite renders the site and returns the ordered list of emitted
	// file paths relative to the output directory.
	GenerateSite(ctx context.Context) ([]string, error)

	// OutputDir returns the resolved output directory.
	OutputDir() string
}

// LocalRepo manages the local working copy and its pushes.
type LocalRepo interface {
	Init(ctx context.Context, spec localrepo.RemoteSpec, outputDir string) error
	Push(ctx context.Context, files []string, forceFullInit bool) error
	Terminate()
}

package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyAttemptID  = "attempt_id"
	KeyPhase      = "phase"
	KeyRepo       = "repository"
	KeyRemote     = "remote"
	KeyPath       = "path"
	KeyFiles      = "files"
	KeyResult     = "result"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func AttemptID(id string) slog.Attr      { return slog.String(KeyAttemptID, id) }
func Phase(p string) slog.Attr           { return slog.String(KeyPhase, p) }
func Repo(name string) slog.Attr         { return slog.String(KeyRepo, name) }
func Remote(url string) slog.Attr        { return slog.String(KeyRemote, url) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Files(n int) slog.Attr              { return slog.Int(KeyFiles, n) }
func Result(r string) slog.Attr          { return slog.String(KeyResult, r) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr          { return slog.String(KeyError, err.Error()) }
func ErrorString(msg string) slog.Attr   { return slog.String(KeyError, msg) }

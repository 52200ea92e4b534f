// Package apperr defines the stable error taxonomy shared across the
// orchestration engine. Every operation-level failure that a caller might
// branch on is surfaced as an *Error carrying one of the Code constants
// below, so an outer JSON emitter can print {error:{code,message,details}}
// deterministically without re-deriving meaning from error strings.
package apperr

import "fmt"

// Code is a stable, caller-matchable error identifier.
type Code string

const (
	CodeTmuxNotFound    Code = "TMUX_NOT_FOUND"
	CodeGhNotFound      Code = "GH_NOT_FOUND"
	CodeNotGitRepo      Code = "NOT_GIT_REPO"
	CodeNotInitialized  Code = "NOT_INITIALIZED"
	CodeManifestLock    Code = "MANIFEST_LOCK"
	CodeWorktreeNotFound Code = "WORKTREE_NOT_FOUND"
	CodeAgentNotFound   Code = "AGENT_NOT_FOUND"
	CodePaneNotFound    Code = "PANE_NOT_FOUND"
	CodeNoTmuxWindow    Code = "NO_TMUX_WINDOW"
	CodeTargetNotFound  Code = "TARGET_NOT_FOUND"
	CodeNoSessionID     Code = "NO_SESSION_ID"
	CodeInvalidArgs     Code = "INVALID_ARGS"
	CodeAgentsRunning   Code = "AGENTS_RUNNING"
	CodeUnmergedWork    Code = "UNMERGED_WORK"
	CodeMergeFailed     Code = "MERGE_FAILED"
	CodeWaitTimeout     Code = "WAIT_TIMEOUT"
	CodeAgentsFailed    Code = "AGENTS_FAILED"
	CodeDownloadFailed  Code = "DOWNLOAD_FAILED"
	CodeInstallFailed   Code = "INSTALL_FAILED"
)

// Error is a structured, taxonomy-coded error.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a taxonomy error with optional details.
func New(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Wrap annotates an existing error with a taxonomy code, preserving the
// original error text as the message.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error()}
}

// Is reports whether err is an *Error carrying the given code.
func Is(err error, code Code) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Code == code
}

// CodeOf extracts the taxonomy code from err, reporting false if err is
// not an *Error.
func CodeOf(err error) (Code, bool) {
	e, ok := err.(*Error)
	if !ok {
		return "", false
	}
	return e.Code, true
}

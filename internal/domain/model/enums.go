package model

import (
	"fmt"
	"strings"
)

// Variant identifies which Bitbucket product a client talks to.
type Variant string

const (
	VariantCloud  Variant = "cloud"
	VariantServer Variant = "server"
)

// ParseVariant converts a configuration string into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantCloud, VariantServer:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("unknown bitbucket variant %q: expected %q or %q", s, VariantCloud, VariantServer)
	}
}

// BuildState is the state of a commit build status as understood by Bitbucket.
type BuildState string

const (
	BuildStateInProgress BuildState = "INPROGRESS"
	BuildStateSuccessful BuildState = "SUCCESSFUL"
	BuildStateFailed     BuildState = "FAILED"
)

// ParseBuildState converts a state name into a BuildState, ignoring case.
func ParseBuildState(s string) (BuildState, error) {
	switch st := BuildState(strings.ToUpper(strings.TrimSpace(s))); st {
	case BuildStateInProgress, BuildStateSuccessful, BuildStateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown build state %q", s)
	}
}

// String returns the wire name of the state.
func (s BuildState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is expected.
func (s BuildState) IsTerminal() bool {
	return s == BuildStateSuccessful || s == BuildStateFailed
}

// BuildResult is the outcome reported by the build host when a build finishes.
type BuildResult string

const (
	BuildResultSuccess  BuildResult = "SUCCESS"
	BuildResultUnstable BuildResult = "UNSTABLE"
	BuildResultFailure  BuildResult = "FAILURE"
	BuildResultAborted  BuildResult = "ABORTED"
	BuildResultNotBuilt BuildResult = "NOT_BUILT"
)

// ParseBuildResult converts a host-supplied result string into a BuildResult.
func ParseBuildResult(s string) (BuildResult, error) {
	switch r := BuildResult(s); r {
	case BuildResultSuccess, BuildResultUnstable, BuildResultFailure, BuildResultAborted, BuildResultNotBuilt:
		return r, nil
	default:
		return "", fmt.Errorf("unknown build result %q", s)
	}
}

// TerminalState maps a build result onto the terminal build state.
// Only SUCCESS counts as successful.
func (r BuildResult) TerminalState() BuildState {
	if r == BuildResultSuccess {
		return BuildStateSuccessful
	}
	return BuildStateFailed
}

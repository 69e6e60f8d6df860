package backend

import "fmt"

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseReady   Phase = "ready"
)

// Phases lists every phase, for gauges.
var Phases = []string{string(PhaseLoading), string(PhaseError), string(PhaseReady)}

// State is an immutable snapshot of the configuration lifecycle. Err is set
// only in PhaseError; Config is meaningful only in PhaseReady.
type State struct {
	Phase  Phase
	Err    error
	Config Config
}

func Loading() State { return State{Phase: PhaseLoading} }

func Failed(err error) State { return State{Phase: PhaseError, Err: err} }

func Ready(cfg Config) State { return State{Phase: PhaseReady, Config: cfg} }

func (s State) String() string {
	switch s.Phase {
	case PhaseError:
		return fmt.Sprintf("error: %v", s.Err)
	case PhaseReady:
		return fmt.Sprintf("ready: github=%s gitlab=%s infraweave=%q",
			s.Config.GitHubBaseURL, s.Config.GitLabBaseURL, s.Config.InfraweaveBaseURL)
	default:
		return string(s.Phase)
	}
}

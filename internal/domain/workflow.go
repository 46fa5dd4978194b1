package domain

// WorkflowPhase names a stage of the agent workflow.
type WorkflowPhase string

const (
	PhaseAnalysis      WorkflowPhase = "analysis"
	PhasePlanning      WorkflowPhase = "planning"
	PhaseGeneration    WorkflowPhase = "generation"
	PhaseConfiguration WorkflowPhase = "configuration"
	PhaseDeployment    WorkflowPhase = "deployment"
)

// AgentRepositoryAnalyzer is the agent recorded when a workflow starts.
const AgentRepositoryAnalyzer = "repository_analyzer"

// Coordination is the orchestration payload stored on a project.
// Metadata is opaque and never interpreted here.
type Coordination struct {
	WorkflowStarted bool            `json:"workflow_started,omitempty"`
	WorkflowConfig  map[string]any  `json:"workflow_config,omitempty"`
	PhaseHistory    []WorkflowPhase `json:"phase_history,omitempty"`
	PausedFrom      ProjectStatus   `json:"paused_from,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Transition names a guarded status change.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionFail     Transition = "fail"
	TransitionPause    Transition = "pause"
	TransitionResume   Transition = "resume"
)

// ParseTransition resolves a transition name.
func ParseTransition(name string) (Transition, bool) {
	switch t := Transition(name); t {
	case TransitionStart, TransitionComplete, TransitionFail, TransitionPause, TransitionResume:
		return t, true
	}
	return "", false
}

// AllowedFrom lists the statuses a transition may leave from.
func (t Transition) AllowedFrom() []ProjectStatus {
	switch t {
	case TransitionStart:
		return []ProjectStatus{StatusInitializing, StatusConfiguring, StatusDeployed, StatusFailed, StatusPaused}
	case TransitionComplete:
		return append(append([]ProjectStatus(nil), InFlightStatuses...), StatusConfiguring)
	case TransitionFail:
		return []ProjectStatus{StatusInitializing, StatusAnalyzing, StatusPlanning, StatusGenerating, StatusConfiguring, StatusDeploying, StatusPaused}
	case TransitionPause:
		return append([]ProjectStatus(nil), InFlightStatuses...)
	case TransitionResume:
		return []ProjectStatus{StatusPaused}
	}
	return nil
}

// Allows reports whether t may fire from status.
func (t Transition) Allows(status ProjectStatus) bool {
	for _, from := range t.AllowedFrom() {
		if from == status {
			return true
		}
	}
	return false
}

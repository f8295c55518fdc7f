package podcast

import (
	"fmt"
	"time"
)

// State is a job-level workflow state.
type State string

const (
	StateUploaded        State = "uploaded"
	StateIndexing        State = "indexing"
	StatePlanning        State = "planning"
	StateDrafting        State = "drafting"
	StateFactChecking    State = "fact_checking"
	StateRewriting       State = "rewriting"
	StateGeneratingAudio State = "generating_audio"
	StateStitching       State = "stitching"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions is the closed set of legal (from, to) state pairs.
// Any transition not listed here is a programmer error.
var transitions = map[State][]State{
	StateUploaded:        {StateIndexing, StateFailed},
	StateIndexing:        {StatePlanning, StateFailed},
	StatePlanning:        {StateDrafting, StateFailed},
	StateDrafting:        {StateFactChecking, StateDrafting, StateFailed},
	StateFactChecking:    {StateRewriting, StateGeneratingAudio, StateFailed},
	StateRewriting:       {StateFactChecking, StateFailed},
	StateGeneratingAudio: {StateStitching, StateFailed},
	StateStitching:       {StateCompleted, StateFailed},
}

// CanTransition reports whether from → to is a legal job transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProgressFor returns the progress percentage reported on entering a state.
func ProgressFor(s State) int {
	switch s {
	case StateUploaded:
		return 5
	case StateIndexing:
		return 10
	case StatePlanning:
		return 20
	case StateDrafting:
		return 50
	case StateFactChecking:
		return 70
	case StateRewriting:
		return 75
	case StateGeneratingAudio:
		return 85
	case StateStitching:
		return 95
	case StateCompleted:
		return 100
	default:
		return 0
	}
}

// Transition is one recorded state change in a job's event log.
type Transition struct {
	Seq         int       `json:"seq"`
	From        State     `json:"from"`
	To          State     `json:"to"`
	ProgressPct int       `json:"progress_pct"`
	At          time.Time `json:"at"`
	Detail      string    `json:"detail,omitempty"`
}

// Job is the orchestrator-owned record for one paper-to-episode run.
// The orchestrator has exclusive write access; everything else reads
// snapshots via the job store.
type Job struct {
	JobID         string  `json:"job_id"`
	PaperID       string  `json:"paper_id"`
	StyleID       string  `json:"style_id"`
	TargetS       float64 `json:"target_duration_s"`
	State         State   `json:"state"`
	PreviousState State   `json:"previous_state,omitempty"`
	ProgressPct   int     `json:"progress_pct"`

	RetryCountForState int `json:"retry_count_for_state"`
	Iterations         int `json:"iterations"`

	Outline  *Outline       `json:"outline,omitempty"`
	Segments []SegmentDraft `json:"segments,omitempty"`

	// Cursor is the index of the segment currently being processed when the
	// job is advancing segments one at a time (rewriting).
	Cursor int `json:"cursor"`

	CostEstimateUSD float64 `json:"cost_estimate_usd"`
	TokensUsed      int64   `json:"tokens_used"`

	EpisodeID string `json:"episode_id,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Error *Error `json:"error,omitempty"`
}

// Clone returns a deep copy of the job safe to hand to readers.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Outline != nil {
		o := *j.Outline
		o.Segments = append([]SegmentPlan(nil), j.Outline.Segments...)
		cp.Outline = &o
	}
	if j.Segments != nil {
		cp.Segments = make([]SegmentDraft, len(j.Segments))
		for i, s := range j.Segments {
			s.Lines = append([]ScriptLine(nil), s.Lines...)
			cp.Segments[i] = s
		}
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		cp.EndedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// String implements fmt.Stringer for log output.
func (j *Job) String() string {
	return fmt.Sprintf("job %s paper=%s state=%s progress=%d%%", j.JobID, j.PaperID, j.State, j.ProgressPct)
}

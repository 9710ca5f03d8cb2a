package models

import (
	"fmt"
	"math"
	"time"
)

// JobPhase tracks which analysis pass a job is currently in.
type JobPhase string

const (
	PhaseBoundaries JobPhase = "phase1"
	PhaseExtraction JobPhase = "phase2"
	PhaseCompleted  JobPhase = "completed"
)

// JobStatus is the coarse job state machine.
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusPhase1InProgress JobStatus = "phase1-in-progress"
	JobStatusPhase1Complete   JobStatus = "phase1-complete"
	JobStatusPhase2InProgress JobStatus = "phase2-in-progress"
	JobStatusCompleted        JobStatus = "completed"
)

// SegmentStatus is the per-segment state. Transitions are one-way:
// pending -> processing -> completed or failed. Failed segments are not
// retried by this worker; redelivery is the queue's decision.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentProcessing SegmentStatus = "processing"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

// TimeRange is a span of source video in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the range length in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Valid reports whether the range is non-empty and non-negative.
func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.End > r.Start
}

// SegmentRecord is one caller-supplied time range inside an AnalysisJob.
type SegmentRecord struct {
	Range      TimeRange     `json:"range"`
	Status     SegmentStatus `json:"status"`
	HandsFound *int          `json:"handsFound,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// AnalysisJob is the persisted job document. It is the only shared mutable
// state between concurrently-running segment and hand tasks; every mutation
// goes through the job store's transactional update.
//
// Invariants: CompletedSegments+FailedSegments <= TotalSegments and
// Phase2CompletedHands <= Phase2TotalHands.
type AnalysisJob struct {
	ID        string `json:"jobId"`
	StreamID  string `json:"streamId"`
	SourceRef string `json:"sourceRef"` // object-store path of the source video
	Platform  string `json:"platform"`  // broadcast platform tag, e.g. "hustler"

	Segments          []SegmentRecord `json:"segments"`
	TotalSegments     int             `json:"totalSegments"`
	CompletedSegments int             `json:"completedSegments"`
	FailedSegments    int             `json:"failedSegments"`
	HandsFound        int             `json:"handsFound"` // running total across completed segments

	Phase                JobPhase `json:"phase"`
	Phase2TotalHands     int      `json:"phase2TotalHands"`
	Phase2CompletedHands int      `json:"phase2CompletedHands"`

	Progress int       `json:"progress"` // 0-100
	Status   JobStatus `json:"status"`
	Error    string    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Phase1Done reports whether every segment has been accounted for.
func (j *AnalysisJob) Phase1Done() bool {
	return j.CompletedSegments+j.FailedSegments >= j.TotalSegments
}

// HandTimestamp is a transient phase-1 result: the absolute boundaries of
// one hand, passed opaquely into phase-2 dispatch. Times are "HH:MM:SS"
// strings offset to the source video origin.
type HandTimestamp struct {
	HandNumber int    `json:"handNumber"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// ExtractedClip is an ephemeral uploaded clip. The analyzer that requested
// it owns it and must delete it before returning, on every exit path.
type ExtractedClip struct {
	ObjectPath string    `json:"objectPath"` // shared-storage path
	LocalSize  int64     `json:"localSize"`  // bytes, measured before upload
	Range      TimeRange `json:"range"`      // source range this clip covers
}

// Card is a two-rune card token such as "As" or "Td".
type Card = string

// Player is one seat at the table as read by phase 2.
type Player struct {
	Name      string  `json:"name"`
	Position  string  `json:"position"` // BTN, SB, BB, UTG, ...
	Seat      int     `json:"seat"`
	Stack     float64 `json:"stack"`
	StackEnd  float64 `json:"stackEnd,omitempty"`
	HoleCards []Card  `json:"holeCards,omitempty"`
}

// Action is a single betting action on some street.
type Action struct {
	Player string  `json:"player"`
	Street string  `json:"street"` // preflop, flop, turn, river
	Action string  `json:"action"` // fold, check, call, bet, raise, all-in
	Amount float64 `json:"amount,omitempty"`
	Pot    float64 `json:"pot,omitempty"` // pot size when the street began
}

// Board holds the community cards.
type Board struct {
	Flop  []Card `json:"flop,omitempty"`
	Turn  string `json:"turn,omitempty"`
	River string `json:"river,omitempty"`
}

// PlayerRead is the model's emotional/style read on one player.
type PlayerRead struct {
	Player         string `json:"player"`
	EmotionalState string `json:"emotionalState"`
	PlayStyle      string `json:"playStyle"`
}

// AIAnalysis is the normalized semantic block attached to a HandRecord.
type AIAnalysis struct {
	Confidence  float64      `json:"confidence"` // clamped to [0,1]
	Reasoning   string       `json:"reasoning"`
	PlayerReads []PlayerRead `json:"playerReads,omitempty"`
	HandQuality string       `json:"handQuality"` // routine, interesting, highlight, epic
}

// HandRecord is the persisted phase-2 output for one hand. Immutable once
// written.
type HandRecord struct {
	ID         string        `json:"id"`
	JobID      string        `json:"jobId"`
	StreamID   string        `json:"streamId"`
	HandNumber int           `json:"handNumber"`
	Stakes     string        `json:"stakes,omitempty"`
	PotSize    float64       `json:"potSize"`
	Board      Board         `json:"board"`
	Players    []Player      `json:"players"`
	Actions    []Action      `json:"actions"`
	Winners    []string      `json:"winners,omitempty"`
	Tags       []string      `json:"tags"`
	Analysis   AIAnalysis    `json:"analysis"`
	Timestamp  HandTimestamp `json:"timestamp"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// LayoutSource says how a layout decision was reached.
type LayoutSource string

const (
	LayoutSourceMetadata LayoutSource = "metadata"
	LayoutSourceFallback LayoutSource = "fallback"
	LayoutSourceManual   LayoutSource = "manual"
)

// LayoutDecision is the detector's pick for a video. Computed per video,
// consumed immediately by the prompt builder, never persisted.
type LayoutDecision struct {
	Layout          string       `json:"layout"`
	Confidence      float64      `json:"confidence"` // [0,1]
	MatchedKeywords []string     `json:"matchedKeywords"`
	Source          LayoutSource `json:"source"`
}

// SegmentTaskPayload is the phase-1 unit of work carried on the queue.
type SegmentTaskPayload struct {
	JobID        string    `json:"jobId"`
	StreamID     string    `json:"streamId"`
	SegmentIndex int       `json:"segmentIndex"`
	SourceRef    string    `json:"sourceRef"`
	Range        TimeRange `json:"range"`
	Platform     string    `json:"platform"`
}

// HandTaskPayload is the phase-2 unit of work carried on the queue.
type HandTaskPayload struct {
	JobID     string        `json:"jobId"`
	StreamID  string        `json:"streamId"`
	SourceRef string        `json:"sourceRef"`
	Hand      HandTimestamp `json:"hand"`
	Platform  string        `json:"platform"`
}

// SegmentCallback is posted outward to the orchestrator URL once a
// segment's phase-1 boundaries are known.
type SegmentCallback struct {
	JobID     string          `json:"jobId"`
	StreamID  string          `json:"streamId"`
	SourceRef string          `json:"sourceRef"`
	Platform  string          `json:"platform"`
	Hands     []HandTimestamp `json:"hands"`
}

// ParseClock parses "HH:MM:SS", "MM:SS" or plain seconds into seconds.
func ParseClock(s string) (float64, error) {
	var h, m int
	var sec float64
	if n, err := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); err == nil && n == 3 {
		return float64(h)*3600 + float64(m)*60 + sec, nil
	}
	if n, err := fmt.Sscanf(s, "%d:%f", &m, &sec); err == nil && n == 2 {
		return float64(m)*60 + sec, nil
	}
	if n, err := fmt.Sscanf(s, "%f", &sec); err == nil && n == 1 {
		return sec, nil
	}
	return 0, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatClock renders seconds as "HH:MM:SS" (rounded to whole seconds).
func FormatClock(seconds float64) string {
	total := int(math.Round(seconds))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

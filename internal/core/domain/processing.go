package domain

import "time"

// Stage is one step of the document processing pipeline.
type Stage string

const (
	StageReading       Stage = "reading"
	StageExtracting    Stage = "extracting"
	StageAnalyzing     Stage = "analyzing"
	StageClassifying   Stage = "classifying"
	StageRiskDetection Stage = "risk_detection"
	StageDone          Stage = "done"
)

// Stages lists pipeline stages in execution order; each is worth an equal share of progress.
var Stages = []Stage{StageReading, StageExtracting, StageAnalyzing, StageClassifying, StageRiskDetection}

// StageStart is the progress percentage at which the given stage begins.
func StageStart(stage Stage) int {
	for i, s := range Stages {
		if s == stage {
			return i * 100 / len(Stages)
		}
	}
	if stage == StageDone {
		return 100
	}
	return 0
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
)

type StageProgress struct {
	Stage    Stage      `json:"stage"`
	Status   StepStatus `json:"status"`
	Progress int        `json:"progress"`
}

type DocumentProgress struct {
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	Stage      Stage          `json:"stage,omitempty"`
	Progress   int            `json:"progress"`
	TagCount   int            `json:"tag_count"`
	Error      string         `json:"error,omitempty"`
}

type ProcessingBatch struct {
	Progress  int                `json:"progress"`
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Total     int                `json:"total"`
	Remaining int                `json:"remaining"`
	Completed bool               `json:"completed"`
	Stages    []StageProgress    `json:"stages"`
	Documents []DocumentProgress `json:"documents"`
}

// ExtractedText is the plain text of a document and its page count when known.
type ExtractedText struct {
	Text  string
	Pages int
}

// IngestEvent is published once a document has been stored and awaits processing.
type IngestEvent struct {
	DocumentID  string    `json:"document_id"`
	PublishedAt time.Time `json:"published_at"`
}

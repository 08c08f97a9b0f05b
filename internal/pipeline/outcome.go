package pipeline

import "atelier/internal/store"

// ItemError records a per-item failure that did not stop the step. A step
// only fails outright when every item it attempted failed.
type ItemError struct {
	ItemID  int64  `json:"item_id,omitempty"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

// Output is the typed summary a step persists on success. Each step has its
// own output shape so run history stays queryable.
type Output interface {
	Step() store.StepName
	applyCounters(run *store.Run)
}

// Outcome is what a handler returns when it did not hard-fail. A skipped
// outcome carries the reason; a completed outcome carries the typed output
// and the delta to fold into the run context.
type Outcome struct {
	Skipped    bool
	SkipReason string
	Output     Output
	Delta      Delta
}

// Skip builds a skipped outcome.
func Skip(reason string) Outcome {
	return Outcome{Skipped: true, SkipReason: reason}
}

// ScrapeOutput summarizes the scrape step.
type ScrapeOutput struct {
	ItemsScraped   int         `json:"items_scraped"`
	Duplicates     int         `json:"duplicates"`
	SourcesChecked int         `json:"sources_checked"`
	Errors         []ItemError `json:"errors,omitempty"`
}

func (ScrapeOutput) Step() store.StepName { return store.StepScrape }

func (o ScrapeOutput) applyCounters(run *store.Run) {
	run.ItemsScraped += o.ItemsScraped
}

// ValidateOutput summarizes the validate step.
type ValidateOutput struct {
	AutoApproved int         `json:"auto_approved"`
	AutoRejected int         `json:"auto_rejected"`
	Threshold    float64     `json:"threshold"`
	Errors       []ItemError `json:"errors,omitempty"`
}

func (ValidateOutput) Step() store.StepName { return store.StepValidate }

func (o ValidateOutput) applyCounters(run *store.Run) {
	run.ItemsValidated += o.AutoApproved + o.AutoRejected
}

// DescribeOutput summarizes the describe step.
type DescribeOutput struct {
	Described int         `json:"described"`
	Errors    []ItemError `json:"errors,omitempty"`
}

func (DescribeOutput) Step() store.StepName { return store.StepDescribe }

func (DescribeOutput) applyCounters(*store.Run) {}

// GenerateOutput summarizes the generate step.
type GenerateOutput struct {
	Generated int         `json:"generated"`
	Provider  string      `json:"provider"`
	Errors    []ItemError `json:"errors,omitempty"`
}

func (GenerateOutput) Step() store.StepName { return store.StepGenerate }

func (o GenerateOutput) applyCounters(run *store.Run) {
	run.ItemsGenerated += o.Generated
}

// CaptionOutput summarizes the caption step.
type CaptionOutput struct {
	Captioned int         `json:"captioned"`
	Errors    []ItemError `json:"errors,omitempty"`
}

func (CaptionOutput) Step() store.StepName { return store.StepCaption }

func (CaptionOutput) applyCounters(*store.Run) {}

// ScheduleOutput summarizes the schedule step.
type ScheduleOutput struct {
	Scheduled int         `json:"scheduled"`
	Errors    []ItemError `json:"errors,omitempty"`
}

func (ScheduleOutput) Step() store.StepName { return store.StepSchedule }

func (o ScheduleOutput) applyCounters(run *store.Run) {
	run.PostsScheduled += o.Scheduled
}

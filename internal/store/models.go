package store

import "time"

// RunStatus represents the lifecycle of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this status can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// StepStatus represents the lifecycle of a single step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerTimer     Trigger = "timer"
)

// StepName identifies one stage of the fixed pipeline order.
type StepName string

const (
	StepScrape   StepName = "scrape"
	StepValidate StepName = "validate"
	StepDescribe StepName = "describe"
	StepGenerate StepName = "generate"
	StepCaption  StepName = "caption"
	StepSchedule StepName = "schedule"
)

// StepOrder lists every pipeline step in execution order. Runs always create
// all steps up front and execute them in this sequence.
var StepOrder = []StepName{
	StepScrape,
	StepValidate,
	StepDescribe,
	StepGenerate,
	StepCaption,
	StepSchedule,
}

// OrphanStopReason is the error message recorded when runs are failed because
// the daemon stopped while they were executing.
const OrphanStopReason = "daemon stopped while run was in progress"

// Run is one end-to-end pipeline execution for an account.
type Run struct {
	ID             int64
	AccountID      int64
	Status         RunStatus
	Trigger        Trigger
	CurrentStep    StepName
	ItemsScraped   int
	ItemsValidated int
	ItemsGenerated int
	PostsScheduled int
	ErrorStep      StepName
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// RunStep is the persisted record of one step within a run.
type RunStep struct {
	ID           int64
	RunID        int64
	Name         StepName
	Status       StepStatus
	OutputJSON   string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// Account is a managed posting account runs execute for.
type Account struct {
	ID        int64
	Handle    string
	Active    bool
	LastRunAt *time.Time
	CreatedAt time.Time
}

// Source is an upstream account scraped for candidate content.
type Source struct {
	ID        int64
	AccountID int64
	Handle    string
	Active    bool
	CreatedAt time.Time
}

// Settings holds the per-account knobs the pipeline reads at run start.
type Settings struct {
	AccountID          int64
	VetThreshold       float64
	GenerationProvider string
	ReferenceImagePath string
	AspectRatio        string
	ImageSize          string
	CaptionStyle       string
	PostTimes          []string
}

// ItemStatus represents the vetting disposition of a scraped item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// Item is one piece of scraped content moving through the pipeline.
type Item struct {
	ID            int64
	AccountID     int64
	SourceID      int64
	PostURL       string
	CarouselPos   int
	CarouselTotal int
	MediaURL      string
	MimeType      string
	PostedAt      *time.Time
	Status        ItemStatus
	VetScore      *float64
	Description   string
	GeneratedPath string
	Caption       string
	TagsJSON      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PostStatus represents the publication state of a scheduled post.
type PostStatus string

const (
	PostQueued    PostStatus = "queued"
	PostPublished PostStatus = "published"
	PostCancelled PostStatus = "cancelled"
)

// ScheduledPost is a generated image queued for publication at a slot time.
type ScheduledPost struct {
	ID           int64
	AccountID    int64
	ItemID       int64
	Caption      string
	ImagePath    string
	ScheduledFor time.Time
	Status       PostStatus
	CreatedAt    time.Time
}

package pipeline

import (
	"context"
	"fmt"

	"atelier/internal/store"
)

// Handler executes one pipeline step. A non-nil error fails the whole run;
// per-item problems belong in the Outcome's output instead.
type Handler interface {
	Step() store.StepName
	Run(ctx context.Context, rc Context) (Outcome, error)
}

// StepSet binds a handler to each pipeline step. All six must be set.
type StepSet struct {
	Scraper   Handler
	Validator Handler
	Describer Handler
	Generator Handler
	Captioner Handler
	Scheduler Handler
}

// Validate checks that every step has a handler and each handler reports the
// step it is bound to.
func (s StepSet) Validate() error {
	for _, bound := range s.ordered() {
		if bound.handler == nil {
			return fmt.Errorf("no handler bound for step %s", bound.name)
		}
		if got := bound.handler.Step(); got != bound.name {
			return fmt.Errorf("handler for step %s reports step %s", bound.name, got)
		}
	}
	return nil
}

type boundHandler struct {
	name    store.StepName
	handler Handler
}

func (s StepSet) ordered() []boundHandler {
	return []boundHandler{
		{store.StepScrape, s.Scraper},
		{store.StepValidate, s.Validator},
		{store.StepDescribe, s.Describer},
		{store.StepGenerate, s.Generator},
		{store.StepCaption, s.Captioner},
		{store.StepSchedule, s.Scheduler},
	}
}

// Package worker drains pending runs in the background. A fixed number of
// lanes claim runs through the pipeline manager, so two lanes can never
// execute the same run and one account never occupies more than one lane.
package worker

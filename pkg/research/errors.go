package research

import "errors"

var (
	// ErrInvalidArgument is returned by Engine.Research for an empty query or
	// out of range breadth, depth or concurrency.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPlanningParse marks planner output that was not the expected JSON.
	ErrPlanningParse = errors.New("planning response could not be parsed")

	// ErrExtractionParse marks extractor output that was not the expected JSON.
	ErrExtractionParse = errors.New("extraction response could not be parsed")

	// ErrReportParse marks report output that was not the expected JSON.
	ErrReportParse = errors.New("report response could not be parsed")

	ErrFeedbackParse = errors.New("feedback response could not be parsed")

	// ErrNoChoices is returned when the model answers without any choice.
	ErrNoChoices = errors.New("llm returned no choices")
)

package detector

import "github.com/ccollicutt/logsniff/pkg/registry"

// Trace records a detection run stage by stage.
type Trace struct {
	Lines  []string
	Steps  []Step
	Result *Result
	Err    error
}

// Step is what one stage saw.
type Step struct {
	Stage   registry.Stage
	Matched bool

	// Rejected lists the formats whose line rule did not accept the first
	// sampled line.
	Rejected []string

	// Scores holds the keyword hits per format.
	Scores map[string]int
}

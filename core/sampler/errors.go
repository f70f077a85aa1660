package sampler

import "errors"

var (
	// ErrInvalidConfig reports nonsensical construction parameters. Fatal
	// at construction time; a sampler is never built from a bad config.
	ErrInvalidConfig = errors.New("sampler: invalid configuration")

	// ErrDrawExhausted reports that a replacement draw hit its attempt
	// budget. The run stops and surfaces its partial state; continuing
	// would bias the evidence estimate.
	ErrDrawExhausted = errors.New("sampler: replacement draw attempts exhausted")
)

package jobs

import "errors"

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrInvalidBatch = errors.New("invalid batch")
)

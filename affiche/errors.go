package affiche

import "errors"

// ErrRunInProgress is returned when a run trigger finds the lease already
// held by a batch in flight.
var ErrRunInProgress = errors.New("affiche: a pipeline run is already in progress")

// ErrInvalidInput is returned when intake input fails validation.
var ErrInvalidInput = errors.New("affiche: invalid input")

package model

import "errors"

// Error taxonomy for the recovery pipeline. DataIntegrity failures are
// absorbed record-by-record, Infeasible failures strategy-by-strategy;
// only a missing solver backend aborts a whole run.
var (
	ErrDataIntegrity     = errors.New("data integrity")
	ErrInfeasible        = errors.New("model infeasible")
	ErrSolverUnavailable = errors.New("no usable solver backend")
)

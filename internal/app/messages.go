package app

import "kuharvest/internal/pipeline"

// StageMsg reports a driver state transition.
type StageMsg struct {
	State pipeline.State
}

// UnitMsg reports the unit currently being accumulated.
type UnitMsg struct {
	Unit  string
	Index int
	Total int
}

// WarnMsg reports a skipped item.
type WarnMsg struct {
	Unit    string
	Message string
}

// DoneMsg signals the end of the run.
type DoneMsg struct {
	Result pipeline.Result
	Err    error
}

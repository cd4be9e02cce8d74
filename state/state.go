package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	LocalCfg
	Context   context.Context
	Cancel    context.CancelCauseFunc
	Log       *slog.Logger
	// AuxConfig carries optional collaborators, such as a virtual network under test
	AuxConfig map[string]any
	Started   atomic.Bool
	Stopping  atomic.Bool
}

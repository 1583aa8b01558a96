// Package externalcmd allows to launch external commands.
package externalcmd

import (
	"strings"
)

// Environment is a Cmd environment.
type Environment map[string]string

// Cmd is an external command that runs once.
type Cmd struct {
	Pool   *Pool
	Cmdstr string
	Env    Environment
	OnExit func(error)

	// in
	terminate chan struct{}
}

// Initialize initializes Cmd and starts the command.
func (e *Cmd) Initialize() {
	if e.OnExit == nil {
		e.OnExit = func(error) {}
	}

	// replace variables in both Linux and Windows, in order to allow using the
	// same commands on both of them.
	for key, val := range e.Env {
		e.Cmdstr = strings.ReplaceAll(e.Cmdstr, "$"+key, val)
	}

	e.terminate = make(chan struct{})

	e.Pool.wg.Add(1)

	go e.run()
}

// Close asks the command to exit. It doesn't wait for the command to exit.
func (e *Cmd) Close() {
	close(e.terminate)
}

func (e *Cmd) run() {
	defer e.Pool.wg.Done()

	err := e.runOSSpecific()
	e.OnExit(err)
}

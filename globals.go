/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package main

import "time"

// Globals holds the handful of values that describe this run of the
// VM: program identity, the parsed command line, and the start time.
type Globals struct {
	// note: all references to the version number must come from this literal
	version string

	startTime time.Time

	// ---- command-line items ----
	progName  string
	classFile string
	trace     bool
}

// initGlobals fills in the global values that are known at start-up.
func initGlobals(progName string) *Globals {
	globals := new(Globals)
	globals.startTime = time.Now()
	globals.progName = progName
	globals.version = "0.1.0"
	return globals
}

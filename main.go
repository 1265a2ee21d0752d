/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// minijvm executes the main() method of a compiled Java class file,
// interpreting the integer-and-array subset of the bytecode set. It
// takes a single positional argument, the class file path, and exits
// nonzero on usage errors, load errors, and runtime traps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"minijvm/classloader"
	"minijvm/heap"
	"minijvm/jvm"
)

// The name and descriptor of the method to invoke to run the class
// file. The descriptor encodes main()'s signature: it takes a
// String[] and returns void.
const (
	mainMethod     = "main"
	mainDescriptor = "([Ljava/lang/String;)V"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	g := initGlobals(args[0])

	flags := pflag.NewFlagSet(g.progName, pflag.ContinueOnError)
	flags.BoolVar(&g.trace, "trace", false, "log every dispatched instruction")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args[1:]); err != nil {
		usage(g.progName)
		return 1
	}
	if *showVersion {
		fmt.Printf("%s %s\n", g.progName, g.version)
		return 0
	}
	if flags.NArg() != 1 {
		usage(g.progName)
		return 1
	}
	g.classFile = flags.Arg(0)

	logger := newLogger(g.trace)
	defer func() { _ = logger.Sync() }()
	if g.trace {
		jvm.SetTraceLogger(logger)
	}

	cf, err := classloader.ParseFile(g.classFile)
	if err != nil {
		logger.Error("cannot load class", zap.String("file", g.classFile), zap.Error(err))
		return 1
	}

	m := cf.FindMethod(mainMethod, mainDescriptor)
	if m == nil {
		logger.Error("missing main() method", zap.String("file", g.classFile))
		return 1
	}

	hp := heap.New()
	defer hp.Free()

	// In a full JVM, locals[0] would hold the String[] args reference.
	// This subset has no objects, so the slot stays zero.
	locals := make([]int32, m.MaxLocals)
	result, err := jvm.Execute(m, locals, cf, hp)
	if err != nil {
		logger.Error("runtime error", zap.Error(err))
		return 1
	}
	if result.HasValue {
		logger.Error("main() returned a value; it must be void")
		return 1
	}
	return 0
}

func usage(progName string) {
	fmt.Fprintf(os.Stderr, "USAGE: %s <class file>\n", progName)
}

// newLogger builds a console logger on stderr: Warn level normally,
// Debug when instruction tracing is on.
func newLogger(trace bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if trace {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot initialize logging: %v\n", err)
		os.Exit(1)
	}
	return logger
}

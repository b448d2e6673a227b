package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/sidkik/sshcp-v1/pkg/errors"
	"github.com/sidkik/sshcp-v1/pkg/version"
)

// HandleFatalError prints the user-facing form of `err` and exits. The full
// context chain still lands in the debug log.
func HandleFatalError(err error) {
	log.Debug(err)
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic logs panics before crashing so bug reports contain the stack
// and the binary version.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("version", version.Version).
			Errorf("panic: %v\n%s", r, debug.Stack())
		os.Exit(1)
	}
}

// SetupLogFile mirrors log output into a rotating file next to stderr so
// that failed transfers can be debugged after the fact.
func SetupLogFile(path string) {
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}))
}

// Package logging formalizes the plain stdlib-log, arrow-prefixed
// progress style used throughout the engine into a handful of helpers so
// every subsystem prints consistently.
package logging

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stdout, "", log.LstdFlags)

// Step prints a "----->Doing thing" progress line, mirroring the
// migration worker's download/upload/complete markers.
func Step(format string, args ...interface{}) {
	std.Printf("----->%s\n", fmt.Sprintf(format, args...))
}

// OK prints a checkmark-prefixed success line.
func OK(format string, args ...interface{}) {
	std.Printf("✓ %s\n", fmt.Sprintf(format, args...))
}

// Warn prints a warning-prefixed line.
func Warn(format string, args ...interface{}) {
	std.Printf("⚠ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error-prefixed line.
func Error(format string, args ...interface{}) {
	std.Printf("✗ %s\n", fmt.Sprintf(format, args...))
}

// Info prints a plain informational line.
func Info(format string, args ...interface{}) {
	std.Printf(format+"\n", args...)
}

// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package logx is the tracer's diagnostic logging surface: two line
// shapes, prefixed "<allog> [+] " (info, stdout) and "<allog> [!] "
// (error, stderr). Built on logrus with a formatter that emits exactly
// the literal prefix and message, no timestamp and no level name, since
// downstream tooling may grep for the literal prefix.
package logx

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// prefixFormatter renders a log entry as "<prefix><message>\n" with
// nothing else: no timestamp, no level, no fields. The prefix is baked in
// per-logger (one instance for info, one for error) rather than derived
// from the entry's level, since this package only ever uses Info/Error.
type prefixFormatter struct {
	prefix string
}

func (f prefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(f.prefix + entry.Message + "\n"), nil
}

var (
	infoLogger = newLogger("<allog> [+] ", os.Stdout)
	errLogger  = newLogger("<allog> [!] ", os.Stderr)
)

func newLogger(prefix string, out *os.File) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(prefixFormatter{prefix: prefix})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Infof logs a formatted info/success line to stdout.
func Infof(format string, args ...any) {
	infoLogger.Info(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error line to stderr.
func Errorf(format string, args ...any) {
	errLogger.Error(fmt.Sprintf(format, args...))
}

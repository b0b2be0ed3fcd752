// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixFormatterInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("<allog> [+] ", nil)
	l.SetOutput(&buf)
	l.Info("hello world")

	got := buf.String()
	if !strings.HasPrefix(got, "<allog> [+] hello world") {
		t.Errorf("got %q, want prefix %q", got, "<allog> [+] hello world")
	}
	if strings.Contains(got, "level=") || strings.Contains(got, "time=") {
		t.Errorf("formatter leaked logrus fields into output: %q", got)
	}
}

func TestPrefixFormatterError(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("<allog> [!] ", nil)
	l.SetOutput(&buf)
	l.Error("something broke")

	got := buf.String()
	if got != "<allog> [!] something broke\n" {
		t.Errorf("got %q, want exact literal line", got)
	}
}

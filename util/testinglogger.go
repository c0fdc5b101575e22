package util

import (
	"testing"
)

// NewTestingLogger returns a trace writer that sends each line to tb.Log.
func NewTestingLogger(tb testing.TB) *CommitLogger {
	return &CommitLogger{
		Committer: func(p []byte) {
			tb.Helper()
			tb.Log(string(p))
		},
		LineCommit: true,
	}
}

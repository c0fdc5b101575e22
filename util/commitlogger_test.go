package util

import (
	"reflect"
	"testing"
)

func TestCommitLogger_Write(t *testing.T) {
	tests := []struct {
		name       string
		lineCommit bool
		writes     []string
		commit     bool
		expected   []string
		pending    int
	}{
		{
			name:     "buffers until commit",
			writes:   []string{"a\n", "b\n"},
			expected: nil,
			pending:  4,
		},
		{
			name:     "commit flushes everything",
			writes:   []string{"a\n", "b"},
			commit:   true,
			expected: []string{"a\nb"},
		},
		{
			name:       "line commit splits lines",
			lineCommit: true,
			writes:     []string{"one\ntw", "o\nthree"},
			expected:   []string{"one", "two"},
			pending:    5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			l := &CommitLogger{
				Committer:  func(p []byte) { got = append(got, string(p)) },
				LineCommit: tt.lineCommit,
			}
			for _, w := range tt.writes {
				if n, err := l.Write([]byte(w)); n != len(w) || err != nil {
					t.Fatalf("Write() = %v, %v", n, err)
				}
			}
			if tt.commit {
				l.Commit()
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("committed = %q, expected = %q", got, tt.expected)
			}
			if l.Len() != tt.pending {
				t.Errorf("Len() = %v, expected = %v", l.Len(), tt.pending)
			}
		})
	}
}

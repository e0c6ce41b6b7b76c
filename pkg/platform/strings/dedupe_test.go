package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil slice", input: nil, want: nil},
		{name: "empty slice", input: []string{}, want: []string{}},
		{name: "drops empties and whitespace", input: []string{"  foo ", "bar", "foo", "", "  "}, want: []string{"foo", "bar"}},
		{name: "preserves first occurrence order", input: []string{"b", "a", "b"}, want: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeSorted(t *testing.T) {
	got := DedupeSorted([]string{"status", "accountName", "status", " entitlements "})
	assert.Equal(t, []string{"accountName", "entitlements", "status"}, got)
}

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
		{name: "nil", input: nil, want: nil},
		{name: "empty", input: []string{}, want: []string{}},
		{
			name:  "trims and drops empties",
			input: []string{" https://a ", "", "  ", "https://b"},
			want:  []string{"https://a", "https://b"},
		},
		{
			name:  "dedupes preserving first-seen order",
			input: []string{"b", "a", "b", "a", "c"},
			want:  []string{"b", "a", "c"},
		},
		{
			name:  "duplicate only after trimming",
			input: []string{"https://a", " https://a "},
			want:  []string{"https://a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

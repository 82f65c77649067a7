package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "tagged block",
			text:   "Here you go:\n```sql\nSELECT * FROM users LIMIT 5\n```\nEnjoy.",
			want:   "SELECT * FROM users LIMIT 5\n",
			wantOK: true,
		},
		{
			name:   "untagged block",
			text:   "```\nWITH t AS (SELECT 1) SELECT * FROM t\n```",
			want:   "WITH t AS (SELECT 1) SELECT * FROM t\n",
			wantOK: true,
		},
		{
			name:   "first block wins",
			text:   "```text\nnot a query\n```\n```sql\nSELECT 2\n```",
			want:   "not a query\n",
			wantOK: true,
		},
		{
			name:   "inner content kept verbatim",
			text:   "```sql\n  SELECT a,\n         b\n  FROM t\n```",
			want:   "  SELECT a,\n         b\n  FROM t\n",
			wantOK: true,
		},
		{
			name:   "bare select",
			text:   "The query is SELECT id FROM orders WHERE total > 10",
			want:   "SELECT id FROM orders WHERE total > 10",
			wantOK: true,
		},
		{
			name:   "unterminated fence",
			text:   "```sql\nSELECT 1",
			wantOK: false,
		},
		{
			name:   "prose only",
			text:   "Could you tell me which region you mean?",
			wantOK: false,
		},
		{
			name:   "lowercase select is not a token",
			text:   "please select a table",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCodeBlock(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAssumptions(t *testing.T) {
	text := "Assuming revenue means order totals.\n\n```sql\nSELECT SUM(total) FROM orders\n```"
	assert.Equal(t, "Assuming revenue means order totals.", ExtractAssumptions(text))
	assert.Empty(t, ExtractAssumptions("SELECT 1"))
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("  SELECT 1"))
	assert.True(t, isQuery("\nWITH x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, isQuery("DELETE FROM users"))
	assert.False(t, isQuery("select 1"))
}

package formatting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/pkg/formatting"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{4 << 20, "4 MB"},
		{10<<20 + 300<<10, "10.3 MB"},
		{3 << 40, "3 TB"},
		{2048 << 40, "2048 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatting.FormatBytes(tt.n))
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"2048", 2048, false},
		{"512B", 512, false},
		{"4MB", 4 << 20, false},
		{"4 mb", 4 << 20, false},
		{"4M", 4 << 20, false},
		{"1.5KiB", 1536, false},
		{"2 GB", 2 << 30, false},
		{"", 0, true},
		{"lots", 0, true},
		{"5QB", 0, true},
		{"4MBs", 0, true},
		{"1.2.3KB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, n := range []int64{512, 1 << 10, 4 << 20, 10 << 20} {
		got, err := formatting.ParseBytes(formatting.FormatBytes(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestExtractJSON(t *testing.T) {
	t.Run("bare", func(t *testing.T) {
		raw, err := formatting.ExtractJSON("  {\"score\": 4}\n")
		require.NoError(t, err)
		assert.JSONEq(t, `{"score": 4}`, string(raw))
	})

	t.Run("fenced", func(t *testing.T) {
		raw, err := formatting.ExtractJSON("Here you go:\n```json\n{\"issues\": []}\n```\n")
		require.NoError(t, err)
		assert.JSONEq(t, `{"issues": []}`, string(raw))
	})

	t.Run("skips invalid fence", func(t *testing.T) {
		raw, err := formatting.ExtractJSON("```\nnot json\n```\n```json\n[1,2]\n```")
		require.NoError(t, err)
		assert.JSONEq(t, `[1,2]`, string(raw))
	})

	t.Run("no json", func(t *testing.T) {
		_, err := formatting.ExtractJSON("plain prose")
		assert.ErrorIs(t, err, formatting.ErrParseFailed)
	})
}

func TestParse(t *testing.T) {
	type critique struct {
		Score  int      `json:"score"`
		Issues []string `json:"issues"`
	}

	got, err := formatting.Parse[critique]("```json\n{\"score\": 3, \"issues\": [\"tone\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, critique{Score: 3, Issues: []string{"tone"}}, got)

	_, err = formatting.Parse[critique](`{"score": "high"}`)
	assert.ErrorIs(t, err, formatting.ErrParseFailed)
}

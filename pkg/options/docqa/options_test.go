package docqa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Complete())
	assert.Empty(t, o.Validate())
	assert.Equal(t, 1000, o.ChunkSize)
	assert.Equal(t, 200, o.ChunkOverlap)
	assert.Equal(t, 3, o.TopK)
	assert.Equal(t, 10, o.HistoryLimit)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"overlap equals size", func(o *Options) { o.ChunkOverlap = o.ChunkSize }},
		{"negative overlap", func(o *Options) { o.ChunkOverlap = -1 }},
		{"zero top-k", func(o *Options) { o.TopK = 0 }},
		{"unknown language", func(o *Options) { o.Language = "de" }},
		{"empty dir", func(o *Options) { o.DocumentsDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.modify(o)
			assert.NotEmpty(t, o.Validate())
		})
	}
}

func TestOptions_CompleteRoundsHistoryDown(t *testing.T) {
	o := NewOptions()
	o.HistoryLimit = 7
	require.NoError(t, o.Complete())
	assert.Equal(t, 6, o.HistoryLimit)
}

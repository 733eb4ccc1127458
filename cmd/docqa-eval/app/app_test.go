package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_EvalFlags(t *testing.T) {
	o := NewOptions()
	fss := o.Flags()

	assert.Equal(t, "eval", fss.Order[len(fss.Order)-1])
	require.NoError(t, fss.FlagSets["eval"].Parse([]string{"--cases=q.json", "--output=out.json"}))
	assert.Equal(t, "q.json", o.Cases)
	assert.Equal(t, "out.json", o.Output)

	// server flags remain bound to the embedded options
	require.NoError(t, fss.FlagSets["docqa"].Parse([]string{"--docqa.top-k=7"}))
	assert.Equal(t, 7, o.DocQAOptions.TopK)
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	o.EmbeddingOptions.APIKey = "sk-test"
	o.ChatOptions.APIKey = "sk-test"
	require.NoError(t, o.Validate())

	o.Cases = ""
	assert.ErrorContains(t, o.Validate(), "--cases")

	o = NewOptions()
	assert.Error(t, o.Validate(), "server options are validated too")
}

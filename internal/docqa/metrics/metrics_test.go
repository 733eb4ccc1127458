package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	obs "github.com/kart-io/docqa/pkg/observability/metrics"
)

func TestDocQAMetrics(t *testing.T) {
	m := New(obs.NewRegistry())

	m.RecordAsk(AskAnswered, 120*time.Millisecond)
	m.RecordAsk(AskAnswered, 80*time.Millisecond)
	m.RecordAsk(AskNoContext, 10*time.Millisecond)
	m.RecordRetrieval(5 * time.Millisecond)
	m.RecordGeneration(100*time.Millisecond, nil)
	m.RecordGeneration(time.Second, errors.New("boom"))
	m.RecordHTTP(http.MethodPost, "/v1/docqa/ask", http.StatusOK, 130*time.Millisecond)

	assert.Equal(t, float64(2), m.Asks(AskAnswered))
	assert.Equal(t, float64(1), m.Asks(AskNoContext))
	assert.Equal(t, float64(0), m.Asks(AskError))

	out := m.Export()
	assert.Contains(t, out, `docqa_asks_total{result="answered"} 2`)
	assert.Contains(t, out, "docqa_generation_errors_total 1\n")
	assert.Contains(t, out, "docqa_ask_duration_seconds_count 3\n")
	assert.Contains(t, out, `docqa_http_request_duration_seconds_count{method="POST",path="/v1/docqa/ask",status="200"} 1`)
}

func TestDocQAMetrics_Reload(t *testing.T) {
	m := New(obs.NewRegistry())

	m.RecordReload(ReloadOK, 42)
	assert.Equal(t, float64(42), m.Chunks())

	m.RecordReload(ReloadError, 0)
	assert.Equal(t, float64(42), m.Chunks(), "a failed reload leaves the index untouched")

	m.RecordReload(ReloadNoDocuments, 0)
	assert.Equal(t, float64(0), m.Chunks())
	assert.Equal(t, float64(1), m.Reloads(ReloadOK))
	assert.Equal(t, float64(1), m.Reloads(ReloadError))
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

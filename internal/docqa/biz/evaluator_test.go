package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
)

type fakeAsker struct {
	mu      sync.Mutex
	users   []string
	cleared []string
	answer  func(q string) (*AskResult, error)
}

func (f *fakeAsker) Ask(_ context.Context, userID, question string) (*AskResult, error) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	return f.answer(question)
}

func (f *fakeAsker) ClearHistory(_ context.Context, userID string) error {
	f.mu.Lock()
	f.cleared = append(f.cleared, userID)
	f.mu.Unlock()
	return nil
}

func TestEvaluator_Run(t *testing.T) {
	asker := &fakeAsker{answer: func(q string) (*AskResult, error) {
		switch q {
		case "capital":
			return &AskResult{Success: true, Answer: "Paris is the capital", Sources: []string{"paris.txt"}, FoundDocs: 1,
				Context: "The capital of France is Paris"}, nil
		case "unknown":
			return &AskResult{Success: false, Answer: Russian.NoRelevantInfo, Sources: []string{}}, nil
		default:
			return nil, errors.ErrGeneration.WithCause(fmt.Errorf("down"))
		}
	}}

	report, err := NewEvaluator(asker).Run(context.Background(), []EvalCase{
		{Question: "capital", ExpectedAnswer: "The capital of France is Paris"},
		{Question: "unknown", ExpectedAnswer: "Nothing here"},
		{Question: "broken", ExpectedAnswer: "Whatever"},
	})
	require.NoError(t, err)

	assert.True(t, id.IsULID(report.RunID))
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Succeeded)
	assert.Equal(t, 2, report.Summary.Failed)
	require.Len(t, report.Results, 3)

	first := report.Results[0]
	assert.True(t, first.Success)
	// the、capital、paris 出现在答案中，france 未出现
	assert.InDelta(t, 0.75, first.KeywordRecall, 1e-9)
	assert.InDelta(t, 1.0, first.ContextRecall, 1e-9)
	assert.Equal(t, []string{"paris.txt"}, first.Sources)

	assert.False(t, report.Results[1].Success)
	assert.Empty(t, report.Results[1].Error)
	assert.Contains(t, report.Results[2].Error, "Answer generation failed")

	assert.Len(t, asker.users, 3)
	assert.NotEqual(t, asker.users[0], asker.users[1])
	assert.Equal(t, asker.users, asker.cleared)
}

func TestEvaluator_NoCases(t *testing.T) {
	_, err := NewEvaluator(&fakeAsker{}).Run(context.Background(), nil)
	assert.True(t, errors.Is(err, errors.ErrEvaluation))
}

func TestEvalFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadEvalCases(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, errors.ErrEvaluation))

	out := filepath.Join(dir, "report.json")
	report := &EvalReport{RunID: "run", Results: []EvalResult{{Question: "q", Sources: []string{}}}}
	require.NoError(t, WriteEvalReport(out, report))
	assert.FileExists(t, out)

	_, err = LoadEvalCases(out)
	assert.True(t, errors.Is(err, errors.ErrEvaluation), "a report object is not a case list")

	casesPath := filepath.Join(dir, "cases.json")
	require.NoError(t, os.WriteFile(casesPath, []byte(`[{"question":"Capital of France?","expected_answer":"Paris"}]`), 0o644))
	cases, err := LoadEvalCases(casesPath)
	require.NoError(t, err)
	assert.Equal(t, []EvalCase{{Question: "Capital of France?", ExpectedAnswer: "Paris"}}, cases)

	require.NoError(t, os.WriteFile(casesPath, []byte(`[{"question":"ok"},{"question":"  "}]`), 0o644))
	_, err = LoadEvalCases(casesPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEvaluation))
	assert.Contains(t, err.Error(), "case 1")
}

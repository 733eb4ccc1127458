package biz

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
	"github.com/kart-io/docqa/pkg/utils/json"
	"github.com/kart-io/docqa/pkg/utils/validator"
)

// KeywordMinLen 参与关键词召回计算的最短词长。
const KeywordMinLen = 3

// Asker 评估所需的问答能力。
type Asker interface {
	Ask(ctx context.Context, userID, question string) (*AskResult, error)
	ClearHistory(ctx context.Context, userID string) error
}

// EvalCase 单个评估用例。
type EvalCase struct {
	Question       string `json:"question" validate:"required,notblank"`
	ExpectedAnswer string `json:"expected_answer"`
}

// EvalResult 单个用例的评估结果。
type EvalResult struct {
	Question       string   `json:"question"`
	ExpectedAnswer string   `json:"expected_answer"`
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	FoundDocs      int      `json:"found_docs"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	LatencyMS      int64    `json:"latency_ms"`

	// KeywordRecall 期望答案中的关键词出现在答案中的比例。
	KeywordRecall float64 `json:"keyword_recall"`

	// ContextRecall 期望答案中的关键词出现在检索上下文中的比例。
	ContextRecall float64 `json:"context_recall"`
}

// EvalSummary 汇总指标。
type EvalSummary struct {
	Total             int     `json:"total"`
	Succeeded         int     `json:"succeeded"`
	Failed            int     `json:"failed"`
	MeanKeywordRecall float64 `json:"mean_keyword_recall"`
	MeanContextRecall float64 `json:"mean_context_recall"`
	MeanLatencyMS     float64 `json:"mean_latency_ms"`
}

// EvalReport 一次评估运行的报告。
type EvalReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMS int64        `json:"duration_ms"`
	Summary    EvalSummary  `json:"summary"`
	Results    []EvalResult `json:"results"`
}

// Evaluator 对问答服务批量提问并计算召回指标。
type Evaluator struct {
	asker Asker
	now   func() time.Time
}

// NewEvaluator 创建评估器。
func NewEvaluator(asker Asker) *Evaluator {
	return &Evaluator{asker: asker, now: time.Now}
}

// Run 依次执行用例。每个用例使用独立的用户 ID，执行后清除其历史，
// 用例之间互不影响。单个用例失败会记录在结果中，不会中断运行。
func (e *Evaluator) Run(ctx context.Context, cases []EvalCase) (*EvalReport, error) {
	if len(cases) == 0 {
		return nil, errors.ErrEvaluation.WithMessage("no evaluation cases")
	}

	report := &EvalReport{
		RunID:     id.NewULID(),
		StartedAt: e.now(),
		Results:   make([]EvalResult, 0, len(cases)),
	}
	logger.Infow("Evaluation started", "run_id", report.RunID, "cases", len(cases))

	var sumKR, sumCR, sumLatency float64
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrEvaluation.WithCause(err)
		}

		userID := report.RunID + "-" + strconv.Itoa(i)
		start := e.now()
		res, err := e.asker.Ask(ctx, userID, c.Question)
		latency := e.now().Sub(start).Milliseconds()
		_ = e.asker.ClearHistory(ctx, userID)

		r := EvalResult{
			Question:       c.Question,
			ExpectedAnswer: c.ExpectedAnswer,
			Sources:        []string{},
			LatencyMS:      latency,
		}
		if err != nil {
			r.Error = errors.FromError(err).Detail("en")
			report.Summary.Failed++
			logger.Warnw("Evaluation case failed", "run_id", report.RunID, "index", i, "error", err)
		} else {
			r.Answer = res.Answer
			r.Sources = res.Sources
			r.FoundDocs = res.FoundDocs
			r.Success = res.Success
			r.KeywordRecall = textutil.KeywordRecall(c.ExpectedAnswer, res.Answer, KeywordMinLen)
			r.ContextRecall = textutil.KeywordRecall(c.ExpectedAnswer, res.Context, KeywordMinLen)
			if res.Success {
				report.Summary.Succeeded++
			} else {
				report.Summary.Failed++
			}
		}

		sumKR += r.KeywordRecall
		sumCR += r.ContextRecall
		sumLatency += float64(latency)
		report.Results = append(report.Results, r)
	}

	n := float64(len(cases))
	report.Summary.Total = len(cases)
	report.Summary.MeanKeywordRecall = sumKR / n
	report.Summary.MeanContextRecall = sumCR / n
	report.Summary.MeanLatencyMS = sumLatency / n
	report.DurationMS = e.now().Sub(report.StartedAt).Milliseconds()

	logger.Infow("Evaluation finished",
		"run_id", report.RunID,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
		"keyword_recall", report.Summary.MeanKeywordRecall,
	)
	return report, nil
}

// LoadEvalCases 从 JSON 文件读取评估用例。
func LoadEvalCases(path string) ([]EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrEvaluation.WithCause(err)
	}
	var cases []EvalCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, errors.ErrEvaluation.WithCause(err)
	}
	for i := range cases {
		if verrs := validator.Global().Struct(&cases[i], validator.LangEN); verrs != nil {
			return nil, errors.ErrEvaluation.WithMessagef("case %d: %s", i, verrs.First())
		}
	}
	return cases, nil
}

// WriteEvalReport 以缩进 JSON 原子写入评估报告。
func WriteEvalReport(path string, report *EvalReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.ErrEvaluation.WithCause(err)
	}
	if err := docutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.ErrEvaluation.WithCause(err)
	}
	return nil
}

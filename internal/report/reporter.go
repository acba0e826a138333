package report

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"feple/internal/analysis"
	"feple/internal/config"
	"feple/internal/fileutil"
	"feple/internal/fragment"
	"feple/internal/logging"
	"feple/internal/results"
)

// FileName is the summary snapshot written to the output directory. Each run
// overwrites the previous snapshot; the file always reflects the latest state.
const FileName = "summary_report.txt"

// Reporter periodically summarizes the accumulated results, writes the
// snapshot file, and logs the headline numbers.
type Reporter struct {
	cfg     *config.Config
	logger  *slog.Logger
	results *results.Store

	cron    *cron.Cron
	entryID cron.EntryID
}

// New constructs a reporter over the given results store.
func New(cfg *config.Config, store *results.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{
		cfg:     cfg,
		logger:  logger.With(logging.String(logging.FieldComponent, "report")),
		results: store,
	}
}

// Start schedules the periodic snapshot. The first snapshot is written
// immediately so a fresh daemon exposes state without waiting a full interval.
func (r *Reporter) Start(ctx context.Context) error {
	if r.cron != nil {
		return fmt.Errorf("reporter already started")
	}

	if err := r.Run(ctx); err != nil {
		r.logger.Warn("initial summary failed", logging.Error(err))
	}

	r.cron = cron.New()
	schedule := fmt.Sprintf("@every %ds", r.cfg.Report.IntervalSeconds)
	entryID, err := r.cron.AddFunc(schedule, func() {
		if err := r.Run(ctx); err != nil {
			r.logger.Warn("summary generation failed", logging.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule summary job: %w", err)
	}
	r.entryID = entryID
	r.cron.Start()
	r.logger.Info("summary reporting started", logging.Int("interval_seconds", r.cfg.Report.IntervalSeconds))
	return nil
}

// Stop halts the schedule and waits for a running snapshot to finish.
func (r *Reporter) Stop() {
	if r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.cron = nil
}

// Run generates one snapshot: summarize the store, write the report file, log
// the headline counts.
func (r *Reporter) Run(ctx context.Context) error {
	summary, err := r.results.Summarize(ctx, r.cfg.Report.HighConfidenceThreshold)
	if err != nil {
		return fmt.Errorf("summarize results: %w", err)
	}

	path := filepath.Join(r.cfg.Paths.OutputDir, FileName)
	if err := writeSnapshot(path, summary); err != nil {
		return fmt.Errorf("write summary report: %w", err)
	}

	r.logger.Info("summary written",
		logging.String(logging.FieldEventType, "summary_written"),
		logging.Int("sessions", summary.Total),
		logging.Int("high_confidence", summary.HighConfidence),
		logging.Float64("mean_confidence", summary.MeanConfidence),
	)
	return nil
}

// writeSnapshot renders the report and replaces the file via temp rename so
// readers never see a partial report.
func writeSnapshot(path string, summary results.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "상담 품질 분류 결과 요약\n")
	fmt.Fprintf(&b, "생성 시각: %s\n", summary.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", 40))
	fmt.Fprintf(&b, "전체 세션 수: %d\n\n", summary.Total)

	fmt.Fprintf(&b, "라벨별 분포:\n")
	for _, label := range analysis.Labels() {
		fmt.Fprintf(&b, "  %-12s %5d (%.1f%%)\n", label, summary.LabelCounts[label], summary.LabelPercent(label))
	}
	for _, label := range extraLabels(summary) {
		fmt.Fprintf(&b, "  %-12s %5d (%.1f%%)\n", label, summary.LabelCounts[label], summary.LabelPercent(label))
	}

	fmt.Fprintf(&b, "\n평균 신뢰도: %.4f\n", summary.MeanConfidence)
	fmt.Fprintf(&b, "고신뢰 세션 (>= %.2f): %d\n\n", summary.Threshold, summary.HighConfidence)

	fmt.Fprintf(&b, "유형별 최종 결과 출처:\n")
	kinds := make([]string, 0, len(summary.KindCounts))
	for kind := range summary.KindCounts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %-16s %5d\n", kind, summary.KindCounts[fragment.Kind(kind)])
	}

	return fileutil.WriteFileAtomic(path, []byte(b.String()), 0o644)
}

// extraLabels returns labels outside the canonical set in sorted order. They
// can only appear if the database predates a label-set change.
func extraLabels(summary results.Summary) []string {
	var extras []string
	for label := range summary.LabelCounts {
		if !analysis.ValidLabel(label) {
			extras = append(extras, label)
		}
	}
	sort.Strings(extras)
	return extras
}

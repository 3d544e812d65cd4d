package analyses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"powerquality-backend/internal/report"
	"powerquality-backend/internal/shared/metrics"
	"powerquality-backend/internal/shared/telemetry"
)

// ReviseReport replaces the structured report of a completed analysis and
// re-renders the MDX document in place. Used by the chat orchestrator when
// the model asks for a revision. Returns the new MDX content.
func (s *Service) ReviseReport(ctx context.Context, userID, id string, rep *report.Report) (string, error) {
	rec, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if rec.Status != StatusCompleted {
		return "", ErrInvalidTransition
	}
	if rep == nil || len(rep.Sections) == 0 {
		return "", fmt.Errorf("revised report has no sections")
	}

	s.enrichReportMetadata(rep, rec)
	if s.Store != nil {
		s.renderCharts(ctx, rep, rec)
	}

	mdx := report.ToMdx(rep)
	mdxKey := rec.ReportMdxKey
	if mdxKey == "" {
		mdxKey = reportMdxKey(rec.UserID, rec.ID)
	}
	if s.Store != nil {
		if _, err := s.Store.SaveWithKey(ctx, mdxKey, "text/markdown", strings.NewReader(mdx)); err != nil {
			return "", fmt.Errorf("save revised report: %w", err)
		}
	}

	now := time.Now().UTC()
	if err := s.Repo.Apply(ctx, rec.ID, Update{
		ExpectStatus:     strPtr(StatusCompleted),
		Report:           rep,
		ReportMdxKey:     strPtr(mdxKey),
		ReportModifiedAt: timePtr(now),
	}); err != nil {
		return "", err
	}

	metrics.IncReportRevision()
	telemetry.Info("analysis.report_revised", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     userID,
		"analysis_id": id,
	})
	return mdx, nil
}

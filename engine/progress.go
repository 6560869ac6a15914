package engine

import (
	"log/slog"

	"github.com/zero-day-ai/aviator/allocation"
)

// Progress receives run milestones. Implementations must not block.
type Progress interface {
	Start(archivePath string, findings int)
	Filtered(eligible, filtered int)
	Allocated(plan *allocation.Plan)
	Submitted(batch int)
	Completed(out *Outcome)
	Error(err error)
}

// LogProgress reports milestones through slog.
type LogProgress struct {
	Logger *slog.Logger
}

func (p LogProgress) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p LogProgress) Start(archivePath string, findings int) {
	p.logger().Info("starting audit", "archive", archivePath, "findings", findings)
}

func (p LogProgress) Filtered(eligible, filtered int) {
	p.logger().Info("selected findings", "eligible", eligible, "after_filter", filtered)
}

func (p LogProgress) Allocated(plan *allocation.Plan) {
	p.logger().Info("allocated triage budget",
		"included", plan.IncludedCount(),
		"skipped_per_category", plan.SkippedBy(allocation.PerCategoryExceeded),
		"skipped_per_total", plan.SkippedBy(allocation.PerTotalExceeded),
		"proportional", plan.Proportional)
}

func (p LogProgress) Submitted(batch int) {
	p.logger().Info("submitted batch for triage", "candidates", batch)
}

func (p LogProgress) Completed(out *Outcome) {
	p.logger().Info("audit completed",
		"status", out.Status,
		"succeeded", out.Succeeded,
		"merged", out.Merged,
		"annotated", out.Annotated,
		"failed", out.Failed)
}

func (p LogProgress) Error(err error) {
	p.logger().Error("audit failed", "error", err)
}

package repository

import (
	"context"

	"compintel/internal/domain/entity"
)

type RunRepository interface {
	Create(ctx context.Context, run *entity.RunRecord) error
	// Finish persists the final status, counts and stage errors. It is
	// called with a non-cancelable context so a canceled run still gets
	// its record written.
	Finish(ctx context.Context, run *entity.RunRecord) error
	Get(ctx context.Context, id string) (*entity.RunRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.RunRecord, error)
}

type ReportRepository interface {
	Create(ctx context.Context, report *entity.Report) error
	UpdateStatus(ctx context.Context, id int64, status entity.ReportStatus) error
	Get(ctx context.Context, id int64) (*entity.Report, error)
	// ListUndelivered returns reports still pending delivery, oldest
	// first, so a later run can retry them.
	ListUndelivered(ctx context.Context) ([]*entity.Report, error)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hottakes/internal/model"
)

// PostgresReportRepo はPostgreSQLを使用した通報リポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// Create は通報を作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.Report) error {
	var reporter sql.NullString
	if report.ReporterUserID != nil {
		reporter = sql.NullString{String: *report.ReporterUserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, target_type, target_id, reason, reporter_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, string(report.TargetType), report.TargetID, report.Reason, reporter, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("通報の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)

package db

import (
	"context"

	"github.com/opsboard/issue-calendar/internal/model"
)

type reportExportRow struct {
	ID          int64  `db:"id"`
	SessionID   string `db:"session_id"`
	ObjectKey   string `db:"object_key"`
	WindowStart string `db:"window_start"`
	WindowEnd   string `db:"window_end"`
	IssueCount  int    `db:"issue_count"`
	SizeBytes   int64  `db:"size_bytes"`
	CreatedAt   string `db:"created_at"`
}

func (r reportExportRow) toModel() model.ReportExport {
	return model.ReportExport{
		ID:          r.ID,
		SessionID:   r.SessionID,
		ObjectKey:   r.ObjectKey,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		IssueCount:  r.IssueCount,
		SizeBytes:   r.SizeBytes,
		CreatedAt:   parseTime(r.CreatedAt),
	}
}

func (d *DB) CreateReportExport(ctx context.Context, e *model.ReportExport) error {
	res, err := d.NamedExecContext(ctx, `
		INSERT INTO report_exports (session_id, object_key, window_start, window_end, issue_count, size_bytes, created_at)
		VALUES (:session_id, :object_key, :window_start, :window_end, :issue_count, :size_bytes, :created_at)`,
		reportExportRow{
			SessionID:   e.SessionID,
			ObjectKey:   e.ObjectKey,
			WindowStart: e.WindowStart,
			WindowEnd:   e.WindowEnd,
			IssueCount:  e.IssueCount,
			SizeBytes:   e.SizeBytes,
			CreatedAt:   formatTime(e.CreatedAt),
		})
	if err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (d *DB) ListReportExports(ctx context.Context, limit, offset int) ([]model.ReportExport, error) {
	var rows []reportExportRow
	err := d.SelectContext(ctx, &rows, `
		SELECT id, session_id, object_key, window_start, window_end, issue_count, size_bytes, created_at
		FROM report_exports ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]model.ReportExport, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (d *DB) GetReportExport(ctx context.Context, id int64) (*model.ReportExport, error) {
	var row reportExportRow
	err := d.GetContext(ctx, &row, `
		SELECT id, session_id, object_key, window_start, window_end, issue_count, size_bytes, created_at
		FROM report_exports WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	e := row.toModel()
	return &e, nil
}

func (d *DB) ReportExportExistsByKey(ctx context.Context, key string) (bool, error) {
	var count int
	if err := d.GetContext(ctx, &count, `SELECT COUNT(*) FROM report_exports WHERE object_key = ?`, key); err != nil {
		return false, err
	}
	return count > 0, nil
}

package s3

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/report"
)

const (
	reportPrefix = "reports"
	reportSuffix = ".yaml.zst"

	metaSession     = "session"
	metaWindowStart = "window-start"
	metaWindowEnd   = "window-end"
	metaIssueCount  = "issue-count"
	metaGeneratedAt = "generated-at"
	metaTrackers    = "trackers"
)

// Bucket is the subset of Client the exporter needs.
type Bucket interface {
	PutReport(ctx context.Context, key string, data []byte, meta map[string]string) (int64, error)
	ListReports(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Metadata(ctx context.Context, key string) (map[string]string, error)
}

// Store is the subset of the database layer needed to record exports.
type Store interface {
	CreateReportExport(ctx context.Context, e *model.ReportExport) error
	ReportExportExistsByKey(ctx context.Context, key string) (bool, error)
}

// Exporter uploads rendered reports and records them in a Store.
type Exporter struct {
	bucket Bucket
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewExporter creates an Exporter writing to bucket and recording to store.
func NewExporter(bucket Bucket, store Store, clk clock.Clock, logger *slog.Logger) *Exporter {
	return &Exporter{bucket: bucket, store: store, clock: clk, logger: logger}
}

// ObjectKey returns the key a report for sessionID is stored under:
// reports/{window start}/{session}-{id}.yaml.zst
func ObjectKey(sessionID string, rep *report.Report) string {
	return fmt.Sprintf("%s/%s/%s-%s%s", reportPrefix, rep.Start, sessionID, uuid.NewString(), reportSuffix)
}

// Export renders rep, uploads it, and records the upload.
func (e *Exporter) Export(ctx context.Context, sessionID string, rep *report.Report) (*model.ReportExport, error) {
	data, err := rep.YAML()
	if err != nil {
		return nil, err
	}

	key := ObjectKey(sessionID, rep)
	size, err := e.bucket.PutReport(ctx, key, data, map[string]string{
		metaSession:     sessionID,
		metaWindowStart: rep.Start,
		metaWindowEnd:   rep.End,
		metaIssueCount:  strconv.Itoa(rep.Totals.Issues),
		metaGeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		metaTrackers:    strings.Join(rep.Trackers(), ","),
	})
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}

	rec := &model.ReportExport{
		SessionID:   sessionID,
		ObjectKey:   key,
		WindowStart: rep.Start,
		WindowEnd:   rep.End,
		IssueCount:  rep.Totals.Issues,
		SizeBytes:   size,
		CreatedAt:   e.clock.Now().UTC(),
	}
	if err := e.store.CreateReportExport(ctx, rec); err != nil {
		return nil, fmt.Errorf("record report export: %w", err)
	}
	e.logger.Info("exported report", "session", sessionID, "key", key, "issues", rec.IssueCount)
	return rec, nil
}

// Run reconciles immediately and then repeats every interval until ctx
// is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	e.SyncOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stopping")
			return
		case <-ticker.C:
			e.SyncOnce(ctx)
		}
	}
}

// SyncOnce records reports that exist in the bucket but not in the
// store, such as those uploaded by another instance or by the CLI.
func (e *Exporter) SyncOnce(ctx context.Context) {
	objects, err := e.bucket.ListReports(ctx, reportPrefix)
	if err != nil {
		e.logger.Error("list reports", "error", err)
		return
	}

	for _, obj := range objects {
		exists, err := e.store.ReportExportExistsByKey(ctx, obj.Key)
		if err != nil {
			e.logger.Error("check report export", "key", obj.Key, "error", err)
			continue
		}
		if exists {
			continue
		}

		meta, err := e.bucket.Metadata(ctx, obj.Key)
		if err != nil {
			e.logger.Error("read report metadata", "key", obj.Key, "error", err)
			continue
		}
		rec := recordFromMetadata(obj, meta)
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = e.clock.Now().UTC()
		}
		if err := e.store.CreateReportExport(ctx, rec); err != nil {
			e.logger.Error("record report export", "key", obj.Key, "error", err)
			continue
		}
		e.logger.Info("recorded report", "key", obj.Key)
	}
}

func recordFromMetadata(obj ObjectInfo, meta map[string]string) *model.ReportExport {
	// S3 lower-cases user metadata keys.
	get := func(k string) string {
		for mk, v := range meta {
			if strings.EqualFold(mk, k) {
				return v
			}
		}
		return ""
	}
	count, _ := strconv.Atoi(get(metaIssueCount))
	created, _ := time.Parse(time.RFC3339, get(metaGeneratedAt))
	return &model.ReportExport{
		SessionID:   get(metaSession),
		ObjectKey:   obj.Key,
		WindowStart: get(metaWindowStart),
		WindowEnd:   get(metaWindowEnd),
		IssueCount:  count,
		SizeBytes:   obj.Size,
		CreatedAt:   created,
	}
}

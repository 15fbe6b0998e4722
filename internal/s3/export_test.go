package s3

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/issue-calendar/internal/calendar"
	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/report"
)

type fakeBucket struct {
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (b *fakeBucket) PutReport(_ context.Context, key string, data []byte, meta map[string]string) (int64, error) {
	compressed, err := compress(data)
	if err != nil {
		return 0, err
	}
	b.objects[key] = compressed
	b.meta[key] = meta
	return int64(len(compressed)), nil
}

func (b *fakeBucket) ListReports(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (b *fakeBucket) Metadata(_ context.Context, key string) (map[string]string, error) {
	return b.meta[key], nil
}

type fakeStore struct {
	records []model.ReportExport
}

func (s *fakeStore) CreateReportExport(_ context.Context, e *model.ReportExport) error {
	e.ID = int64(len(s.records) + 1)
	s.records = append(s.records, *e)
	return nil
}

func (s *fakeStore) ReportExportExistsByKey(_ context.Context, key string) (bool, error) {
	for _, r := range s.records {
		if r.ObjectKey == key {
			return true, nil
		}
	}
	return false, nil
}

func testReport(t *testing.T) *report.Report {
	t.Helper()
	created, err := model.ParseDay("2024-05-08")
	require.NoError(t, err)
	issues := []model.Issue{
		{ID: 1, Subject: "Printer offline", CreatedAt: created, TrackerName: "Support"},
		{ID: 2, Subject: "Scanner jam", CreatedAt: created.AddDate(0, 0, 1), TrackerName: "Defect"},
	}
	return report.Build(calendar.WeekOf(created), issues, time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
}

func TestCompressRoundTrip(t *testing.T) {
	in := bytes.Repeat([]byte("start: 2024-05-06\n"), 100)
	compressed, err := compress(in)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(in))

	out, err := decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestExport(t *testing.T) {
	bucket := newFakeBucket()
	store := &fakeStore{}
	clk := clock.Fake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	exp := NewExporter(bucket, store, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec, err := exp.Export(context.Background(), "sess-1", testReport(t))
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.ID)
	assert.True(t, strings.HasPrefix(rec.ObjectKey, "reports/2024-05-06/sess-1-"))
	assert.True(t, strings.HasSuffix(rec.ObjectKey, ".yaml.zst"))
	assert.Equal(t, "2024-05-12", rec.WindowEnd)
	assert.Equal(t, 2, rec.IssueCount)
	assert.Equal(t, clk.Now(), rec.CreatedAt)

	data, err := decompress(bucket.objects[rec.ObjectKey])
	require.NoError(t, err)
	assert.Contains(t, string(data), "subject: Printer offline")
	assert.Equal(t, "2", bucket.meta[rec.ObjectKey][metaIssueCount])
	assert.Equal(t, "Defect,Support", bucket.meta[rec.ObjectKey][metaTrackers])
}

func TestSyncOnceRecordsUnknownReports(t *testing.T) {
	bucket := newFakeBucket()
	store := &fakeStore{}
	clk := clock.Fake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	rec, err := NewExporter(bucket, store, clk, logger).Export(ctx, "sess-1", testReport(t))
	require.NoError(t, err)

	_, err = bucket.PutReport(ctx, "reports/2024-05-06/cli-x.yaml.zst", []byte("start: 2024-05-06\n"), map[string]string{
		"Session":      "cli",
		"Window-Start": "2024-05-06",
		"Window-End":   "2024-05-12",
		"Issue-Count":  "3",
		"Generated-At": "2024-05-09T08:00:00Z",
	})
	require.NoError(t, err)

	exp := NewExporter(bucket, store, clk, logger)
	exp.SyncOnce(ctx)
	exp.SyncOnce(ctx)

	require.Len(t, store.records, 2)
	assert.Equal(t, rec.ObjectKey, store.records[0].ObjectKey)
	added := store.records[1]
	assert.Equal(t, "cli", added.SessionID)
	assert.Equal(t, 3, added.IssueCount)
	assert.Equal(t, time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC), added.CreatedAt)
}

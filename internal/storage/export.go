// Package storage holds the AWS client wiring and the daily analytics
// export to S3.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/notification-agent/internal/delivery"
)

// ObjectPutter is the S3 subset the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AnalyticsSource is the tracker read side.
type AnalyticsSource interface {
	Rates(ctx context.Context, f delivery.CountFilter) ([]delivery.Rates, error)
	Summary(ctx context.Context, f delivery.CountFilter) (delivery.Summary, error)
}

// DailySnapshot is the document written for one UTC day.
type DailySnapshot struct {
	Day         string           `json:"day"`
	GeneratedAt time.Time        `json:"generated_at"`
	Rates       []delivery.Rates `json:"rates"`
	Summary     delivery.Summary `json:"summary"`
}

// Exporter writes daily rate snapshots to S3.
type Exporter struct {
	client ObjectPutter
	source AnalyticsSource
	bucket string
	prefix string
	now    func() time.Time
}

// NewExporter creates an exporter writing under s3://bucket/prefix/.
func NewExporter(client ObjectPutter, source AnalyticsSource, bucket, prefix string) *Exporter {
	return &Exporter{client: client, source: source, bucket: bucket, prefix: prefix, now: time.Now}
}

// Key returns the object key for day: <prefix>/YYYY/MM/DD/rates.json.
func (e *Exporter) Key(day time.Time) string {
	return path.Join(e.prefix, day.UTC().Format("2006/01/02"), "rates.json")
}

// ExportDay writes the snapshot for the UTC day containing day and returns
// the key written. Re-running overwrites the same object.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (string, error) {
	start, end := delivery.DayRange(day)
	filter := delivery.CountFilter{From: start, To: end}

	rates, err := e.source.Rates(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("export rates: %w", err)
	}
	summary, err := e.source.Summary(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("export summary: %w", err)
	}
	if rates == nil {
		rates = []delivery.Rates{}
	}

	data, err := json.MarshalIndent(DailySnapshot{
		Day:         start.Format(delivery.DayFormat),
		GeneratedAt: e.now().UTC(),
		Rates:       rates,
		Summary:     summary,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}

	key := e.Key(start)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to S3: %w", err)
	}
	return key, nil
}

// PreviousDay is the UTC day the daily job exports: yesterday.
func (e *Exporter) PreviousDay() time.Time {
	y, m, d := e.now().UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

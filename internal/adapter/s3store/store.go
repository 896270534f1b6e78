// Package s3store reads raw forecast runs and reference tables from S3 and
// publishes result sets back to it. It is the only code that knows the
// bucket's key layout.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

var (
	// ErrNoRuns means no run directories exist under the queried prefix.
	ErrNoRuns = errors.New("no runs found")
	// ErrNotFound means the requested object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Store is an S3-backed object store for raw inputs and published results.
type Store struct {
	client     *s3.Client
	bucket     string
	rawPrefix  string
	refPrefix  string
	procPrefix string
	logger     *slog.Logger
}

// New builds a Store from configuration. A custom endpoint plus path-style
// addressing points it at MinIO or localstack in development.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		rawPrefix:  cfg.RawPrefix,
		refPrefix:  cfg.RefPrefix,
		procPrefix: cfg.ProcPrefix,
		logger:     logger,
	}, nil
}

// LatestRawRun resolves the most recent raw forecast run id. Run ids are
// UTC timestamps, so lexicographic order is chronological order.
func (s *Store) LatestRawRun(ctx context.Context) (string, error) {
	return s.latestRun(ctx, s.rawPrefix)
}

// LatestPublishedRun resolves the most recent published result-set run id.
func (s *Store) LatestPublishedRun(ctx context.Context) (string, error) {
	return s.latestRun(ctx, s.procPrefix)
}

func (s *Store) latestRun(ctx context.Context, prefix string) (string, error) {
	runs, err := s.listRuns(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w under %s", ErrNoRuns, prefix)
	}
	return runs[len(runs)-1], nil
}

// listRuns returns sorted run ids found as run_dt= directories under prefix.
func (s *Store) listRuns(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var runs []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list runs under %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			if run, ok := runIDFromPrefix(aws.ToString(cp.Prefix)); ok {
				runs = append(runs, run)
			}
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// ListDocuments returns the keys of all raw forecast documents in a run.
func (s *Store) ListDocuments(ctx context.Context, run string) ([]string, error) {
	prefix := s.rawRunPrefix(run)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list documents under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); strings.HasSuffix(key, ".json") {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetDocument fetches one object's bytes.
func (s *Store) GetDocument(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, key)
}

// ReadTracts loads the tract reference table.
func (s *Store) ReadTracts(ctx context.Context) ([]domain.ExposureUnit, error) {
	data, err := s.get(ctx, s.refPrefix+"nri/nri_tracts.parquet")
	if err != nil {
		return nil, err
	}
	return decodeTracts(data)
}

// ReadBook loads the exposure book's insured values keyed by geoid.
func (s *Store) ReadBook(ctx context.Context) (map[string]domain.Sample, error) {
	data, err := s.get(ctx, s.refPrefix+"book/book_exposure.parquet")
	if err != nil {
		return nil, err
	}
	return decodeBook(data)
}

// WriteBook publishes a synthetic exposure book (cmd/makebook).
func (s *Store) WriteBook(ctx context.Context, entries []domain.BookEntry) error {
	var buf bytes.Buffer
	if err := EncodeBook(&buf, entries); err != nil {
		return err
	}
	return s.put(ctx, s.refPrefix+"book/book_exposure.parquet", buf.Bytes(), "application/octet-stream")
}

// GetResult fetches one published result object by run and document name,
// e.g. ("run_dt=...", "top.json") or ("run_dt=...", "timeseries/county_48201.json").
func (s *Store) GetResult(ctx context.Context, run, name string) ([]byte, error) {
	return s.get(ctx, s.procRunPrefix(run)+name)
}

// PublishResultSet writes every result object for a run: the tract-level
// parquet series, the three summary JSON documents, and one time-series
// object per county.
func (s *Store) PublishResultSet(ctx context.Context, rs *domain.ResultSet) error {
	prefix := s.procRunPrefix(rs.Run)

	var buf bytes.Buffer
	if err := EncodeTractSeries(&buf, rs.TractSeries); err != nil {
		return err
	}
	if err := s.put(ctx, prefix+"by_tract.parquet", buf.Bytes(), "application/octet-stream"); err != nil {
		return err
	}

	if err := s.putJSON(ctx, prefix+"bands.json", rs.Bands); err != nil {
		return err
	}
	if err := s.putJSON(ctx, prefix+"top.json", rs.Top); err != nil {
		return err
	}
	if err := s.putJSON(ctx, prefix+"counties.json", rs.Counties); err != nil {
		return err
	}

	for _, cs := range rs.CountySeries {
		key := prefix + "timeseries/county_" + cs.FIPS + ".json"
		if err := s.putJSON(ctx, key, cs); err != nil {
			return err
		}
	}

	s.logger.Info("result set published",
		"run", rs.Run,
		"counties", len(rs.CountySeries),
		"prefix", prefix,
	)
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.put(ctx, key, data, "application/json")
}

func (s *Store) rawRunPrefix(run string) string {
	return s.rawPrefix + "run_dt=" + run + "/"
}

func (s *Store) procRunPrefix(run string) string {
	return s.procPrefix + "run_dt=" + run + "/"
}

// runIDFromPrefix extracts "20250904T231843Z" from a common prefix like
// "raw/owm_forecast/run_dt=20250904T231843Z/".
func runIDFromPrefix(prefix string) (string, bool) {
	_, rest, ok := strings.Cut(prefix, "run_dt=")
	if !ok {
		return "", false
	}
	run := strings.TrimSuffix(rest, "/")
	if run == "" || strings.Contains(run, "/") {
		return "", false
	}
	return run, true
}

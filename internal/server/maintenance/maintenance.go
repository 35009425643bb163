// Package maintenance runs the periodic retention sweeps: expired sessions,
// stale login attempts, old quota consumption receipts, and the audit trail.
// Audit entries are archived to object storage before deletion; everything
// else is simply dropped once its window has passed.
package maintenance

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
)

// archiveBatchSize bounds how many audit rows one archive object holds.
const archiveBatchSize = 1000

// Uploader writes one archive object to durable storage.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// S3Uploader stores archive objects in an S3-compatible bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

func NewS3Uploader(ctx context.Context, cfg *config.Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Uploader{client: client, bucket: cfg.S3Bucket}, nil
}

func (u *S3Uploader) Put(ctx context.Context, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	return err
}

// Service runs the retention sweeps. It is invoked as a one-shot job; each
// sweep is independent, so one failing does not stop the others.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	uploader    Uploader
	logger      logging.Logger
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, cfg *config.Config,
	uploader Uploader, logger logging.Logger) *Service {
	return &Service{
		db:          db,
		repomanager: rm,
		config:      cfg,
		uploader:    uploader,
		logger:      logger,
	}
}

// Run executes every sweep once and reports the first error after all have
// been attempted.
func (s *Service) Run(ctx context.Context) error {
	var firstErr error

	record := func(name string, err error) {
		if err != nil {
			s.logger.Error(ctx, "retention sweep failed", "sweep", name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	record("sessions", s.sweepSessions(ctx))
	record("attempts", s.sweepAttempts(ctx))
	record("consumptions", s.sweepConsumptions(ctx))
	record("audit", s.archiveAudit(ctx))

	return firstErr
}

func (s *Service) sweepSessions(ctx context.Context) error {
	count, err := s.repomanager.Sessions(s.db).DeleteExpiredOlderThan(ctx, s.config.SessionRetentionDays)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "expired sessions deleted", "count", count,
		"older_than_days", s.config.SessionRetentionDays)
	return nil
}

func (s *Service) sweepAttempts(ctx context.Context) error {
	count, err := s.repomanager.Attempts(s.db).DeleteOlderThan(ctx, s.config.AttemptRetentionDays)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "stale login attempts deleted", "count", count,
		"older_than_days", s.config.AttemptRetentionDays)
	return nil
}

func (s *Service) sweepConsumptions(ctx context.Context) error {
	count, err := s.repomanager.Quotas(s.db).DeleteConsumptionsOlderThan(ctx, s.config.ConsumptionRetentionDays)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "quota consumption receipts deleted", "count", count,
		"older_than_days", s.config.ConsumptionRetentionDays)
	return nil
}

// archiveAudit copies audit rows past the retention window to object storage
// as newline-delimited JSON, then deletes them. Rows are only deleted after
// their batch has been uploaded; a failed upload leaves everything in place
// for the next run.
func (s *Service) archiveAudit(ctx context.Context) error {
	repo := s.repomanager.Audit(s.db)
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.AuditRetentionDays)

	var archived int64
	for {
		entries, err := repo.ListOlderThan(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("listing audit entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		body, err := encodeArchive(entries)
		if err != nil {
			return fmt.Errorf("encoding archive: %w", err)
		}
		key, err := archiveKey(cutoff)
		if err != nil {
			return fmt.Errorf("naming archive: %w", err)
		}
		if err := s.uploader.Put(ctx, key, body); err != nil {
			return fmt.Errorf("uploading archive %s: %w", key, err)
		}

		// Delete exactly the batch just uploaded. The oldest entry in the
		// next listing is strictly newer than the last one removed here.
		batchCutoff := entries[len(entries)-1].CreatedAt.Add(time.Millisecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		deleted, err := repo.DeleteOlderThan(ctx, batchCutoff)
		if err != nil {
			return fmt.Errorf("deleting archived entries: %w", err)
		}
		archived += deleted

		if len(entries) < archiveBatchSize {
			break
		}
	}

	s.logger.Info(ctx, "audit entries archived", "count", archived,
		"older_than_days", s.config.AuditRetentionDays)
	return nil
}

func encodeArchive(entries []*models.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func archiveKey(cutoff time.Time) (string, error) {
	suffix, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("audit/%s/%s.ndjson", cutoff.Format("2006/01/02"), suffix), nil
}

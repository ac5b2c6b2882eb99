/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/charmbracelet/log"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/document"
	"github.com/suparena/docstore/storagemodels"
)

var _ datastore.Source = (*Source)(nil)

var itemsRead = metrics.NewCounter(`docstore_source_items_total{source="dynamodb"}`)

// ClientConfig holds the connection settings of NewDynamoDBClient.
type ClientConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the service endpoint, e.g. http://localhost:8000
	// for DynamoDB Local.
	Endpoint string
}

// NewDynamoDBClient initializes a DynamoDB client. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain applies.
func NewDynamoDBClient(ctx context.Context, cfg ClientConfig) (*sdk.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Source reads every item of a DynamoDB table with a paginated Scan.
type Source struct {
	client      sdk.ScanAPIClient
	tableName   string
	idAttribute string
	options     storagemodels.StreamOptions
	logger      *log.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDAttribute maps the named item attribute to the record _id.
func WithIDAttribute(name string) Option {
	return func(s *Source) {
		s.idAttribute = name
	}
}

// WithStreamOptions sets paging, retry and progress behaviour.
func WithStreamOptions(opts ...storagemodels.StreamOption) Option {
	return func(s *Source) {
		for _, opt := range opts {
			opt(&s.options)
		}
	}
}

// NewSource creates a Source scanning tableName.
func NewSource(client sdk.ScanAPIClient, tableName string, opts ...Option) *Source {
	s := &Source{
		client:    client,
		tableName: tableName,
		options:   storagemodels.DefaultStreamOptions(),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Documents scans the table and converts each item into a record.
func (s *Source) Documents(ctx context.Context) ([]*document.Document, error) {
	progress := storagemodels.StreamProgress{StartTime: time.Now()}
	reportProgress := func() {
		if s.options.ProgressHandler != nil {
			progress.CurrentRate = progress.Rate(time.Now())
			s.options.ProgressHandler(progress)
		}
	}

	input := &sdk.ScanInput{
		TableName: aws.String(s.tableName),
		Limit:     aws.Int32(s.options.PageSize),
	}

	var docs []*document.Document
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := s.scanWithRetry(ctx, input)
		if err != nil {
			return nil, err
		}
		progress.PagesRead++

		var items []map[string]any
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page %d: %w", progress.PagesRead, err)
		}
		for i, item := range items {
			d, err := s.toDocument(item)
			if err != nil {
				err = fmt.Errorf("item %d of page %d: %w", i, progress.PagesRead, err)
				if s.options.ErrorHandler == nil || !s.options.ErrorHandler(err) {
					return nil, err
				}
				progress.Errors = append(progress.Errors, err)
				continue
			}
			docs = append(docs, d)
			progress.ItemsRead++
			itemsRead.Inc()
			if s.options.MaxItems > 0 && len(docs) >= s.options.MaxItems {
				reportProgress()
				return docs, nil
			}
		}

		// Report progress after each page
		reportProgress()

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	s.logger.Debug("table scanned", "table", s.tableName, "items", progress.ItemsRead, "pages", progress.PagesRead)
	return docs, nil
}

func (s *Source) toDocument(item map[string]any) (*document.Document, error) {
	if s.idAttribute != "" && s.idAttribute != document.IDField {
		if v, ok := item[s.idAttribute]; ok {
			item[document.IDField] = v
			delete(item, s.idAttribute)
		}
	}
	return document.FromMap(item)
}

// scanWithRetry executes one Scan page with linear backoff on retryable errors
func (s *Source) scanWithRetry(ctx context.Context, input *sdk.ScanInput) (*sdk.ScanOutput, error) {
	var lastErr error

	for attempt := 0; attempt <= s.options.MaxRetries; attempt++ {
		out, err := s.client.Scan(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, fmt.Errorf("scan %s failed: %w", s.tableName, err)
		}
		s.logger.Warn("scan throttled, retrying", "table", s.tableName, "attempt", attempt+1, "err", err)

		// Don't sleep after last attempt
		if attempt < s.options.MaxRetries {
			backoff := time.Duration(attempt+1) * s.options.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("scan %s failed after %d retries: %w", s.tableName, s.options.MaxRetries, lastErr)
}

// isRetryableError determines if a DynamoDB error is retryable
func isRetryableError(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	var internal *types.InternalServerError
	if errors.As(err, &throughput) || errors.As(err, &limit) || errors.As(err, &internal) {
		return true
	}

	// Check for AWS SDK retryable errors
	var retryable interface{ IsRetryable() bool }
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"r2r/internal/core"
	"r2r/internal/gateway"
	applog "r2r/internal/log"
	"r2r/internal/receipts"
	"r2r/internal/store"
)

// extractConcurrency bounds parallel model calls within one ingest.
const extractConcurrency = 4

// JobRunLease is how long a running job's claim holds before another
// runner may take the job over. It outlasts the longest gateway timeout.
const JobRunLease = 15 * time.Minute

// Extractor turns raw text or a receipt image into transaction records.
// Failures yield an empty list.
type Extractor interface {
	Extract(ctx context.Context, req gateway.ExtractRequest) []gateway.Extracted
}

// JobPublisher announces a persisted ingest job to the worker queue.
type JobPublisher interface {
	PublishIngestJob(ctx context.Context, jobID, userID string) error
}

// IngestStore is the slice of the record store ingest needs.
type IngestStore interface {
	store.TransactionStore
	store.UserStore
	store.JobStore
}

type IngestRequest struct {
	UserID     string
	SourceType core.SourceType
	RawText    string
	Images     []gateway.Image
}

func (r IngestRequest) empty() bool {
	return strings.TrimSpace(r.RawText) == "" && len(r.Images) == 0
}

// SubmitResult carries either the transactions of an inline ingest or the
// pending job of a queued one.
type SubmitResult struct {
	Transactions []core.Transaction `json:"transactions,omitempty"`
	Job          *core.IngestJob    `json:"job,omitempty"`
}

type IngestService struct {
	store     IngestStore
	extractor Extractor
	receipts  receipts.Store
	publisher JobPublisher
	locks     *keyedMutex
	onChange  ChangeHook
	logger    *applog.StructuredLogger
	now       func() time.Time
}

// NewIngestService wires ingest. archive and publisher may be nil: without
// an archive images are not kept, without a publisher Submit runs inline.
func NewIngestService(st IngestStore, extractor Extractor, archive receipts.Store, publisher JobPublisher) *IngestService {
	return &IngestService{
		store:     st,
		extractor: extractor,
		receipts:  archive,
		publisher: publisher,
		locks:     newKeyedMutex(),
		logger:    applog.NewStructuredLogger(applog.New(applog.Config{Component: applog.ComponentIngest, Handler: slog.Default().Handler()})),
		now:       time.Now,
	}
}

// OnChange registers a hook run after transactions are appended.
func (s *IngestService) OnChange(hook ChangeHook) {
	s.onChange = hook
}

// Ingest extracts, normalizes and appends transactions in one batch.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) ([]core.Transaction, error) {
	if req.empty() {
		return nil, core.ErrEmptyPayload
	}
	if s.receipts != nil {
		// Inline ingest keeps the images for later reference only.
		if _, err := s.archive(ctx, req); err != nil {
			slog.WarnContext(ctx, "Failed to archive receipt images", "user_id", req.UserID, "error", err)
		}
	}
	return s.ingest(ctx, req)
}

// Submit queues the request when a publisher is configured and ingests
// inline otherwise.
func (s *IngestService) Submit(ctx context.Context, req IngestRequest) (SubmitResult, error) {
	if req.empty() {
		return SubmitResult{}, core.ErrEmptyPayload
	}
	if s.publisher == nil {
		txs, err := s.Ingest(ctx, req)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Transactions: txs}, nil
	}
	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return SubmitResult{}, fmt.Errorf("load user: %w", err)
	}
	if s.receipts == nil && len(req.Images) > 0 {
		return SubmitResult{}, errors.New("queue ingest: no receipt archive configured for images")
	}

	refs, err := s.archive(ctx, req)
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.now().UTC()
	job := core.IngestJob{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SourceType: sourceOrManual(req.SourceType),
		RawText:    req.RawText,
		Receipts:   refs,
		Status:     core.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return SubmitResult{}, fmt.Errorf("save ingest job: %w", err)
	}

	// The job is durable; a lost message is picked up by the worker's pending scan.
	if err := s.publisher.PublishIngestJob(ctx, job.ID, job.UserID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ingest job", "job_id", job.ID, "error", err)
	}

	return SubmitResult{Job: &job}, nil
}

// Job returns the job if it belongs to userID.
func (s *IngestService) Job(ctx context.Context, userID, jobID string) (core.IngestJob, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return core.IngestJob{}, err
	}
	if j.UserID != userID {
		return core.IngestJob{}, fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	return j, nil
}

// RunJob processes a queued job. Terminal jobs are returned unchanged. The
// job is claimed before it runs: a job another runner holds is returned
// as is, unless its claim is older than JobRunLease. A failed attempt is
// recorded on the job, which goes back to pending.
func (s *IngestService) RunJob(ctx context.Context, jobID string) (core.IngestJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return core.IngestJob{}, fmt.Errorf("load ingest job: %w", err)
	}
	if job.Done() {
		return job, nil
	}
	now := s.now().UTC()
	if job.Status == core.JobRunning && now.Sub(job.UpdatedAt) < JobRunLease {
		return job, nil
	}
	claimed, err := s.store.ClaimJob(ctx, job, now)
	if err != nil {
		return job, fmt.Errorf("claim ingest job: %w", err)
	}
	if !claimed {
		current, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return job, fmt.Errorf("load ingest job: %w", err)
		}
		return current, nil
	}
	job.Status = core.JobRunning
	job.Attempts++
	job.UpdatedAt = now

	txs, runErr := s.runJob(ctx, job)
	job.UpdatedAt = s.now().UTC()
	if runErr != nil {
		job.Status = core.JobPending
		job.Error = runErr.Error()
	} else {
		job.Status = core.JobCompleted
		job.Extracted = len(txs)
		job.Error = ""
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return job, errors.Join(runErr, fmt.Errorf("save ingest job: %w", err))
	}
	return job, runErr
}

// FailJob marks a job as failed for good.
func (s *IngestService) FailJob(ctx context.Context, jobID, reason string) (core.IngestJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return core.IngestJob{}, fmt.Errorf("load ingest job: %w", err)
	}
	if job.Done() {
		return job, nil
	}
	job.Status = core.JobFailed
	job.Error = reason
	job.UpdatedAt = s.now().UTC()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return job, fmt.Errorf("save ingest job: %w", err)
	}
	return job, nil
}

// PendingJobs lists queued jobs that have not finished (pending or running),
// oldest first.
func (s *IngestService) PendingJobs(ctx context.Context, limit int) ([]core.IngestJob, error) {
	return s.store.ListPendingJobs(ctx, limit)
}

func (s *IngestService) runJob(ctx context.Context, job core.IngestJob) ([]core.Transaction, error) {
	req := IngestRequest{UserID: job.UserID, SourceType: job.SourceType, RawText: job.RawText}
	for _, ref := range job.Receipts {
		if s.receipts == nil {
			return nil, errors.New("no receipt archive configured")
		}
		data, err := s.receipts.Get(ctx, ref.URI)
		if err != nil {
			return nil, fmt.Errorf("fetch receipt %s: %w", ref.URI, err)
		}
		req.Images = append(req.Images, gateway.Image{MIMEType: ref.MIMEType, Data: data})
	}
	if req.empty() {
		return []core.Transaction{}, nil
	}
	return s.ingest(ctx, req)
}

func (s *IngestService) archive(ctx context.Context, req IngestRequest) ([]core.ReceiptRef, error) {
	refs := make([]core.ReceiptRef, 0, len(req.Images))
	for _, img := range req.Images {
		uri, err := s.receipts.Put(ctx, req.UserID, img.MIMEType, img.Data)
		if err != nil {
			return nil, fmt.Errorf("archive receipt: %w", err)
		}
		refs = append(refs, core.ReceiptRef{URI: uri, MIMEType: img.MIMEType})
	}
	return refs, nil
}

func (s *IngestService) ingest(ctx context.Context, req IngestRequest) ([]core.Transaction, error) {
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	textSource := sourceOrManual(req.SourceType)

	type call struct {
		req    gateway.ExtractRequest
		source core.SourceType
		raw    string
	}
	var calls []call
	if strings.TrimSpace(req.RawText) != "" {
		calls = append(calls, call{
			req:    gateway.ExtractRequest{Text: req.RawText, SourceType: textSource, Categories: core.Categories},
			source: textSource,
			raw:    req.RawText,
		})
	}
	for i := range req.Images {
		calls = append(calls, call{
			req:    gateway.ExtractRequest{Image: &req.Images[i], SourceType: core.SourceReceiptImage, Categories: core.Categories},
			source: core.SourceReceiptImage,
		})
	}

	results := make([][]gateway.Extracted, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	for i, c := range calls {
		g.Go(func() error {
			results[i] = s.extractor.Extract(gctx, c.req)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	txs := []core.Transaction{}
	dropped := 0
	for i, c := range calls {
		for _, e := range results[i] {
			tx, ok := normalize(e, user, c.source, c.raw, now)
			if !ok {
				dropped++
				continue
			}
			txs = append(txs, tx)
		}
	}
	if dropped > 0 {
		slog.WarnContext(ctx, "Dropped invalid extracted records", "user_id", user.ID, "count", dropped)
	}
	if len(txs) == 0 {
		return txs, nil
	}

	unlock := s.locks.Lock(user.ID)
	err = s.store.AppendTransactions(ctx, txs)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("append transactions: %w", err)
	}

	s.logger.LogTransactionsIngested(ctx, user.ID, user.HouseholdID, string(textSource), len(txs))
	if s.onChange != nil {
		s.onChange(user.ID, user.HouseholdID)
	}
	return txs, nil
}

// normalize maps an extracted record onto a transaction stamped with the
// submitting user and their current household. Unusable records are dropped.
func normalize(e gateway.Extracted, user core.User, source core.SourceType, raw string, now time.Time) (core.Transaction, bool) {
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" {
		currency = core.DefaultCurrency
	}
	tx := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		HouseholdID: user.HouseholdID,
		Datetime:    parseExtractedTime(e.Datetime, now),
		Merchant:    strings.TrimSpace(e.Merchant),
		Amount:      e.Amount.Round(core.AmountPlaces),
		Currency:    currency,
		Category:    core.NormalizeCategory(e.Category),
		SourceType:  source,
		RawText:     raw,
		IsBusiness:  e.IsBusiness,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, false
	}
	return tx, true
}

var extractedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	core.DayLayout,
}

// parseExtractedTime accepts the date shapes the model returns and falls
// back to the ingest time.
func parseExtractedTime(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range extractedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return now
}

func sourceOrManual(st core.SourceType) core.SourceType {
	if st == "" {
		return core.SourceManual
	}
	return st
}

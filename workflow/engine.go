// Package workflow owns the certification request lifecycle: request, approve
// with token issuance, reject, and the read paths that reconcile local records
// with the ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/metrics"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
	"github.com/foodtrust/foodtrust_backend/utils"
)

// Ledger is the part of *ledger.Gateway the engine drives.
type Ledger interface {
	ProvisionAccount(ctx context.Context) (*ledger.ProvisionedAccount, error)
	PrepareIssuance(ctx context.Context, destination string, certType models.CertificationType, meta ledger.IssueMetadata) (*ledger.PreparedIssuance, error)
	Submit(ctx context.Context, p *ledger.PreparedIssuance) (*ledger.IssueResult, error)
	FindTransaction(ctx context.Context, hash string) (*ledger.TxSummary, error)
	ListCertifications(ctx context.Context, address string) ([]ledger.CertificationBalance, error)
	ListCertificationTransactions(ctx context.Context, address string, limit int) ([]ledger.TxSummary, error)
	EstablishTrustline(ctx context.Context, holderSecret string, assetCode string) (*ledger.TrustlineResult, error)
	ValidateAddress(address string) bool
}

type Engine struct {
	store   store.Store
	ledger  Ledger
	locks   Locker
	logger  *logrus.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s store.Store, l Ledger, locks Locker, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		ledger: l,
		locks:  locks,
		logger: config.GetLogger(),
		tracer: otel.Tracer("github.com/foodtrust/foodtrust_backend/workflow"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApprovalResult is returned by a successful approve.
type ApprovalResult struct {
	Certification   *models.Certification `json:"certification"`
	TransactionHash string                `json:"transaction_hash"`
	AssetCode       string                `json:"asset_code"`
	IssuedAt        time.Time             `json:"issued_at"`
	ExpiresAt       time.Time             `json:"expires_at"`
}

func (e *Engine) log(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok && id != "" {
		fields["correlation_id"] = id
	}
	if id, ok := utils.GetUserIdFromContext(ctx); ok && id != "" {
		fields["user_id"] = id
	}
	fields["module"] = "workflow"
	return e.logger.WithFields(fields)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// Request opens a PENDING certification request. At most one PENDING request
// exists per restaurant and type.
func (e *Engine) Request(ctx context.Context, input models.NewCertificationRequest) (cert *models.Certification, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Request")
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	span.SetAttributes(
		attribute.String("restaurant_id", input.RestaurantId),
		attribute.String("certification_type", string(input.CertificationType)),
	)
	log := e.log(ctx, logrus.Fields{"restaurant_id": input.RestaurantId, "certification_type": input.CertificationType})

	err = e.locks.WithLock(ctx, requestLockKey(input.RestaurantId, string(input.CertificationType)), func(ctx context.Context) error {
		// read under the lock DeleteRestaurant also takes
		if _, err := e.getRestaurant(ctx, input.RestaurantId); err != nil {
			return err
		}
		pending, err := e.store.ListCertifications(ctx, store.CertificationFilter{
			RestaurantId: input.RestaurantId,
			Status:       models.CertificationStatusPending,
		})
		if err != nil {
			return err
		}
		if IsDuplicatePending(pending, input.RestaurantId, input.CertificationType) {
			return ErrDuplicatePending
		}

		key := models.PendingKeyFor(input.RestaurantId, input.CertificationType)
		c := &models.Certification{
			ID:                uuid.NewString(),
			RestaurantId:      input.RestaurantId,
			CertificationType: input.CertificationType,
			Products:          models.StringList(input.Products),
			Notes:             input.Notes,
			Status:            models.CertificationStatusPending,
			PendingKey:        &key,
		}
		if err := e.store.CreateCertification(ctx, c); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// another instance won without sharing our lock backend
				return ErrDuplicatePending
			}
			return err
		}
		cert = c
		return nil
	})
	if err != nil {
		if Classify(err) == CategoryInternal {
			config.LogError(e.logger, "workflow", "Request", "create certification", input, err)
		}
		return nil, err
	}

	e.metrics.IncRequest(string(cert.CertificationType))
	log.WithField("certification_id", cert.ID).Info("certification requested")
	return cert, nil
}

// Approve issues the certification token to the restaurant and records the
// decision. The certification lock is held across the ledger submission, so
// concurrent approvals of one request submit at most one payment.
func (e *Engine) Approve(ctx context.Context, certificationId string, auditorId string) (result *ApprovalResult, err error) {
	start := time.Now()
	defer e.metrics.ObserveApprove(start)
	ctx, span := e.tracer.Start(ctx, "workflow.Approve", trace.WithAttributes(
		attribute.String("certification_id", certificationId),
		attribute.String("auditor_id", auditorId),
	))
	defer func() { endSpan(span, err) }()

	log := e.log(ctx, logrus.Fields{"certification_id": certificationId, "auditor_id": auditorId})
	err = e.locks.WithLock(ctx, certificationLockKey(certificationId), func(ctx context.Context) error {
		r, err := e.approveLocked(ctx, log, certificationId, auditorId)
		result = r
		return err
	})
	if err != nil {
		entry := log.WithField("category", Classify(err).String())
		if Classify(err) == CategoryUpstreamFailure || Classify(err) == CategoryInternal {
			entry.WithField("retryable", Retryable(err)).Error("approve failed: " + err.Error())
		} else {
			entry.Info("approve refused: " + err.Error())
		}
		return nil, err
	}
	log.WithFields(logrus.Fields{"tx_hash": result.TransactionHash, "asset_code": result.AssetCode}).Info("certification approved")
	return result, nil
}

func (e *Engine) approveLocked(ctx context.Context, log *logrus.Entry, certificationId, auditorId string) (*ApprovalResult, error) {
	cert, err := e.store.GetCertification(ctx, certificationId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if cert.Status.IsTerminal() {
		return nil, ErrNotPending
	}

	auditor, err := e.store.GetAuditor(ctx, auditorId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuditorNotFound
		}
		return nil, err
	}
	if err := CheckDecider(auditor, cert.CertificationType); err != nil {
		return nil, err
	}

	restaurant, err := e.store.GetRestaurant(ctx, cert.RestaurantId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}

	attempt, err := e.store.GetIssuanceAttempt(ctx, cert.ID)
	if err != nil {
		return nil, err
	}
	if attempt != nil && attempt.Status == models.IssuanceStatusStarted {
		recovered, err := e.resolveAttempt(ctx, log, cert, attempt)
		if err != nil || recovered != nil {
			return recovered, err
		}
	}
	return e.issue(ctx, log, cert, auditor, restaurant)
}

// Reject records a REJECTED decision. The ledger is not involved.
func (e *Engine) Reject(ctx context.Context, certificationId string, auditorId string, reason string) (cert *models.Certification, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Reject", trace.WithAttributes(
		attribute.String("certification_id", certificationId),
		attribute.String("auditor_id", auditorId),
	))
	defer func() { endSpan(span, err) }()
	log := e.log(ctx, logrus.Fields{"certification_id": certificationId, "auditor_id": auditorId})

	err = e.locks.WithLock(ctx, certificationLockKey(certificationId), func(ctx context.Context) error {
		current, err := e.store.GetCertification(ctx, certificationId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if current.Status.IsTerminal() {
			return ErrNotPending
		}
		if _, err := e.store.GetAuditor(ctx, auditorId); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAuditorNotFound
			}
			return err
		}

		cert, err = e.store.RejectCertification(ctx, store.Rejection{
			CertificationId: certificationId,
			AuditorId:       auditorId,
			Notes:           "Rejected: " + strings.TrimSpace(reason),
			DecidedAt:       e.now().UTC(),
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrNotPending
		}
		return err
	})
	if err != nil {
		log.WithField("category", Classify(err).String()).Info("reject refused: " + err.Error())
		return nil, err
	}
	e.metrics.IncDecision("rejected", string(cert.CertificationType))
	log.Info("certification rejected")
	return cert, nil
}

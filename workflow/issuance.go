package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
)

// RecoveryResult describes what CheckIssuance found for one certification.
type RecoveryResult struct {
	CertificationId string                  `json:"certification_id"`
	Status          models.IssuanceStatus   `json:"status"`
	TransactionHash string                  `json:"transaction_hash,omitempty"`
	Certification   *models.Certification   `json:"certification,omitempty"`
	Attempt         *models.IssuanceAttempt `json:"attempt,omitempty"`
}

// issue prepares the payment, records the attempt, then submits it. The
// attempt is written before submission so a crash or an ambiguous reply
// leaves a hash to look up on the next approve.
func (e *Engine) issue(ctx context.Context, log *logrus.Entry, cert *models.Certification, auditor *models.Auditor, restaurant *models.Restaurant) (*ApprovalResult, error) {
	issuedAt := e.now().UTC().Truncate(time.Second)
	prepared, err := e.ledger.PrepareIssuance(ctx, restaurant.LedgerAddress, cert.CertificationType, ledger.IssueMetadata{
		RestaurantId: restaurant.ID,
		AuditorId:    auditor.ID,
		IssuedAt:     issuedAt,
	})
	if err != nil {
		e.metrics.IncIssuance("failed")
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	attempt := &models.IssuanceAttempt{
		CertificationId: cert.ID,
		AuditorId:       auditor.ID,
		Status:          models.IssuanceStatusStarted,
		TransactionHash: prepared.Hash,
		AssetCode:       prepared.AssetCode,
		IssuedAt:        issuedAt,
		ValidUntil:      prepared.ValidUntil,
	}
	if err := e.store.PutIssuanceAttempt(ctx, attempt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// another holder opened an attempt; ours was never submitted
			e.metrics.IncRecovery("in_progress")
			return nil, ErrIssuanceInProgress
		}
		return nil, fmt.Errorf("record issuance attempt: %w", err)
	}
	log = log.WithField("tx_hash", prepared.Hash)

	res, err := e.ledger.Submit(ctx, prepared)
	if err != nil {
		if ledger.KindOf(err) == ledger.KindOutcomeUnknown {
			e.metrics.IncIssuance("unknown")
			log.WithField("valid_until", prepared.ValidUntil).Warn("issuance outcome unknown, attempt left open: " + err.Error())
			return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
		}
		e.metrics.IncIssuance("failed")
		if merr := e.store.MarkIssuanceFailed(context.WithoutCancel(ctx), cert.ID, err.Error()); merr != nil {
			log.Error("mark issuance failed: " + merr.Error())
		}
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}
	e.metrics.IncIssuance("issued")

	// The token is on the ledger now; record it even if the caller went away.
	return e.finalize(context.WithoutCancel(ctx), cert, auditor.ID, issuedAt, res.TransactionHash, res.AssetCode)
}

// resolveAttempt settles a STARTED attempt left by an earlier approve. It
// returns a result when the earlier payment was applied, nil when a fresh
// issuance may proceed, and ErrIssuanceInProgress when neither is known yet.
func (e *Engine) resolveAttempt(ctx context.Context, log *logrus.Entry, cert *models.Certification, attempt *models.IssuanceAttempt) (*ApprovalResult, error) {
	log = log.WithFields(logrus.Fields{"tx_hash": attempt.TransactionHash, "valid_until": attempt.ValidUntil})
	tx, err := e.ledger.FindTransaction(ctx, attempt.TransactionHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	switch {
	case tx != nil && tx.Successful:
		e.metrics.IncRecovery("finalized")
		log.Info("earlier issuance found on ledger, finalizing")
		return e.finalize(context.WithoutCancel(ctx), cert, attempt.AuditorId, attempt.IssuedAt, attempt.TransactionHash, attempt.AssetCode)
	case tx != nil:
		e.metrics.IncRecovery("failed")
		log.Warn("earlier issuance failed on ledger, issuing again")
		return nil, e.store.MarkIssuanceFailed(ctx, cert.ID, "transaction failed on ledger")
	case e.now().After(attempt.ValidUntil):
		e.metrics.IncRecovery("expired")
		log.Warn("earlier issuance expired unapplied, issuing again")
		return nil, e.store.MarkIssuanceFailed(ctx, cert.ID, "transaction expired before it was applied")
	default:
		e.metrics.IncRecovery("in_progress")
		return nil, ErrIssuanceInProgress
	}
}

func (e *Engine) finalize(ctx context.Context, cert *models.Certification, auditorId string, issuedAt time.Time, hash, assetCode string) (*ApprovalResult, error) {
	expiresAt := issuedAt.Add(models.CertificationValidity)
	updated, err := e.store.FinalizeApproval(ctx, store.Approval{
		CertificationId: cert.ID,
		AuditorId:       auditorId,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		TransactionHash: hash,
		AssetCode:       assetCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return nil, ErrNotPending
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrAuditorNotFound
		}
		return nil, fmt.Errorf("finalize approval: %w", err)
	}
	e.metrics.IncDecision("approved", string(updated.CertificationType))
	return &ApprovalResult{
		Certification:   updated,
		TransactionHash: hash,
		AssetCode:       assetCode,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
	}, nil
}

// CheckIssuance runs the recovery check for one certification without
// starting a new issuance. Operators use it after a crash or a timed out approve.
func (e *Engine) CheckIssuance(ctx context.Context, certificationId string) (result *RecoveryResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.CheckIssuance")
	defer func() { endSpan(span, err) }()
	log := e.log(ctx, logrus.Fields{"certification_id": certificationId})

	err = e.locks.WithLock(ctx, certificationLockKey(certificationId), func(ctx context.Context) error {
		cert, err := e.store.GetCertification(ctx, certificationId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		attempt, err := e.store.GetIssuanceAttempt(ctx, certificationId)
		if err != nil {
			return err
		}
		if attempt == nil {
			result = &RecoveryResult{CertificationId: certificationId, Certification: cert}
			return nil
		}
		if attempt.Status == models.IssuanceStatusStarted && cert.Status == models.CertificationStatusPending {
			approved, err := e.resolveAttempt(ctx, log, cert, attempt)
			if err != nil && !errors.Is(err, ErrIssuanceInProgress) {
				return err
			}
			if approved != nil {
				cert = approved.Certification
			}
			if attempt, err = e.store.GetIssuanceAttempt(ctx, certificationId); err != nil {
				return err
			}
		}
		result = &RecoveryResult{
			CertificationId: certificationId,
			Status:          attempt.Status,
			TransactionHash: attempt.TransactionHash,
			Certification:   cert,
			Attempt:         attempt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

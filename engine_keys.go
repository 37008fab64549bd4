package tokenguard

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/keyring"
)

// KeySet is the signing-key discovery document for out-of-process verifiers.
type KeySet = keyring.KeySet

// CheckAndRotateKeys rotates the signing key if the schedule is due and
// reports whether this call performed the rotation. It is safe to run from
// any number of schedulers concurrently; at most one wins per interval.
func (e *Engine) CheckAndRotateKeys(ctx context.Context) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	rotated, err := e.keys.CheckAndRotate(ctx)
	if err != nil {
		if errors.Is(err, keyring.ErrRotationDisabled) {
			return false, ErrKeyRotationDisabled
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rotated {
		e.noteKeyRotation(ctx, "scheduled")
	}
	return rotated, nil
}

// ForceKeyRotation rotates the signing key immediately, regardless of
// schedule. Intended for compromise response.
func (e *Engine) ForceKeyRotation(ctx context.Context) error {
	if err := e.guard(); err != nil {
		return err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if err := e.keys.ForceRotate(ctx); err != nil {
		if errors.Is(err, keyring.ErrRotationDisabled) {
			return ErrKeyRotationDisabled
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.noteKeyRotation(ctx, "forced")
	return nil
}

// VerificationKeySet publishes the active key identifiers so external
// verifiers can cache keys without guessing rotation timing.
func (e *Engine) VerificationKeySet(ctx context.Context) (KeySet, error) {
	if err := e.guard(); err != nil {
		return KeySet{}, err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	set, err := e.keys.KeySet(ctx)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return set, nil
}

func (e *Engine) noteKeyRotation(ctx context.Context, trigger string) {
	e.metrics.Inc(MetricKeyRotation)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventKeyRotation,
		Severity:  internalaudit.SeverityInfo,
		Success:   true,
		Metadata: map[string]string{
			"trigger": trigger,
		},
	})
}

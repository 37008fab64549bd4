package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenguard/internal/stores"
)

// RotateFailureKind tags why a refresh rotation was refused.
type RotateFailureKind uint8

const (
	RotateOK RotateFailureKind = iota
	RotateFailureUnknown
	RotateFailureExpired
	RotateFailureReuse
	RotateFailureRevoked
	RotateFailureStore
)

// RotateDeps are the operations rotation needs.
type RotateDeps struct {
	NewRefreshToken func() string
	Consume         func(ctx context.Context, token, replacedBy string) (*stores.RefreshRecord, error)
	RevokeFamily    func(ctx context.Context, familyID string) (int, error)
}

// RotateResult reports one rotation attempt. On RotateOK, NextToken is the
// successor refresh token and Record is the consumed predecessor, whose
// UserID, FamilyID and SessionID the new pair inherits. On
// RotateFailureReuse, Record identifies the compromised family,
// RevokedCount says how many of its tokens were just killed, and RevokeErr
// is set when the family revocation itself failed and tokens may still be
// live.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	Record       *stores.RefreshRecord
	NextToken    string
	RevokedCount int
	RevokeErr    error
}

// RunRotate consumes the presented refresh token and, on success, hands back
// the successor token value the caller must persist and return to the
// client.
//
// The successor value is generated BEFORE consumption and written into the
// predecessor's ReplacedBy under the store's compare-and-swap, so of any
// number of concurrent rotations of the same token exactly one obtains a
// successor; the rest observe a consumed record, which is the reuse signal.
//
// Reuse triggers family-wide revocation before returning: every descendant
// of the original issuance dies with the family.
func RunRotate(ctx context.Context, deps RotateDeps, presented string) RotateResult {
	next := deps.NewRefreshToken()

	record, err := deps.Consume(ctx, presented, next)
	if err == nil {
		return RotateResult{Failure: RotateOK, Record: record, NextToken: next}
	}

	switch {
	case errors.Is(err, stores.ErrRefreshRecordNotFound):
		return RotateResult{Failure: RotateFailureUnknown, Err: err}

	case errors.Is(err, stores.ErrRefreshRecordExpired):
		return RotateResult{Failure: RotateFailureExpired, Err: err, Record: record}

	case errors.Is(err, stores.ErrRefreshRecordReused):
		result := RotateResult{Failure: RotateFailureReuse, Err: err, Record: record}
		if record != nil && record.FamilyID != "" {
			revoked, revokeErr := deps.RevokeFamily(ctx, record.FamilyID)
			if revokeErr != nil {
				// One retry: a transient store hiccup must not leave the
				// compromised family live.
				revoked, revokeErr = deps.RevokeFamily(ctx, record.FamilyID)
			}
			result.RevokedCount = revoked
			result.RevokeErr = revokeErr
		}
		return result

	case errors.Is(err, stores.ErrRefreshRecordRevoked):
		return RotateResult{Failure: RotateFailureRevoked, Err: err, Record: record}

	default:
		return RotateResult{Failure: RotateFailureStore, Err: err}
	}
}

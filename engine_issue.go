package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/internal"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/stores"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/session"
)

// IssuePair creates a fresh session for userID and returns its first token
// pair: a signed access token and the opaque refresh token that roots a new
// rotation family.
//
// The user snapshot is taken now and baked into the access-token claims; it
// will not refresh until the next issuance or rotation.
func (e *Engine) IssuePair(ctx context.Context, userID string) (TokenPair, error) {
	if err := e.guard(); err != nil {
		return TokenPair{}, err
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	user, err := e.provider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, fmt.Errorf("user provider: %w", err)
	}

	sessionID := internal.NewSessionID()
	familyID := internal.NewFamilyID()
	refreshToken := internal.NewOpaqueToken()
	now := time.Now()

	access, claims, err := e.signAccess(ctx, user, sessionID)
	if err != nil {
		return TokenPair{}, err
	}

	record := &stores.RefreshRecord{
		UserID:    user.UserID,
		FamilyID:  familyID,
		SessionID: sessionID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(e.cfg.Refresh.RefreshTTL).UnixMilli(),
	}
	if err := e.refresh.Save(ctx, refreshToken, record, e.cfg.Refresh.RefreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.sessions.Register(ctx, sessionID, &session.Record{
		UserID:    user.UserID,
		FamilyID:  familyID,
		ClientIP:  record.ClientIP,
		UserAgent: record.UserAgent,
		CreatedAt: now.UnixMilli(),
	}, e.cfg.Refresh.RefreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.invalidation.MarkIssued(ctx, claims.JTI(), e.cfg.JWT.AccessTTL); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricIssueSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditEventIssue,
		Severity:  internalaudit.SeverityInfo,
		UserID:    user.UserID,
		SessionID: sessionID,
		FamilyID:  familyID,
		TokenType: "pair",
		Success:   true,
	})

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		ExpiresIn:    int64(e.cfg.Refresh.RefreshTTL.Seconds()),
	}, nil
}

// signAccess resolves the current signing key and creates the access token,
// resolving the user's roles into scopes.
func (e *Engine) signAccess(ctx context.Context, user UserRecord, sessionID string) (string, *jwt.AccessClaims, error) {
	key, err := e.keys.SigningKey(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
	}

	access, claims, err := e.jwtManager.CreateAccess(key, jwt.AccessInput{
		UserID:        user.UserID,
		SessionID:     sessionID,
		Roles:         user.Roles,
		Scopes:        e.scopes.ScopesFor(user.Roles),
		Tenant:        user.TenantID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		MFAVerified:   user.MFAVerified,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
	}
	return access, claims, nil
}

package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestManager_IssueVerifiesToAccount(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	ctx := context.Background()
	acc := seedAccount(t, f.store, "issue@x.com")

	creds, err := f.manager.Issue(ctx, acc)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := f.codec.Verify(creds.AccessToken, TokenAccess)
	if err != nil {
		t.Fatalf("Verify(access) error = %v", err)
	}
	if claims.Subject != acc.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, acc.ID)
	}
	if claims.Email != "issue@x.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "issue@x.com")
	}

	now := f.clock.Now().Unix()
	if creds.AccessTokenExpiresAt != now+900 {
		t.Errorf("AccessTokenExpiresAt = %d, want %d", creds.AccessTokenExpiresAt, now+900)
	}
	if creds.RefreshTokenExpiresAt != now+604800 {
		t.Errorf("RefreshTokenExpiresAt = %d, want %d", creds.RefreshTokenExpiresAt, now+604800)
	}
	if creds.RefreshTokenIssuedAt != now {
		t.Errorf("RefreshTokenIssuedAt = %d, want %d", creds.RefreshTokenIssuedAt, now)
	}

	stored, _ := f.store.FindByID(ctx, acc.ID)
	if stored.Renewal == nil || stored.Renewal.Token != creds.RefreshToken {
		t.Fatalf("stored slot = %+v, want issued renewal token", stored.Renewal)
	}
	if stored.Renewal.ExpiresAt != creds.RefreshTokenExpiresAt {
		t.Errorf("stored ExpiresAt = %d, want %d", stored.Renewal.ExpiresAt, creds.RefreshTokenExpiresAt)
	}
}

func TestManager_RotateRejectsAccessToken(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	ctx := context.Background()
	acc := seedAccount(t, f.store, "type@x.com")

	creds, _ := f.manager.Issue(ctx, acc)

	_, err := f.manager.Rotate(ctx, creds.AccessToken)
	if !errors.Is(err, ErrUnauthorizedRenewal) {
		t.Fatalf("Rotate(access token) error = %v, want ErrUnauthorizedRenewal", err)
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Rotate(access token) error = %v, should wrap ErrTypeMismatch", err)
	}
}

func TestManager_RotateIsSingleUse(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	ctx := context.Background()
	acc := seedAccount(t, f.store, "single@x.com")

	first, _ := f.manager.Issue(ctx, acc)

	second, err := f.manager.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation should yield a new renewal token")
	}

	if _, err := f.manager.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
		t.Errorf("second Rotate(old) error = %v, want ErrUnauthorizedRenewal", err)
	}

	// Without RevokeOnReuse the current token keeps working.
	if _, err := f.manager.Rotate(ctx, second.RefreshToken); err != nil {
		t.Errorf("Rotate(current) error = %v", err)
	}
}

func TestManager_RotatePreservesCeiling(t *testing.T) {
	f := newFixture(t, LifecycleConfig{AccessTTL: 100, RenewalTTL: 1000, MinRotationTTL: 60})
	ctx := context.Background()
	acc := seedAccount(t, f.store, "ceiling@x.com")

	f.clock.Set(0)
	issued, err := f.manager.Issue(ctx, acc)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	f.clock.Set(500)
	rotated, err := f.manager.Rotate(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	if rotated.RefreshTokenExpiresAt != 1000 {
		t.Errorf("RefreshTokenExpiresAt = %d, want 1000 (not 1500)", rotated.RefreshTokenExpiresAt)
	}
	if rotated.RefreshTokenIssuedAt != 0 {
		t.Errorf("RefreshTokenIssuedAt = %d, want original 0", rotated.RefreshTokenIssuedAt)
	}
	if rotated.AccessTokenExpiresAt != 600 {
		t.Errorf("AccessTokenExpiresAt = %d, want 600", rotated.AccessTokenExpiresAt)
	}

	claims, err := f.codec.Verify(rotated.RefreshToken, TokenRenewal)
	if err != nil {
		t.Fatalf("Verify(rotated) error = %v", err)
	}
	if got := claims.ExpiresAt.Unix(); got != 1000 {
		t.Errorf("signed renewal exp = %d, want 1000", got)
	}

	stored, _ := f.store.FindByID(ctx, acc.ID)
	if stored.Renewal.ExpiresAt != 1000 || stored.Renewal.IssuedAt != 0 {
		t.Errorf("stored slot = %+v, want ceiling 1000 issued 0", stored.Renewal)
	}
}

func TestManager_RotateAppliesMinimumTTL(t *testing.T) {
	f := newFixture(t, LifecycleConfig{AccessTTL: 100, RenewalTTL: 1000, MinRotationTTL: 300})
	ctx := context.Background()
	acc := seedAccount(t, f.store, "floor@x.com")

	f.clock.Set(0)
	issued, _ := f.manager.Issue(ctx, acc)

	f.clock.Set(900)
	rotated, err := f.manager.Rotate(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	claims, _ := f.codec.Verify(rotated.RefreshToken, TokenRenewal)
	if got := claims.ExpiresAt.Unix(); got != 1200 {
		t.Errorf("signed renewal exp = %d, want 1200 (floor of 300s)", got)
	}
	if rotated.RefreshTokenExpiresAt != 1000 {
		t.Errorf("RefreshTokenExpiresAt = %d, want ceiling 1000", rotated.RefreshTokenExpiresAt)
	}
}

func TestManager_RotatePastCeilingClearsSlot(t *testing.T) {
	f := newFixture(t, LifecycleConfig{AccessTTL: 100, RenewalTTL: 1000, MinRotationTTL: 300})
	ctx := context.Background()
	acc := seedAccount(t, f.store, "expired@x.com")

	f.clock.Set(0)
	issued, _ := f.manager.Issue(ctx, acc)

	f.clock.Set(900)
	rotated, err := f.manager.Rotate(ctx, issued.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// The token itself is valid until 1200, but the ceiling is 1000.
	f.clock.Set(1000)
	_, err = f.manager.Rotate(ctx, rotated.RefreshToken)
	if !errors.Is(err, ErrRenewalExpired) {
		t.Fatalf("Rotate() past ceiling error = %v, want ErrRenewalExpired", err)
	}

	stored, err := f.store.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.Renewal != nil {
		t.Errorf("renewal slot = %+v, want nil after ceiling expiry", stored.Renewal)
	}

	if !slices.Contains(f.sink.types(), EventRenewalExpired) {
		t.Errorf("events = %v, want %s", f.sink.types(), EventRenewalExpired)
	}
}

func TestManager_RotateUnrotatedTokenAtCeiling(t *testing.T) {
	f := newFixture(t, LifecycleConfig{AccessTTL: 100, RenewalTTL: 1000, MinRotationTTL: 60})
	ctx := context.Background()
	acc := seedAccount(t, f.store, "ceiling@x.com")

	f.clock.Set(0)
	issued, err := f.manager.Issue(ctx, acc)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// The token's own expiry and the ceiling coincide at 1000.
	f.clock.Set(1000)
	_, err = f.manager.Rotate(ctx, issued.RefreshToken)
	if !errors.Is(err, ErrRenewalExpired) {
		t.Fatalf("Rotate() at ceiling error = %v, want ErrRenewalExpired", err)
	}

	stored, err := f.store.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.Renewal != nil {
		t.Errorf("renewal slot = %+v, want nil after ceiling expiry", stored.Renewal)
	}
	if !slices.Contains(f.sink.types(), EventRenewalExpired) {
		t.Errorf("events = %v, want %s", f.sink.types(), EventRenewalExpired)
	}
	if slices.Contains(f.sink.types(), EventRotationRejected) {
		t.Errorf("events = %v, should not record a rejection", f.sink.types())
	}
}

func TestManager_RotateExpiredSupersededToken(t *testing.T) {
	f := newFixture(t, LifecycleConfig{AccessTTL: 100, RenewalTTL: 1000, MinRotationTTL: 60, RevokeOnReuse: true})
	ctx := context.Background()
	acc := seedAccount(t, f.store, "stale-tab@x.com")

	f.clock.Set(0)
	old, _ := f.manager.Issue(ctx, acc)
	current, err := f.manager.Issue(ctx, acc)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	f.clock.Set(1000)
	if _, err := f.manager.Rotate(ctx, old.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
		t.Fatalf("Rotate(superseded) error = %v, want ErrUnauthorizedRenewal", err)
	}

	// An expired stale token neither revokes nor expires the live slot.
	stored, _ := f.store.FindByID(ctx, acc.ID)
	if stored.Renewal == nil || stored.Renewal.Token != current.RefreshToken {
		t.Errorf("renewal slot = %+v, want the current token kept", stored.Renewal)
	}
}

func TestManager_RotateStoredCeilingAlreadyPassed(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	ctx := context.Background()
	acc := seedAccount(t, f.store, "stale@x.com")

	issued, _ := f.manager.Issue(ctx, acc)

	// A slot whose recorded ceiling has passed while the token still verifies.
	now := f.clock.Now().Unix()
	err := f.store.UpdateRenewalSlot(ctx, acc.ID, &RenewalSlot{
		Token:     issued.RefreshToken,
		ExpiresAt: now,
		IssuedAt:  issued.RefreshTokenIssuedAt,
	})
	if err != nil {
		t.Fatalf("UpdateRenewalSlot() error = %v", err)
	}

	if _, err := f.manager.Rotate(ctx, issued.RefreshToken); !errors.Is(err, ErrRenewalExpired) {
		t.Fatalf("Rotate() error = %v, want ErrRenewalExpired", err)
	}
	stored, _ := f.store.FindByID(ctx, acc.ID)
	if stored.Renewal != nil {
		t.Errorf("renewal slot = %+v, want nil", stored.Renewal)
	}
}

func TestManager_RotateRejections(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		if _, err := f.manager.Rotate(ctx, "not-a-token"); !errors.Is(err, ErrUnauthorizedRenewal) {
			t.Errorf("Rotate() error = %v, want ErrUnauthorizedRenewal", err)
		}
	})

	t.Run("unknown subject", func(t *testing.T) {
		ghost, _ := f.codec.Sign("acc-ghost", TokenRenewal, 600, Extra{})
		if _, err := f.manager.Rotate(ctx, ghost.Value); !errors.Is(err, ErrUnauthorizedRenewal) {
			t.Errorf("Rotate() error = %v, want ErrUnauthorizedRenewal", err)
		}
	})

	t.Run("after revoke", func(t *testing.T) {
		acc := seedAccount(t, f.store, "revoked@x.com")
		creds, _ := f.manager.Issue(ctx, acc)
		if err := f.manager.Revoke(ctx, acc.ID); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
		if _, err := f.manager.Rotate(ctx, creds.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
			t.Errorf("Rotate() error = %v, want ErrUnauthorizedRenewal", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		acc := seedAccount(t, f.store, "old@x.com")
		creds, _ := f.manager.Issue(ctx, acc)
		f.clock.Set(creds.RefreshTokenExpiresAt)
		if _, err := f.manager.Rotate(ctx, creds.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
			t.Errorf("Rotate() error = %v, want ErrUnauthorizedRenewal", err)
		}
	})
}

func TestManager_RevokeOnReuse(t *testing.T) {
	cfg := defaultLifecycle()
	cfg.RevokeOnReuse = true
	f := newFixture(t, cfg)
	ctx := context.Background()
	acc := seedAccount(t, f.store, "reuse@x.com")

	first, _ := f.manager.Issue(ctx, acc)
	second, err := f.manager.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// Replaying the superseded token revokes the whole session.
	if _, err := f.manager.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
		t.Fatalf("Rotate(old) error = %v, want ErrUnauthorizedRenewal", err)
	}
	if _, err := f.manager.Rotate(ctx, second.RefreshToken); !errors.Is(err, ErrUnauthorizedRenewal) {
		t.Errorf("Rotate(current) after reuse error = %v, want ErrUnauthorizedRenewal", err)
	}

	stored, _ := f.store.FindByID(ctx, acc.ID)
	if stored.Renewal != nil {
		t.Errorf("renewal slot = %+v, want nil after reuse", stored.Renewal)
	}
}

func TestManager_RevokeUnknownAccount(t *testing.T) {
	f := newFixture(t, defaultLifecycle())
	if err := f.manager.Revoke(context.Background(), "acc-missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Revoke() error = %v, want ErrAccountNotFound", err)
	}
}

func TestLifecycleConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LifecycleConfig
		wantErr bool
	}{
		{"defaults", defaultLifecycle(), false},
		{"zero access", LifecycleConfig{AccessTTL: 0, RenewalTTL: 100, MinRotationTTL: 10}, true},
		{"renewal not above access", LifecycleConfig{AccessTTL: 100, RenewalTTL: 100, MinRotationTTL: 10}, true},
		{"floor above renewal", LifecycleConfig{AccessTTL: 10, RenewalTTL: 100, MinRotationTTL: 101}, true},
		{"zero floor", LifecycleConfig{AccessTTL: 10, RenewalTTL: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

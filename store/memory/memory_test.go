package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWithinTxDiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Revocations().Insert(ctx, store.RevokedToken{JTI: "a", ExpiresAt: t0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ok, err := s.Revocations().Exists(ctx, "a")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("write from failed transaction leaked")
	}
}

func TestWithinTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Revocations().Insert(ctx, store.RevokedToken{JTI: "a"}); err != nil {
			return err
		}
		return tx.Revocations().Insert(ctx, store.RevokedToken{JTI: "b"})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	for _, jti := range []string{"a", "b"} {
		ok, _ := s.Revocations().Exists(ctx, jti)
		if !ok {
			t.Fatalf("expected %s committed", jti)
		}
	}
}

func TestNestedTxRollbackKeepsOuterWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Store) error {
		_ = tx.Revocations().Insert(ctx, store.RevokedToken{JTI: "outer"})
		_ = tx.WithinTx(ctx, func(inner store.Store) error {
			_ = inner.Revocations().Insert(ctx, store.RevokedToken{JTI: "inner"})
			return errors.New("inner failed")
		})
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if ok, _ := s.Revocations().Exists(ctx, "outer"); !ok {
		t.Fatal("outer write missing")
	}
	if ok, _ := s.Revocations().Exists(ctx, "inner"); ok {
		t.Fatal("inner write should have been discarded")
	}
}

func TestUserEmailUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Users().Create(ctx, &store.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Users().Create(ctx, &store.User{ID: "u2", Email: "A@example.com"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestOTPLatestAndConditionalUse(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.OTPs()

	for _, id := range []string{"c1", "c2"} {
		if err := repo.Create(ctx, &store.OTPCode{ID: id, UserID: "u1", ExpiresAt: t0.Add(5 * time.Minute), CreatedAt: t0}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	latest, err := repo.FindLatestActiveByUser(ctx, "u1", t0)
	if err != nil {
		t.Fatalf("FindLatestActiveByUser: %v", err)
	}
	if latest.ID != "c2" {
		t.Fatalf("expected c2 as latest, got %s", latest.ID)
	}

	if _, err := repo.IncrementAttempt(ctx, "c2"); err != nil {
		t.Fatalf("IncrementAttempt: %v", err)
	}
	n, _ := repo.IncrementAttempt(ctx, "c2")
	if n != 2 {
		t.Fatalf("expected attempt count 2, got %d", n)
	}

	used, err := repo.MarkUsed(ctx, "c2", t0, 2)
	if err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if used {
		t.Fatal("MarkUsed must refuse a code at the attempt ceiling")
	}

	used, _ = repo.MarkUsed(ctx, "c1", t0, 3)
	if !used {
		t.Fatal("expected c1 to be consumed")
	}
	used, _ = repo.MarkUsed(ctx, "c1", t0, 3)
	if used {
		t.Fatal("a code must be consumable once")
	}
}

func TestSessionDeleteStaleSkipsActiveIdle(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Sessions()

	rows := []store.Session{
		{ID: "expired", RefreshTokenHash: "h1", Status: store.SessionActive, ExpiresAt: t0.Add(-8 * 24 * time.Hour), LastActivity: t0},
		{ID: "idle-inactive", RefreshTokenHash: "h2", Status: store.SessionInactive, ExpiresAt: t0.Add(time.Hour), LastActivity: t0.Add(-31 * 24 * time.Hour)},
		{ID: "idle-active", RefreshTokenHash: "h3", Status: store.SessionActive, ExpiresAt: t0.Add(time.Hour), LastActivity: t0.Add(-31 * 24 * time.Hour)},
	}
	for i := range rows {
		if err := repo.Create(ctx, &rows[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := repo.DeleteStale(ctx, t0.Add(-7*24*time.Hour), t0.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if _, err := repo.FindByID(ctx, "idle-active"); err != nil {
		t.Fatalf("active session must survive retention: %v", err)
	}
}

func TestSessionUpdateAccessJTIRequiresActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Sessions()

	rows := []store.Session{
		{ID: "live", RefreshTokenHash: "h1", AccessTokenJTI: "j0", Status: store.SessionActive, ExpiresAt: t0.Add(time.Hour)},
		{ID: "logged-out", RefreshTokenHash: "h2", AccessTokenJTI: "j0", Status: store.SessionInactive, ExpiresAt: t0.Add(time.Hour)},
		{ID: "expired", RefreshTokenHash: "h3", AccessTokenJTI: "j0", Status: store.SessionActive, ExpiresAt: t0.Add(-time.Second)},
	}
	for i := range rows {
		if err := repo.Create(ctx, &rows[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := repo.UpdateAccessJTI(ctx, "live", "j1", t0); err != nil {
		t.Fatalf("UpdateAccessJTI on live session: %v", err)
	}
	for _, id := range []string{"logged-out", "expired", "missing"} {
		if err := repo.UpdateAccessJTI(ctx, id, "j1", t0); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", id, err)
		}
	}

	got, err := repo.FindByID(ctx, "logged-out")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.AccessTokenJTI != "j0" {
		t.Fatalf("inactive session jti changed to %q", got.AccessTokenJTI)
	}
}

// Package memory implements store.Store in process memory.
//
// Transactions take the store lock exclusively, run against a copy of the
// state and publish the copy only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/otpauth/store"
)

type otpRow struct {
	code store.OTPCode
	seq  int64
}

type state struct {
	users         map[string]store.User
	emails        map[string]string
	otps          map[string]otpRow
	sessions      map[string]store.Session
	revoked       map[string]store.RevokedToken
	verifications map[string]store.EmailVerification
	seq           int64
}

func newState() *state {
	return &state{
		users:         make(map[string]store.User),
		emails:        make(map[string]string),
		otps:          make(map[string]otpRow),
		sessions:      make(map[string]store.Session),
		revoked:       make(map[string]store.RevokedToken),
		verifications: make(map[string]store.EmailVerification),
	}
}

func (s *state) clone() *state {
	out := &state{
		users:         make(map[string]store.User, len(s.users)),
		emails:        make(map[string]string, len(s.emails)),
		otps:          make(map[string]otpRow, len(s.otps)),
		sessions:      make(map[string]store.Session, len(s.sessions)),
		revoked:       make(map[string]store.RevokedToken, len(s.revoked)),
		verifications: make(map[string]store.EmailVerification, len(s.verifications)),
		seq:           s.seq,
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.emails {
		out.emails[k] = v
	}
	for k, v := range s.otps {
		out.otps[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.revoked {
		out.revoked[k] = v
	}
	for k, v := range s.verifications {
		out.verifications[k] = v
	}
	return out
}

// Store is an in-memory store.Store.
type Store struct {
	mu    sync.Mutex
	state *state
	tx    *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) do(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) Users() store.UserRepository                 { return users{s} }
func (s *Store) OTPs() store.OTPRepository                   { return otps{s} }
func (s *Store) Sessions() store.SessionRepository           { return sessions{s} }
func (s *Store) Revocations() store.RevocationRepository     { return revocations{s} }
func (s *Store) Verifications() store.VerificationRepository { return verifications{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.tx != nil {
		// Nested: run on a copy of the outer transaction, merge on success.
		inner := &Store{tx: s.tx.clone()}
		if err := fn(inner); err != nil {
			return err
		}
		*s.tx = *inner.tx
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txStore := &Store{tx: s.state.clone()}
	if err := fn(txStore); err != nil {
		return err
	}
	s.state = txStore.tx
	return nil
}

/* ---- users ---- */

type users struct{ s *Store }

func (r users) FindByEmail(_ context.Context, email string) (*store.User, error) {
	var out *store.User
	err := r.s.do(func(st *state) error {
		id, ok := st.emails[strings.ToLower(email)]
		if !ok {
			return store.ErrNotFound
		}
		u := st.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r users) FindByID(_ context.Context, id string) (*store.User, error) {
	var out *store.User
	err := r.s.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r users) Create(_ context.Context, user *store.User) error {
	return r.s.do(func(st *state) error {
		email := strings.ToLower(user.Email)
		if _, ok := st.emails[email]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.users[user.ID]; ok {
			return store.ErrDuplicate
		}
		st.users[user.ID] = *user
		st.emails[email] = user.ID
		return nil
	})
}

func (r users) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *store.User) {
		u.EmailStatus = store.EmailVerified
		u.UpdatedAt = at
	})
}

func (r users) RecordLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *store.User) {
		t := at
		u.LastLoginAt = &t
		u.LoginCount++
		u.UpdatedAt = at
	})
}

func (r users) UpdateOTPBlock(_ context.Context, id string, blockedUntil *time.Time, requestCount int) error {
	return r.update(id, func(u *store.User) {
		u.OTPBlockedUntil = copyTime(blockedUntil)
		u.OTPRequestCount = requestCount
	})
}

func (r users) update(id string, fn func(u *store.User)) error {
	return r.s.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		fn(&u)
		st.users[id] = u
		return nil
	})
}

/* ---- otp codes ---- */

type otps struct{ s *Store }

func (r otps) LockUser(context.Context, string) error {
	// Transactions already hold the store lock exclusively.
	return nil
}

func (r otps) Create(_ context.Context, code *store.OTPCode) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.otps[code.ID]; ok {
			return store.ErrDuplicate
		}
		st.seq++
		st.otps[code.ID] = otpRow{code: *code, seq: st.seq}
		return nil
	})
}

func (r otps) FindLatestActiveByUser(_ context.Context, userID string, now time.Time) (*store.OTPCode, error) {
	return r.latest(userID, func(c store.OTPCode) bool {
		return c.UsedAt == nil && now.Before(c.ExpiresAt)
	})
}

func (r otps) FindLatestByUser(_ context.Context, userID string) (*store.OTPCode, error) {
	return r.latest(userID, func(store.OTPCode) bool { return true })
}

func (r otps) latest(userID string, match func(store.OTPCode) bool) (*store.OTPCode, error) {
	var out *store.OTPCode
	err := r.s.do(func(st *state) error {
		var best otpRow
		found := false
		for _, row := range st.otps {
			if row.code.UserID != userID || !match(row.code) {
				continue
			}
			if !found || row.seq > best.seq {
				best = row
				found = true
			}
		}
		if !found {
			return store.ErrNotFound
		}
		c := best.code
		out = &c
		return nil
	})
	return out, err
}

func (r otps) MarkUsed(_ context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	used := false
	err := r.s.do(func(st *state) error {
		row, ok := st.otps[id]
		if !ok {
			return store.ErrNotFound
		}
		if row.code.UsedAt != nil || row.code.BlockedUntil != nil || row.code.AttemptCount >= maxAttempts {
			return nil
		}
		t := at
		row.code.UsedAt = &t
		st.otps[id] = row
		used = true
		return nil
	})
	return used, err
}

func (r otps) IncrementAttempt(_ context.Context, id string) (int, error) {
	count := 0
	err := r.s.do(func(st *state) error {
		row, ok := st.otps[id]
		if !ok {
			return store.ErrNotFound
		}
		row.code.AttemptCount++
		st.otps[id] = row
		count = row.code.AttemptCount
		return nil
	})
	return count, err
}

func (r otps) SetBlocked(_ context.Context, id string, until time.Time) error {
	return r.s.do(func(st *state) error {
		row, ok := st.otps[id]
		if !ok {
			return store.ErrNotFound
		}
		t := until
		row.code.BlockedUntil = &t
		st.otps[id] = row
		return nil
	})
}

func (r otps) InvalidateAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for id, row := range st.otps {
			if row.code.UserID != userID || row.code.UsedAt != nil {
				continue
			}
			t := at
			row.code.UsedAt = &t
			st.otps[id] = row
			n++
		}
		return nil
	})
	return n, err
}

func (r otps) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for id, row := range st.otps {
			if row.code.ExpiresAt.Before(cutoff) {
				delete(st.otps, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

/* ---- sessions ---- */

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, session *store.Session) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.sessions[session.ID]; ok {
			return store.ErrDuplicate
		}
		for _, existing := range st.sessions {
			if existing.RefreshTokenHash == session.RefreshTokenHash {
				return store.ErrDuplicate
			}
		}
		st.sessions[session.ID] = *session
		return nil
	})
}

func (r sessions) FindActiveByRefreshHash(_ context.Context, hash string, now time.Time) (*store.Session, error) {
	var out *store.Session
	err := r.s.do(func(st *state) error {
		for _, sess := range st.sessions {
			if sess.RefreshTokenHash == hash && sess.Active(now) {
				found := sess
				out = &found
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r sessions) FindByID(_ context.Context, id string) (*store.Session, error) {
	var out *store.Session
	err := r.s.do(func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &sess
		return nil
	})
	return out, err
}

func (r sessions) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]store.Session, error) {
	var out []store.Session
	err := r.s.do(func(st *state) error {
		for _, sess := range st.sessions {
			if sess.UserID == userID && sess.Active(now) {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, err
}

func (r sessions) UpdateLastActivity(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(s *store.Session) { s.LastActivity = at })
}

func (r sessions) UpdateAccessJTI(_ context.Context, id, jti string, now time.Time) error {
	return r.s.do(func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok || !sess.Active(now) {
			return store.ErrNotFound
		}
		sess.AccessTokenJTI = jti
		st.sessions[id] = sess
		return nil
	})
}

func (r sessions) Deactivate(_ context.Context, id string) error {
	return r.update(id, func(s *store.Session) { s.Status = store.SessionInactive })
}

func (r sessions) update(id string, fn func(s *store.Session)) error {
	return r.s.do(func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return store.ErrNotFound
		}
		fn(&sess)
		st.sessions[id] = sess
		return nil
	})
}

func (r sessions) DeactivateAllForUser(_ context.Context, userID, keepID string) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for id, sess := range st.sessions {
			if sess.UserID != userID || sess.Status != store.SessionActive || id == keepID {
				continue
			}
			sess.Status = store.SessionInactive
			st.sessions[id] = sess
			n++
		}
		return nil
	})
	return n, err
}

func (r sessions) DeleteStale(_ context.Context, expiredBefore, idleBefore time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for id, sess := range st.sessions {
			expired := sess.ExpiresAt.Before(expiredBefore)
			idle := sess.Status == store.SessionInactive && sess.LastActivity.Before(idleBefore)
			if expired || idle {
				delete(st.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

/* ---- revocations ---- */

type revocations struct{ s *Store }

func (r revocations) Insert(_ context.Context, token store.RevokedToken) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.revoked[token.JTI]; ok {
			return nil
		}
		st.revoked[token.JTI] = token
		return nil
	})
}

func (r revocations) Exists(_ context.Context, jti string) (bool, error) {
	found := false
	err := r.s.do(func(st *state) error {
		_, found = st.revoked[jti]
		return nil
	})
	return found, err
}

func (r revocations) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for jti, tok := range st.revoked {
			if tok.ExpiresAt.Before(cutoff) {
				delete(st.revoked, jti)
				n++
			}
		}
		return nil
	})
	return n, err
}

/* ---- verifications ---- */

type verifications struct{ s *Store }

func (r verifications) Create(_ context.Context, v *store.EmailVerification) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.verifications[v.ID]; ok {
			return store.ErrDuplicate
		}
		st.verifications[v.ID] = *v
		return nil
	})
}

func (r verifications) FindByTokenHash(_ context.Context, hash string) (*store.EmailVerification, error) {
	var out *store.EmailVerification
	err := r.s.do(func(st *state) error {
		for _, v := range st.verifications {
			if v.TokenHash == hash {
				found := v
				out = &found
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r verifications) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	used := false
	err := r.s.do(func(st *state) error {
		v, ok := st.verifications[id]
		if !ok {
			return store.ErrNotFound
		}
		if v.UsedAt != nil {
			return nil
		}
		t := at
		v.UsedAt = &t
		st.verifications[id] = v
		used = true
		return nil
	})
	return used, err
}

func (r verifications) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(st *state) error {
		for id, v := range st.verifications {
			if v.UsedAt == nil && v.ExpiresAt.Before(cutoff) {
				delete(st.verifications, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

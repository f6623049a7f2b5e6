package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

type memoryRepo struct {
	mu            sync.Mutex
	sessions      map[string]Session
	accounts      map[string]Account
	verifications map[string]VerificationToken
	passwords     map[string]bool
	sessionReads  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions:      make(map[string]Session),
		accounts:      make(map[string]Account),
		verifications: make(map[string]VerificationToken),
		passwords:     make(map[string]bool),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CreateSession(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionToken] = s
	return nil
}

func (r *memoryRepo) GetSession(ctx context.Context, token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionReads++
	s, ok := r.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memoryRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, k)
			n++
		}
	}
	return n, nil
}

func accountKey(provider, id string) string {
	return provider + "/" + id
}

func (r *memoryRepo) CreateAccount(ctx context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(a.Provider, a.ProviderAccountID)
	if _, ok := r.accounts[key]; ok {
		return fmt.Errorf("account already exists: %w", shared.ErrDuplicate)
	}
	r.accounts[key] = a
	return nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, provider, providerAccountID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(provider, providerAccountID)]
	if !ok {
		return Account{}, ErrAccountNotLinked
	}
	return a, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *memoryRepo) CreateVerification(ctx context.Context, v VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications[v.Identifier+"|"+v.Token] = v
	return nil
}

func (r *memoryRepo) ConsumeVerification(ctx context.Context, identifier, token string) (VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identifier + "|" + token
	v, ok := r.verifications[key]
	if !ok {
		return VerificationToken{}, ErrTokenInvalid
	}
	delete(r.verifications, key)
	return v, nil
}

func (r *memoryRepo) DeleteExpiredVerifications(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, v := range r.verifications {
		if !now.Before(v.Expires) {
			delete(r.verifications, k)
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) LockUserCredentials(ctx context.Context, userID string) (bool, error) {
	return tx.repo.passwords[userID], nil
}

func (tx *memoryTx) CountAccounts(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, a := range tx.repo.accounts {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) DeleteAccount(ctx context.Context, userID, provider, providerAccountID string) (bool, error) {
	key := accountKey(provider, providerAccountID)
	a, ok := tx.repo.accounts[key]
	if !ok || a.UserID != userID {
		return false, nil
	}
	delete(tx.repo.accounts, key)
	return true, nil
}

type fakeDirectory struct {
	mu       sync.Mutex
	byID     map[string]users.User
	verified map[string]time.Time
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byID: make(map[string]users.User), verified: make(map[string]time.Time)}
}

func (d *fakeDirectory) add(id, email, password string, role rbac.Role, org string) users.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := users.User{ID: id, Email: email}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		u.PasswordHash = string(hash)
	}
	if org != "" {
		o := org
		r := role
		u.OrganizationID = &o
		u.Role = &r
	}
	d.byID[id] = u
	return u
}

func (d *fakeDirectory) Register(ctx context.Context, input users.RegisterInput) (users.User, error) {
	id := fmt.Sprintf("u%d", len(d.byID)+1)
	return d.add(id, shared.NormalizeEmail(input.Email), input.Password, "", ""), nil
}

func (d *fakeDirectory) Get(ctx context.Context, id string) (users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return users.User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return u, nil
}

func (d *fakeDirectory) GetByEmail(ctx context.Context, email string) (users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if u.Email == shared.NormalizeEmail(email) {
			return u, nil
		}
	}
	return users.User{}, fmt.Errorf("user: %w", shared.ErrNotFound)
}

func (d *fakeDirectory) MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if u.Email == email {
			d.verified[email] = at
			return true, nil
		}
	}
	return false, nil
}

type recordingMailer struct {
	mu    sync.Mutex
	sent  []VerificationToken
	fails error
}

func (m *recordingMailer) EnqueueVerification(ctx context.Context, identifier, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails != nil {
		return m.fails
	}
	m.sent = append(m.sent, VerificationToken{Identifier: identifier, Token: token, Expires: expires})
	return nil
}

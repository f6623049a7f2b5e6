package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

// UserDirectory is the subset of the users service auth relies on.
type UserDirectory interface {
	Register(ctx context.Context, input users.RegisterInput) (users.User, error)
	Get(ctx context.Context, id string) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
	MarkEmailVerified(ctx context.Context, email string, at time.Time) (bool, error)
}

// VerificationMailer delivers verification tokens out of band.
type VerificationMailer interface {
	EnqueueVerification(ctx context.Context, identifier, token string, expires time.Time) error
}

// Config groups auth lifetimes.
type Config struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	users  UserDirectory
	cache  *SessionCache
	tokens *TokenIssuer
	mailer VerificationMailer
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewService constructs a new Service. cache, tokens and mailer are optional.
func NewService(repo Repository, dir UserDirectory, cache *SessionCache, tokens *TokenIssuer, mailer VerificationMailer, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	return &Service{repo: repo, users: dir, cache: cache, tokens: tokens, mailer: mailer, logger: logger, cfg: cfg, now: time.Now}
}

// Register creates a user account.
func (s *Service) Register(ctx context.Context, input users.RegisterInput) (users.User, error) {
	return s.users.Register(ctx, input)
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !u.CheckPassword(password) {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return u, nil
}

// Login authenticates and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	return s.login(ctx, u)
}

func (s *Service) login(ctx context.Context, u users.User) (LoginResult, error) {
	sess, err := s.StartSession(ctx, u.ID)
	if err != nil {
		return LoginResult{}, err
	}
	access, err := s.tokens.Issue(u)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.Info("user signed in", slog.String("user_id", u.ID))
	return LoginResult{User: u, Session: sess, AccessToken: access}, nil
}

// StartSession creates a session for userID.
func (s *Service) StartSession(ctx context.Context, userID string) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:           uuid.NewString(),
		SessionToken: token,
		UserID:       userID,
		Expires:      s.now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ResolveSession validates a session token, consulting the cache first.
func (s *Service) ResolveSession(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	now := s.now()
	sess, hit, err := s.cache.Get(ctx, token)
	if err != nil {
		s.logger.Warn("session cache read failed", slog.Any("error", err))
	}
	if !hit {
		sess, err = s.repo.GetSession(ctx, token)
		if err != nil {
			return Session{}, err
		}
	}
	if sess.Expired(now) {
		if err := s.EndSession(ctx, token); err != nil {
			s.logger.Warn("delete expired session", slog.Any("error", err))
		}
		return Session{}, ErrSessionExpired
	}
	if !hit {
		if err := s.cache.Put(ctx, sess, now); err != nil {
			s.logger.Warn("session cache write failed", slog.Any("error", err))
		}
	}
	return sess, nil
}

// EndSession removes the session from storage and cache.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if err := s.cache.Delete(ctx, token); err != nil {
		s.logger.Warn("session cache delete failed", slog.Any("error", err))
	}
	return s.repo.DeleteSession(ctx, token)
}

// ResolvePrincipal turns a bearer credential (session token or access token)
// into the request principal.
func (s *Service) ResolvePrincipal(ctx context.Context, credential string) (*shared.Principal, error) {
	if s.tokens != nil && looksLikeJWT(credential) {
		claims, err := s.tokens.Parse(credential)
		if err != nil {
			return nil, err
		}
		return &shared.Principal{
			UserID:         claims.Subject,
			Email:          claims.Email,
			OrganizationID: claims.OrganizationID,
			Role:           claims.Role,
		}, nil
	}
	sess, err := s.ResolveSession(ctx, credential)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &shared.Principal{
		UserID:         u.ID,
		Email:          u.Email,
		OrganizationID: u.OrgID(),
		Role:           u.RoleName(),
		SessionToken:   sess.SessionToken,
	}, nil
}

// LinkAccount attaches an external identity to a user.
func (s *Service) LinkAccount(ctx context.Context, a Account) (Account, error) {
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	a.ProviderAccountID = strings.TrimSpace(a.ProviderAccountID)
	a.Type = strings.TrimSpace(a.Type)
	if a.UserID == "" || a.Provider == "" || a.ProviderAccountID == "" || a.Type == "" {
		return Account{}, fmt.Errorf("auth: user, type, provider and provider account id required: %w", shared.ErrValidation)
	}
	a.ID = uuid.NewString()
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	s.logger.Info("account linked", slog.String("user_id", a.UserID), slog.String("provider", a.Provider))
	return a, nil
}

// UnlinkAccount removes an external identity unless it is the user's last
// way to sign in.
func (s *Service) UnlinkAccount(ctx context.Context, userID, provider, providerAccountID string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		hasPassword, err := tx.LockUserCredentials(ctx, userID)
		if err != nil {
			return err
		}
		count, err := tx.CountAccounts(ctx, userID)
		if err != nil {
			return err
		}
		if !hasPassword && count <= 1 {
			return ErrLastCredential
		}
		deleted, err := tx.DeleteAccount(ctx, userID, provider, providerAccountID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("account: %w", shared.ErrNotFound)
		}
		return nil
	})
}

// ListAccounts returns accounts linked to userID.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	return s.repo.ListAccounts(ctx, userID)
}

// SignInWithAccount opens a session for the user linked to an external identity.
func (s *Service) SignInWithAccount(ctx context.Context, provider, providerAccountID string) (LoginResult, error) {
	a, err := s.repo.GetAccount(ctx, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(providerAccountID))
	if err != nil {
		return LoginResult{}, err
	}
	u, err := s.users.Get(ctx, a.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	return s.login(ctx, u)
}

// IssueVerification stores a fresh token for identifier and hands it to the
// mailer. The token is withdrawn when the mail cannot be queued.
func (s *Service) IssueVerification(ctx context.Context, identifier string) (VerificationToken, error) {
	identifier = shared.NormalizeEmail(identifier)
	if identifier == "" {
		return VerificationToken{}, fmt.Errorf("auth: identifier required: %w", shared.ErrValidation)
	}
	token, err := newToken()
	if err != nil {
		return VerificationToken{}, err
	}
	v := VerificationToken{
		Identifier: identifier,
		Token:      token,
		Expires:    s.now().UTC().Add(s.cfg.VerificationTTL),
	}
	if err := s.repo.CreateVerification(ctx, v); err != nil {
		return VerificationToken{}, err
	}
	if s.mailer != nil {
		if err := s.mailer.EnqueueVerification(ctx, v.Identifier, v.Token, v.Expires); err != nil {
			if _, derr := s.repo.ConsumeVerification(ctx, v.Identifier, v.Token); derr != nil {
				s.logger.Warn("drop undelivered verification token", slog.Any("error", derr))
			}
			return VerificationToken{}, fmt.Errorf("auth: enqueue verification mail: %w", err)
		}
	}
	return v, nil
}

// ConsumeVerification redeems a token once. When the identifier is a
// registered email the user is marked verified.
func (s *Service) ConsumeVerification(ctx context.Context, identifier, token string) (VerificationToken, error) {
	identifier = shared.NormalizeEmail(identifier)
	v, err := s.repo.ConsumeVerification(ctx, identifier, token)
	if err != nil {
		return VerificationToken{}, err
	}
	now := s.now().UTC()
	if !now.Before(v.Expires) {
		return VerificationToken{}, ErrTokenExpired
	}
	if _, err := s.users.MarkEmailVerified(ctx, identifier, now); err != nil {
		return VerificationToken{}, err
	}
	return v, nil
}

// PurgeExpired deletes expired sessions and verification tokens.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error) {
	var res PurgeResult
	var err error
	if res.Sessions, err = s.repo.DeleteExpiredSessions(ctx, now); err != nil {
		return res, fmt.Errorf("auth: purge sessions: %w", err)
	}
	if res.VerificationTokens, err = s.repo.DeleteExpiredVerifications(ctx, now); err != nil {
		return res, fmt.Errorf("auth: purge verification tokens: %w", err)
	}
	return res, nil
}

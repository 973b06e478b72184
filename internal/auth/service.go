// Package auth implements registration, login, refresh token rotation, logout
// and access token validation.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/finansecure/internal/metrics"
	"github.com/charleshuang3/finansecure/internal/models"
	"github.com/charleshuang3/finansecure/internal/password"
	"github.com/charleshuang3/finansecure/internal/storage"
	"github.com/charleshuang3/finansecure/internal/token"
)

var (
	logger = log.With().Str("component", "auth").Logger()
)

// Client facing messages.
const (
	msgInternal = "An internal error occurred."

	msgInvalidRegistration = "Invalid registration data."
	msgUserExists          = "Username or email is already registered."
	msgRegistered          = "User registered successfully."

	msgInvalidLogin       = "Invalid login data."
	msgInvalidCredentials = "Invalid username or password."
	msgLoggedIn           = "Login successful."

	msgMissingRefreshToken = "Refresh token is required."
	msgInvalidRefreshToken = "Invalid or expired refresh token."
	msgRefreshed           = "Tokens refreshed successfully."

	msgLoggedOut    = "Logout successful."
	msgLoggedOutAll = "All sessions revoked."

	msgInvalidPasswordChange = "Invalid password change data."
	msgWrongPassword         = "Current password is incorrect."
	msgSamePassword          = "New password must differ from the current password."
	msgPasswordChanged       = "Password changed successfully."

	msgMissingToken = "Token is required."
	msgInvalidToken = "Invalid token."
	msgValidToken   = "Token is valid."
)

// UserStore is the identity store the service reads and updates.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// RefreshTokenStore holds the state of every issued refresh token.
type RefreshTokenStore interface {
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Create(ctx context.Context, rt *models.RefreshToken) error
	Revoke(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.RefreshToken, error)
	PurgeExpired(ctx context.Context) (int64, error)
	Rotate(ctx context.Context, presented string, next *models.RefreshToken) error
}

// Service holds no per-request state, all session state lives in the refresh
// token store.
type Service struct {
	config *Config
	users  UserStore
	tokens RefreshTokenStore
	hasher password.Hasher
	signer *token.Signer

	attempts *storage.LoginAttemptStorage
	metrics  *metrics.Metrics

	// compared against when the user does not exist.
	dummyHash string

	now func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(config *Config, users UserStore, tokens RefreshTokenStore, signer *token.Signer, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		config: config,
		users:  users,
		tokens: tokens,
		hasher: password.NewBcrypt(config.BcryptCost),
		signer: signer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.LockoutEnabled() {
		s.attempts = storage.NewLoginAttemptStorage(config.LockoutWindow)
	}

	var err error
	s.dummyHash, err = s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Close releases the login attempt cache.
func (s *Service) Close() {
	if s.attempts != nil {
		s.attempts.Close()
	}
}

func (s *Service) observe(op string, err error) {
	switch {
	case err == nil:
		s.metrics.Operation(op, metrics.ResultSuccess)
	case KindOf(err) == KindInternal:
		s.metrics.Operation(op, metrics.ResultError)
	default:
		s.metrics.Operation(op, metrics.ResultFailure)
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (resp *AuthResponse, err error) {
	defer func() { s.observe(metrics.OpRegister, err) }()

	if errs := validateRegister(&req); errs != nil {
		return nil, validationError(msgInvalidRegistration, errs)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		logger.Error().Err(err).Str("username", req.Username).Msg("Error checking user existence")
		return nil, internalError(msgInternal, err)
	}
	if exists {
		return nil, conflictError(msgUserExists, "username or email taken")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		return nil, internalError(msgInternal, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// lost a race with a concurrent registration.
			return nil, conflictError(msgUserExists, "unique index violation")
		}
		logger.Error().Err(err).Str("username", req.Username).Msg("Failed to create user")
		return nil, internalError(msgInternal, err)
	}

	logger.Info().Str("username", user.Username).Str("user_id", user.ID.String()).Msg("User registered")

	return &AuthResponse{
		Success: true,
		Message: msgRegistered,
		User:    toUserDTO(user),
	}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest, client ClientInfo) (resp *AuthResponse, err error) {
	defer func() { s.observe(metrics.OpLogin, err) }()

	if req.Username == "" || req.Password == "" {
		return nil, validationError(msgInvalidLogin, nil)
	}

	if s.isLockedOut(req.Username) {
		s.metrics.Lockout()
		logger.Warn().Str("username", req.Username).Str("ip", client.IP).Msg("Login rejected, username locked out")
		return nil, &Error{
			Kind:       KindUnauthorized,
			Message:    msgInvalidCredentials,
			Reason:     "locked out",
			Suspicious: true,
		}
	}

	user, err := s.users.GetByUsername(ctx, req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		s.hasher.Verify(req.Password, s.dummyHash)
		return nil, s.loginFailed(req.Username, client, "unknown user")
	}
	if err != nil {
		logger.Error().Err(err).Str("username", req.Username).Msg("Failed to get user")
		return nil, internalError(msgInternal, err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, s.loginFailed(req.Username, client, "wrong password")
	}
	if !user.IsActive {
		return nil, s.loginFailed(req.Username, client, "inactive user")
	}

	tokens, err := s.issueTokenPair(ctx, user, func(rt *models.RefreshToken) error {
		if err := s.tokens.Create(ctx, rt); err != nil {
			logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to store refresh token")
			return internalError(msgInternal, err)
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// tokens are already issued and persisted.
		logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to update last login")
	} else {
		user.LastLoginAt = &now
	}

	if s.attempts != nil {
		s.attempts.Reset(req.Username)
	}

	logger.Info().Str("username", user.Username).Str("user_id", user.ID.String()).Str("ip", client.IP).Msg("Login succeeded")

	return &AuthResponse{
		Success: true,
		Message: msgLoggedIn,
		User:    toUserDTO(user),
		Tokens:  tokens,
	}, nil
}

func (s *Service) isLockedOut(username string) bool {
	return s.attempts != nil && s.attempts.Failures(username) >= s.config.MaxFailedLogins
}

// loginFailed returns the same error for every credential failure.
func (s *Service) loginFailed(username string, client ClientInfo, reason string) *Error {
	ev := logger.Warn().Str("username", username).Str("ip", client.IP).Str("reason", reason)
	if s.attempts != nil {
		ev = ev.Int("failures", s.attempts.RecordFailure(username))
	}
	ev.Msg("Login failed")

	return unauthorizedError(msgInvalidCredentials, reason)
}

// issueTokenPair signs a new access token and persists a new refresh token
// through persist.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, persist func(rt *models.RefreshToken) error, client ClientInfo) (*TokenResponse, error) {
	accessToken, err := s.signer.IssueAccessToken(user.ID.String(), user.Username, user.Email)
	if err != nil {
		logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to issue access token")
		return nil, internalError(msgInternal, err)
	}

	refreshToken, err := s.signer.IssueRefreshToken()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to issue refresh token")
		return nil, internalError(msgInternal, err)
	}

	rt := &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: s.now().Add(s.config.RefreshTokenTTL),
		UserAgent: truncate(client.UserAgent, 512),
		IPAddress: truncate(client.IP, 64),
	}
	if err := persist(rt); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.signer.ExpiresIn(),
		TokenType:    tokenTypeBearer,
	}, nil
}

// RefreshToken exchanges an active refresh token for a new pair. The presented
// token is revoked in the same transaction that stores its successor, so it
// can be redeemed at most once.
func (s *Service) RefreshToken(ctx context.Context, presented string, client ClientInfo) (resp *AuthResponse, err error) {
	defer func() { s.observe(metrics.OpRefresh, err) }()

	if presented == "" {
		return nil, validationError(msgMissingRefreshToken, nil)
	}

	rec, err := s.tokens.Find(ctx, presented)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("ip", client.IP).Msg("Unknown refresh token")
		return nil, unauthorizedError(msgInvalidRefreshToken, "unknown refresh token")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to find refresh token")
		return nil, internalError(msgInternal, err)
	}

	now := s.now()
	if !rec.IsActive(now) {
		if rec.IsRotated() && !rec.IsExpired(now) {
			return nil, s.refreshReplayed(ctx, rec, client)
		}
		if rec.IsRevoked() {
			// ended by a logout, a client retrying it is not an attack.
			logger.Warn().Str("user_id", rec.UserID.String()).Msg("Revoked refresh token")
			return nil, unauthorizedError(msgInvalidRefreshToken, "revoked refresh token")
		}
		logger.Warn().Str("user_id", rec.UserID.String()).Msg("Expired refresh token")
		return nil, unauthorizedError(msgInvalidRefreshToken, "expired refresh token")
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("user_id", rec.UserID.String()).Msg("Refresh token of unknown user")
		return nil, unauthorizedError(msgInvalidRefreshToken, "unknown user")
	}
	if err != nil {
		logger.Error().Err(err).Str("user_id", rec.UserID.String()).Msg("Failed to get user")
		return nil, internalError(msgInternal, err)
	}
	if !user.IsActive {
		logger.Warn().Str("user_id", user.ID.String()).Msg("Refresh token of inactive user")
		return nil, unauthorizedError(msgInvalidRefreshToken, "inactive user")
	}

	tokens, err := s.issueTokenPair(ctx, user, func(next *models.RefreshToken) error {
		err := s.tokens.Rotate(ctx, presented, next)
		if errors.Is(err, storage.ErrTokenInactive) {
			logger.Warn().Str("user_id", user.ID.String()).Msg("Refresh token rotated concurrently")
			return unauthorizedError(msgInvalidRefreshToken, "concurrent rotation")
		}
		if err != nil {
			logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to rotate refresh token")
			return internalError(msgInternal, err)
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("user_id", user.ID.String()).Msg("Refresh token rotated")

	return &AuthResponse{
		Success: true,
		Message: msgRefreshed,
		Tokens:  tokens,
	}, nil
}

// refreshReplayed handles an already rotated, unexpired token, which is either
// a stolen token or a client retrying with its previous token.
func (s *Service) refreshReplayed(ctx context.Context, rec *models.RefreshToken, client ClientInfo) *Error {
	s.metrics.RefreshReplay()

	ev := logger.Warn().
		Str("user_id", rec.UserID.String()).
		Str("token_id", rec.ID.String()).
		Str("ip", client.IP).
		Str("user_agent", client.UserAgent)

	if s.config.RevokeAllOnReplay {
		n, err := s.tokens.RevokeAll(ctx, rec.UserID)
		if err != nil {
			logger.Error().Err(err).Str("user_id", rec.UserID.String()).Msg("Failed to revoke sessions after replay")
		}
		s.metrics.TokensRevoked(n)
		ev = ev.Int64("revoked_sessions", n)
	}
	ev.Msg("Revoked refresh token replayed")

	return &Error{
		Kind:       KindUnauthorized,
		Message:    msgInvalidRefreshToken,
		Reason:     "replayed refresh token",
		Suspicious: true,
	}
}

// RevokeToken revokes a single refresh token. The result is false when the
// token does not exist, callers should not reveal it to the client.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) (revoked bool, err error) {
	defer func() { s.observe(metrics.OpLogout, err) }()

	if refreshToken == "" {
		return false, validationError(msgMissingRefreshToken, nil)
	}

	revoked, err = s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to revoke refresh token")
		return false, internalError(msgInternal, err)
	}

	if revoked {
		s.metrics.TokensRevoked(1)
		logger.Info().Msg("Refresh token revoked")
	} else {
		logger.Info().Msg("Logout with unknown refresh token")
	}
	return revoked, nil
}

// LogoutResponse is what logout reports regardless of the token's state.
func LogoutResponse() *AuthResponse {
	return &AuthResponse{Success: true, Message: msgLoggedOut}
}

func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (n int64, err error) {
	defer func() { s.observe(metrics.OpLogoutAll, err) }()

	n, err = s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to revoke all sessions")
		return 0, internalError(msgInternal, err)
	}

	s.metrics.TokensRevoked(n)
	logger.Info().Str("user_id", userID.String()).Int64("revoked", n).Msg("All sessions revoked")
	return n, nil
}

// LogoutAllResponse reports how many sessions RevokeAllSessions ended.
func LogoutAllResponse(n int64) *AuthResponse {
	return &AuthResponse{Success: true, Message: msgLoggedOutAll, Revoked: &n}
}

func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]SessionDTO, error) {
	tokens, err := s.tokens.ListActive(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to list sessions")
		return nil, internalError(msgInternal, err)
	}

	sessions := make([]SessionDTO, 0, len(tokens))
	for i := range tokens {
		sessions = append(sessions, toSessionDTO(&tokens[i]))
	}
	return sessions, nil
}

// ChangePassword replaces the user's password after checking the current one.
// Existing sessions are revoked only when RevokeSessionsOnPasswordChange is set.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) (resp *AuthResponse, err error) {
	defer func() { s.observe(metrics.OpChangePassword, err) }()

	if req.CurrentPassword == "" {
		return nil, validationError(msgInvalidPasswordChange, fieldErrors{"currentPassword": {"Current password is required."}})
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return nil, validationError(msgInvalidPasswordChange, fieldErrors{"newPassword": {err.Error()}})
	}
	if req.NewPassword == req.CurrentPassword {
		return nil, validationError(msgSamePassword, nil)
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("user_id", userID.String()).Msg("Password change for unknown user")
		return nil, unauthorizedError(msgWrongPassword, "unknown user")
	}
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get user")
		return nil, internalError(msgInternal, err)
	}

	if !user.IsActive || !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		logger.Warn().Str("user_id", userID.String()).Msg("Password change with wrong current password")
		return nil, unauthorizedError(msgWrongPassword, "current password mismatch")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		return nil, internalError(msgInternal, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to update password")
		return nil, internalError(msgInternal, err)
	}

	ev := logger.Info().Str("user_id", userID.String())
	if s.config.RevokeSessionsOnPasswordChange {
		n, err := s.tokens.RevokeAll(ctx, user.ID)
		if err != nil {
			// the password is already changed.
			logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to revoke sessions after password change")
		}
		s.metrics.TokensRevoked(n)
		ev = ev.Int64("revoked_sessions", n)
	}
	ev.Msg("Password changed")

	return &AuthResponse{Success: true, Message: msgPasswordChanged}, nil
}

// ValidateAccessToken verifies the token and loads its user, for callers that
// need more than the locally verified claims.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (resp *AuthResponse, err error) {
	defer func() { s.observe(metrics.OpValidate, err) }()

	if accessToken == "" {
		return nil, validationError(msgMissingToken, nil)
	}

	claims, err := s.signer.VerifyAccessToken(accessToken)
	if err != nil {
		logger.Warn().Err(err).Msg("Access token rejected")
		return nil, unauthorizedError(msgInvalidToken, err.Error())
	}

	userID, err := claims.UserID()
	if err != nil {
		logger.Warn().Str("sub", claims.Subject).Msg("Access token subject is not a user id")
		return nil, unauthorizedError(msgInvalidToken, "malformed subject")
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Str("user_id", userID.String()).Msg("Access token of unknown user")
		return nil, unauthorizedError(msgInvalidToken, "unknown user")
	}
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get user")
		return nil, internalError(msgInternal, err)
	}
	if !user.IsActive {
		logger.Warn().Str("user_id", userID.String()).Msg("Access token of inactive user")
		return nil, unauthorizedError(msgInvalidToken, "inactive user")
	}

	return &AuthResponse{
		Success: true,
		Message: msgValidToken,
		User:    toUserDTO(user),
	}, nil
}

// PurgeExpired deletes expired refresh tokens. It is run by the sweeper and
// the operator CLI.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.TokensPurged(n)
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/oauth"
	"github.com/iliyamo/campus-events/internal/repository"
	"github.com/iliyamo/campus-events/internal/utils"
)

// SearchLimit caps SearchUsers results.
const SearchLimit = 20

// IdentityVerifier checks an external ID token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*oauth.GoogleIdentity, error)
}

// Session is the result of every operation that signs a user in.
type Session struct {
	User    model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

type AuthService struct {
	users      repository.UserStore
	tokens     repository.TokenStore
	issuer     *utils.TokenIssuer
	google     IdentityVerifier
	bcryptCost int
	log        zerolog.Logger
	now        func() time.Time
}

// NewAuthService wires the account operations. google may be nil, in which
// case GoogleLogin is rejected.
func NewAuthService(users repository.UserStore, tokens repository.TokenStore, issuer *utils.TokenIssuer,
	google IdentityVerifier, bcryptCost int, logger zerolog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		google:     google,
		bcryptCost: bcryptCost,
		log:        logger.With().Str("component", "auth").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Fullname  string
	Interests []string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username := model.NormalizeUsername(in.Username)
	email := model.NormalizeEmail(in.Email)
	fullname := strings.TrimSpace(in.Fullname)
	interests := model.NormalizeInterests(in.Interests)
	if username == "" || email == "" || fullname == "" || in.Password == "" || len(interests) == 0 {
		return nil, apperr.BadRequest("all fields are required, including at least one interest")
	}
	if len(in.Password) < utils.MinPasswordLen {
		return nil, apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", utils.MinPasswordLen))
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal("could not register user", err)
	}
	now := s.now()
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Fullname:     fullname,
		PasswordHash: hash,
		Role:         model.RoleStudent,
		Interests:    interests,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict("user already exists")
		}
		return nil, apperr.Internal("could not register user", err)
	}
	s.log.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return s.startSession(ctx, u)
}

// Login accepts a username or an email as identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, apperr.BadRequest("username or email and password are required")
	}
	u, err := s.users.GetByLogin(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user does not exist")
	}
	if err != nil {
		return nil, apperr.Internal("login failed", err)
	}
	if !u.HasPassword() {
		return nil, apperr.Unauthorized("this account signs in with google")
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, apperr.Unauthorized("password is incorrect")
	}
	return s.startSession(ctx, u)
}

// GoogleLogin signs in with a Google ID token. The account is found by
// Google subject, then linked by email, and created as a last resort.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*Session, error) {
	if s.google == nil {
		return nil, apperr.BadRequest("google sign-in is not configured")
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, apperr.BadRequest("id token is required")
	}
	id, err := s.google.Verify(ctx, idToken)
	if errors.Is(err, oauth.ErrInvalidIDToken) {
		return nil, apperr.Unauthorized("invalid google token")
	}
	if err != nil {
		return nil, apperr.Internal("google sign-in failed", err)
	}

	u, err := s.users.GetByExternalID(ctx, id.Subject)
	switch {
	case err == nil:
		return s.startSession(ctx, u)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal("google sign-in failed", err)
	}

	u, err = s.users.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if err := s.users.LinkExternal(ctx, u.ID, id.Subject); err != nil {
			return nil, apperr.Internal("google sign-in failed", err)
		}
		u.ExternalID = id.Subject
		s.log.Info().Str("user_id", u.ID).Msg("linked google account")
		return s.startSession(ctx, u)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal("google sign-in failed", err)
	}

	u, err = s.createExternal(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, u)
}

const usernameAttempts = 5

var usernameStrip = regexp.MustCompile(`[^a-z0-9._]+`)

func baseUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	base := usernameStrip.ReplaceAllString(strings.ToLower(local), "")
	if base == "" {
		base = "user"
	}
	return base
}

func (s *AuthService) createExternal(ctx context.Context, id *oauth.GoogleIdentity) (*model.User, error) {
	base := baseUsername(id.Email)
	fullname := strings.TrimSpace(id.Name)
	if fullname == "" {
		fullname = base
	}
	now := s.now()
	u := &model.User{
		ID:                uuid.NewString(),
		Email:             id.Email,
		Fullname:          fullname,
		ExternalID:        id.Subject,
		IsExternalAccount: true,
		Role:              model.RoleStudent,
		Interests:         []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i := 0; i < usernameAttempts; i++ {
		u.Username = base
		if i > 0 {
			u.Username = base + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		}
		err := s.users.Create(ctx, u)
		if err == nil {
			s.log.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user created from google sign-in")
			return u, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Internal("google sign-in failed", err)
		}
	}
	return nil, apperr.Conflict("could not allocate a username")
}

// Refresh rotates a refresh token. The stored hash is swapped only if it
// still matches the presented token, so of two concurrent calls with the
// same token exactly one succeeds.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Unauthorized("unauthorized refresh-token request")
	}
	userID, err := s.issuer.VerifyRefresh(raw)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	if err != nil {
		return nil, apperr.Internal("refresh failed", err)
	}
	presented := utils.HashRefreshRaw(raw)
	if u.RefreshTokenHash == "" || u.RefreshTokenHash != presented {
		return nil, apperr.Unauthorized("refresh token is expired or used")
	}

	sess, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	ok, err := s.tokens.RotateRefresh(ctx, u.ID, presented, utils.HashRefreshRaw(sess.Refresh.Raw))
	if err != nil {
		return nil, apperr.Internal("refresh failed", err)
	}
	if !ok {
		return nil, apperr.Unauthorized("refresh token is expired or used")
	}
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.ClearRefresh(ctx, userID); err != nil {
		return apperr.Internal("logout failed", err)
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("could not load user", err)
	}
	pub := u.Public()
	return &pub, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperr.BadRequest("all fields are required")
	}
	if len(newPassword) < utils.MinPasswordLen {
		return apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", utils.MinPasswordLen))
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Internal("could not change password", err)
	}
	if !u.HasPassword() {
		return apperr.BadRequest("this account signs in with google")
	}
	if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
		return apperr.BadRequest("old password is incorrect")
	}
	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperr.Internal("could not change password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Internal("could not change password", err)
	}
	return nil
}

func (s *AuthService) UpdateAccount(ctx context.Context, userID, fullname, email string) (*model.User, error) {
	fullname = strings.TrimSpace(fullname)
	email = model.NormalizeEmail(email)
	if fullname == "" || email == "" {
		return nil, apperr.BadRequest("all fields are required")
	}
	err := s.users.UpdateProfile(ctx, userID, fullname, email)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return nil, apperr.Conflict("email already in use")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("user not found")
	case err != nil:
		return nil, apperr.Internal("could not update account", err)
	}
	return s.Me(ctx, userID)
}

func (s *AuthService) UpdateInterests(ctx context.Context, userID string, interests []string) (*model.User, error) {
	interests = model.NormalizeInterests(interests)
	if len(interests) == 0 {
		return nil, apperr.BadRequest("at least one interest must be selected")
	}
	err := s.users.UpdateInterests(ctx, userID, interests)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("could not update interests", err)
	}
	return s.Me(ctx, userID)
}

// SearchUsers matches usernames by case-insensitive prefix.
func (s *AuthService) SearchUsers(ctx context.Context, username string) ([]model.User, error) {
	username = model.NormalizeUsername(username)
	if username == "" {
		return nil, apperr.BadRequest("username is required")
	}
	found, err := s.users.SearchByUsername(ctx, username, SearchLimit)
	if err != nil {
		return nil, apperr.Internal("user search failed", err)
	}
	if len(found) == 0 {
		return nil, apperr.NotFound("user not found")
	}
	out := make([]model.User, len(found))
	for i, u := range found {
		out[i] = u.Public()
	}
	return out, nil
}

func (s *AuthService) UpdateRole(ctx context.Context, targetID, role string) (*model.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !model.ValidRole(role) {
		return nil, apperr.BadRequest("role must be one of student, admin, superadmin")
	}
	err := s.users.UpdateRole(ctx, targetID, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found for role update")
	}
	if err != nil {
		return nil, apperr.Internal("could not update role", err)
	}
	s.log.Info().Str("user_id", targetID).Str("role", role).Msg("role updated")
	return s.Me(ctx, targetID)
}

func (s *AuthService) mint(u *model.User) (*Session, error) {
	access, err := s.issuer.IssueAccessToken(*u)
	if err != nil {
		return nil, apperr.Internal("something went wrong while generating tokens", err)
	}
	refresh, err := s.issuer.IssueRefreshToken(u.ID)
	if err != nil {
		return nil, apperr.Internal("something went wrong while generating tokens", err)
	}
	return &Session{User: u.Public(), Access: access, Refresh: refresh}, nil
}

// startSession issues a token pair and makes the new refresh token the
// only valid one for u.
func (s *AuthService) startSession(ctx context.Context, u *model.User) (*Session, error) {
	sess, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.SetRefresh(ctx, u.ID, utils.HashRefreshRaw(sess.Refresh.Raw)); err != nil {
		return nil, apperr.Internal("could not start session", err)
	}
	return sess, nil
}

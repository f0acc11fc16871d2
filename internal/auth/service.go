// Package auth manages accounts: password credentials, bearer tokens,
// sign-out revocation, password resets, and the admin role lookup.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"laundryonline/internal/apperr"
	"laundryonline/internal/model"
)

// Identity is the signed-in user as seen by the rest of the service.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Identity  Identity  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EventType names an auth state change.
type EventType string

const (
	SignedIn  EventType = "signed_in"
	SignedOut EventType = "signed_out"
)

// Event is delivered to OnAuthStateChanged listeners.
type Event struct {
	Type     EventType
	Identity Identity
}

// Options configures a Service.
type Options struct {
	Token             TokenConfig
	ResetTTL          time.Duration
	AdminEmails       []string
	MinPasswordLength int
	ResetURL          string
	Mailer            Mailer
}

// Service implements the account operations on top of the users table.
type Service struct {
	db   *gorm.DB
	opts Options

	// revoked holds token IDs signed out before their expiry.
	revoked *cache.Cache
	// resets maps one-time reset tokens to user IDs.
	resets *cache.Cache

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event)
}

// NewService creates a Service.
func NewService(db *gorm.DB, opts Options) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 6
	}
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{}
	}
	return &Service{
		db:        db,
		opts:      opts,
		revoked:   cache.New(opts.Token.Expiry, 10*time.Minute),
		resets:    cache.New(opts.ResetTTL, 10*time.Minute),
		listeners: make(map[int]func(Event)),
	}
}

// TokenConfig returns the token settings, for middleware that only verifies.
func (s *Service) TokenConfig() TokenConfig {
	return s.opts.Token
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	const op = "auth.signup"
	email, err := normalizeEmail(op, email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(op, password); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperr.Network(op, err)
	}
	if count > 0 {
		return nil, apperr.Conflict(op, "an account with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperr.Network(op, err)
	}
	log.Printf("Created account %s", user.ID)
	return s.startSession(op, user)
}

// SignIn checks credentials and issues a token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	const op = "auth.signin"
	user, err := s.userByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.AuthFailure(op, "invalid email or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.AuthFailure(op, "invalid email or password")
	}
	return s.startSession(op, user)
}

// SignOut revokes token until it would have expired.
func (s *Service) SignOut(ctx context.Context, token string) error {
	const op = "auth.signout"
	claims, err := VerifyToken(token, s.opts.Token)
	if err != nil {
		return apperr.AuthFailure(op, "invalid authentication token")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		s.revoked.Set(claims.ID, true, ttl)
	}
	ident := Identity{UID: claims.UserID}
	if user, err := s.userByID(ctx, claims.UserID); err == nil {
		ident = identityOf(user)
	}
	s.emit(Event{Type: SignedOut, Identity: ident})
	return nil
}

// Verify resolves a bearer token to the identity it was issued for.
func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	const op = "auth.verify"
	claims, err := VerifyToken(token, s.opts.Token)
	if err != nil {
		return Identity{}, apperr.AuthFailure(op, "invalid authentication token")
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return Identity{}, apperr.AuthFailure(op, "session has been signed out")
	}
	user, err := s.userByID(ctx, claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Identity{}, apperr.AuthFailure(op, "account no longer exists")
		}
		return Identity{}, err
	}
	return identityOf(user), nil
}

// SendPasswordReset mails a one-time reset link. Unknown addresses succeed
// silently so callers cannot probe for accounts.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	const op = "auth.password_reset"
	email, err := normalizeEmail(op, email)
	if err != nil {
		return err
	}
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	token := uuid.NewString()
	s.resets.Set(token, user.ID, s.opts.ResetTTL)
	if err := s.opts.Mailer.SendPasswordReset(ctx, user.Email, s.resetLink(token)); err != nil {
		s.resets.Delete(token)
		return apperr.Network(op, err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.password_reset_confirm"
	v, ok := s.resets.Get(token)
	if !ok {
		return apperr.AuthFailure(op, "reset link is invalid or has expired")
	}
	if err := s.checkPassword(op, newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", v.(string)).
		Updates(map[string]any{"password_hash": string(hash), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return apperr.Network(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.AuthFailure(op, "reset link is invalid or has expired")
	}
	s.resets.Delete(token)
	return nil
}

// UpdateProfile changes the display name of uid.
func (s *Service) UpdateProfile(ctx context.Context, uid, displayName string) (Identity, error) {
	const op = "auth.update_profile"
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Identity{}, apperr.InvalidInput(op, "display name is required")
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", uid).
		Updates(map[string]any{"display_name": displayName, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return Identity{}, apperr.Network(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return Identity{}, apperr.NotFound(op, "account not found")
	}
	user, err := s.userByID(ctx, uid)
	if err != nil {
		return Identity{}, err
	}
	return identityOf(user), nil
}

// IsAdmin reports whether uid may mutate machines: either its role is admin
// or its email is listed in the configured admin emails.
func (s *Service) IsAdmin(ctx context.Context, uid string) (bool, error) {
	user, err := s.userByID(ctx, uid)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.Role == model.RoleAdmin {
		return true, nil
	}
	for _, e := range s.opts.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), user.Email) {
			return true, nil
		}
	}
	return false, nil
}

// OnAuthStateChanged registers cb for sign-in and sign-out events. The
// returned function removes it.
func (s *Service) OnAuthStateChanged(cb func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	cbs := make([]func(Event), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (s *Service) startSession(op string, user model.User) (*Session, error) {
	token, claims, err := CreateToken(user.ID, s.opts.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sess := &Session{Identity: identityOf(user), Token: token, ExpiresAt: claims.ExpiresAt.Time}
	s.emit(Event{Type: SignedIn, Identity: sess.Identity})
	return sess, nil
}

func (s *Service) resetLink(token string) string {
	if s.opts.ResetURL == "" {
		return token
	}
	u, err := url.Parse(s.opts.ResetURL)
	if err != nil {
		return s.opts.ResetURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Service) checkPassword(op, password string) error {
	if len(password) < s.opts.MinPasswordLength {
		return apperr.InvalidInput(op, fmt.Sprintf("password must be at least %d characters", s.opts.MinPasswordLength))
	}
	return nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return model.User{}, lookupError("auth.user", err)
	}
	return user, nil
}

func (s *Service) userByID(ctx context.Context, uid string) (model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", uid).Error; err != nil {
		return model.User{}, lookupError("auth.user", err)
	}
	return user, nil
}

func lookupError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "account not found")
	}
	return apperr.Network(op, err)
}

func normalizeEmail(op, raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.InvalidInput(op, "a valid email address is required")
	}
	return strings.ToLower(addr.Address), nil
}

func identityOf(u model.User) Identity {
	return Identity{UID: u.ID, Email: u.Email, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

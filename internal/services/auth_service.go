package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/google/uuid"

	"pairchat/internal/models"
	"pairchat/internal/store"
	"pairchat/internal/utils"
	"pairchat/pkg/logger"
)

var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountNotFound    = errors.New("account not found")
)

const authOpTimeout = 10 * time.Second

// AuthService manages credential accounts and mirrors the public profile
// into the users collection the roster is derived from.
type AuthService struct {
	accountCollection *mongo.Collection
	store             store.Store
}

func NewAuthService(db *mongo.Database, st store.Store) *AuthService {
	return &AuthService{
		accountCollection: db.Collection("accounts"),
		store:             st,
	}
}

// SignUp creates a password account. The email must be unused across all
// providers.
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, authOpTimeout)
	defer cancel()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if name = strings.TrimSpace(name); name == "" {
		name = email[:strings.Index(email, "@")]
	}

	count, err := s.accountCollection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailInUse
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Provider:     models.ProviderPassword,
		CreatedAt:    time.Now(),
		LastLogin:    time.Now(),
	}

	if _, err := s.accountCollection.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.publishProfile(ctx, account); err != nil {
		logger.LogError(err, "Failed to publish new profile", map[string]interface{}{
			"uid": account.UID,
		})
	}

	logger.LogUserAction(account.UID, "signup", map[string]interface{}{
		"provider": account.Provider,
	})
	return account, nil
}

// SignIn verifies email and password. A wrong email and a wrong password
// return the same error.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, authOpTimeout)
	defer cancel()

	email = normalizeEmail(email)

	var account models.Account
	err := s.accountCollection.FindOne(ctx, bson.M{"email": email}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if account.Provider != models.ProviderPassword || !utils.CheckPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	s.touchLastLogin(ctx, account.UID)

	logger.LogUserAction(account.UID, "signin", map[string]interface{}{
		"provider": account.Provider,
	})
	return &account, nil
}

// SignInWithGoogle creates or fetches a federated account for a Google
// profile. An existing account keeps its stored name; the avatar follows
// the provider.
func (s *AuthService) SignInWithGoogle(ctx context.Context, email, name, avatarURL string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, authOpTimeout)
	defer cancel()

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	var account models.Account
	err := s.accountCollection.FindOne(ctx, bson.M{"email": email}).Decode(&account)
	switch {
	case err == nil:
		if account.Provider != models.ProviderGoogle {
			return nil, ErrEmailInUse
		}
		if avatarURL != "" && avatarURL != account.AvatarURL {
			account.AvatarURL = avatarURL
			_, err = s.accountCollection.UpdateOne(ctx,
				bson.M{"_id": account.UID},
				bson.M{"$set": bson.M{"avatar_url": avatarURL}},
			)
			if err != nil {
				logger.WithError(err).Warn("Failed to refresh avatar")
			}
		}
		s.touchLastLogin(ctx, account.UID)

	case errors.Is(err, mongo.ErrNoDocuments):
		if name = strings.TrimSpace(name); name == "" {
			name = email[:strings.Index(email, "@")]
		}
		account = models.Account{
			UID:       uuid.New().String(),
			Email:     email,
			Name:      name,
			AvatarURL: avatarURL,
			Provider:  models.ProviderGoogle,
			CreatedAt: time.Now(),
			LastLogin: time.Now(),
		}
		if _, err := s.accountCollection.InsertOne(ctx, &account); err != nil {
			return nil, fmt.Errorf("failed to create federated account: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := s.publishProfile(ctx, &account); err != nil {
		logger.LogError(err, "Failed to publish profile", map[string]interface{}{
			"uid": account.UID,
		})
	}

	logger.LogUserAction(account.UID, "signin", map[string]interface{}{
		"provider": account.Provider,
	})
	return &account, nil
}

// GetAccount fetches an account by uid.
func (s *AuthService) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, authOpTimeout)
	defer cancel()

	var account models.Account
	err := s.accountCollection.FindOne(ctx, bson.M{"_id": uid}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return &account, nil
}

// publishProfile mirrors the public fields into the users collection so
// the signed-in user appears in other rosters. Merge keeps the live
// online flag intact.
func (s *AuthService) publishProfile(ctx context.Context, account *models.Account) error {
	profile := account.Profile()
	fields := map[string]interface{}{
		"uid":        profile.UID,
		"name":       profile.Name,
		"avatar_url": profile.AvatarURL,
	}
	return s.store.SetDocument(ctx, "users/"+profile.UID, fields, true)
}

func (s *AuthService) touchLastLogin(ctx context.Context, uid string) {
	_, err := s.accountCollection.UpdateOne(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": bson.M{"last_login": time.Now()}},
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to record last login")
	}
}

func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

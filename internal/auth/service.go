package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/repository"
)

// TokenIssuer はログイン成功時にトークンを発行するインターフェース。
type TokenIssuer interface {
	Issue(subject int64) (string, error)
}

// PasswordHasher はパスワードハッシュの生成と照合を行うインターフェース。
// ハッシュの形式はこのパッケージからは不透明として扱う。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

const (
	// minPasswordLength はパスワードの最小文字数。
	minPasswordLength = 8
	// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
	maxPasswordBytes = 72
	// maxUsernameLength はusers.usernameカラムの長さ。
	maxUsernameLength = 100
)

// Service はユーザー登録とログインのビジネスロジックを提供する。
// パスワード検証に成功した場合のみTokenIssuerを呼び出す。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Register は新規ユーザーを登録する。
// メールアドレスが登録済みの場合はEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if username == "" {
		return nil, model.NewValidationError("ユーザー名が空です")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, model.NewValidationError(fmt.Sprintf("ユーザー名は%d文字以内で指定してください", maxUsernameLength))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で指定してください", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で指定してください", maxPasswordBytes))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、成功時にトークンを発行する。
// ユーザー不在とパスワード不一致は同一のINVALID_CREDENTIALSとして返す。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return token, nil
}

// normalizeEmail は前後の空白を除去し小文字に揃える。
// 大文字小文字違いの同一アドレスを別アカウントとして登録させない。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CurrentUser は識別情報に対応するユーザーを返す。
// 有効なトークンでもユーザーが削除済みの場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

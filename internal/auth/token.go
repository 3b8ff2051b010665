// Package auth はIDトークンの発行・検証とログイン処理を提供する。
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証エラー。
// RequestAuthenticatorはこれらを区別せず匿名リクエストとして扱う。
var (
	// ErrMalformed はトークンが構造的に不正、またはsubjectクレームが欠落・破損している場合のエラー。
	ErrMalformed = errors.New("token is malformed")
	// ErrInvalidSignature は署名がペイロードと一致しない場合のエラー。
	ErrInvalidSignature = errors.New("token signature is invalid")
	// ErrExpired は有効期限を過ぎたトークンのエラー。
	ErrExpired = errors.New("token is expired")
)

// TokenConfig はTokenServiceの設定。
type TokenConfig struct {
	// Secret はHS256署名に用いるプロセス共通の共通鍵。
	Secret []byte
	// TTL はトークンの有効期間。0の場合はexpクレームを付与せず、無期限となる。
	TTL time.Duration
	// Now は現在時刻を返す関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// TokenService は署名付きIDトークンの発行と検証を行う。
// 失効リストを持たないため、漏洩したトークンは期限切れまで有効であり、
// 対処は鍵のローテーション（全トークンの無効化）のみとなる。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(config TokenConfig) *TokenService {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret: config.Secret,
		ttl:    config.TTL,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(now),
			jwt.WithStrictDecoding(),
		),
	}
}

// Issue はsubjectを唯一の識別クレームとして埋め込んだトークンを発行する。
func (s *TokenService) Issue(subject int64) (string, error) {
	issuedAt := s.now()

	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatInt(subject, 10),
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名を再計算して照合し、一致した場合のみsubjectを返す。
func (s *TokenService) Verify(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return 0, classify(token, err)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid subject claim", ErrMalformed)
	}
	return subject, nil
}

// segmentEncoding はトークンの各セグメントの符号化方式。
// 末尾文字の余剰ビットが0でない値も拒否する。
var segmentEncoding = base64.RawURLEncoding.Strict()

// classify はjwtライブラリのエラーを検証エラーの分類に変換する。
// 署名不一致の判定を期限切れより優先する。
// ヘッダーとペイロードが正しく、署名セグメントだけが復号できない場合も署名不一致とする。
func classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed) && corruptSignatureSegment(token):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// corruptSignatureSegment は先頭2セグメントが復号でき、以降の署名部分が復号できない場合にtrueを返す。
// 署名部分に区切り文字が混入した場合も含む。
func corruptSignatureSegment(token string) bool {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return false
	}
	for _, seg := range parts[:2] {
		if _, err := segmentEncoding.DecodeString(seg); err != nil {
			return false
		}
	}
	_, err := segmentEncoding.DecodeString(parts[2])
	return err != nil
}

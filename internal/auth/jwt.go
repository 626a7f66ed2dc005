package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/planner/internal/model"
)

// ErrInvalidAccessToken はアクセストークンの署名・有効期限・主体が不正であることを示す。
var ErrInvalidAccessToken = errors.New("invalid access token")

// accessTokenClaims はIDプロバイダーが発行するアクセストークンのクレーム。
type accessTokenClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier はHS256で署名されたアクセストークンをローカルで検証する。
type JWTVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewJWTVerifier はJWTVerifierを生成する。
// audienceが空の場合はaudクレームを検証しない。
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience, now: time.Now}
}

// VerifyAccessToken はトークンを検証し、主体のユーザーを返す。
func (v *JWTVerifier) VerifyAccessToken(_ context.Context, tokenString string) (*model.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &accessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}

	name := claims.UserMetadata.Name
	if name == "" {
		name = claims.UserMetadata.FullName
	}
	return &model.User{ID: claims.Subject, Email: claims.Email, Name: name}, nil
}

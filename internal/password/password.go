// Package password はパスワードのハッシュ化と検証を提供します。
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt のソルトラウンド数です。
const DefaultCost = 10

// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合に返されます。
var ErrEmptyPassword = errors.New("password is empty")

// Hasher は bcrypt によるハッシュ化と検証を行います。
type Hasher struct {
	cost int
}

// NewHasher は Hasher を作成します。cost が範囲外の場合は DefaultCost を使います。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードのハッシュを返します。
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify はハッシュと平文が一致するかどうかを返します。
func (h *Hasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

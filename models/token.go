package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, kimlik token'ının payload'ı.
//
// Token bu servis tarafından üretilmez; aynı JWT_SECRET'i paylaşan kimlik
// servisinden gelir. Kullanıcı ID'si standart "sub" claim'inde taşınır ve
// admission bucket'larının anahtarı olarak kullanılır.
type TokenClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID, "sub" claim'i.
func (c *TokenClaims) UserID() string {
	return c.Subject
}

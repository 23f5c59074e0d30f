package qr

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	apperrors "campuseats/pkg/errors"
)

// HandoffClaims is the self-contained handoff token body. The order id is
// all a scanner needs; no server-side session is involved in decoding.
type HandoffClaims struct {
	OrderID string `json:"orderId"`
	jwt.StandardClaims
}

// Codec issues and decodes handoff tokens. Issued tokens are HS256-signed
// JWTs; Decode also accepts a bare order id payload, which is what older
// customer QR codes carried.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue creates the signed token encoded into the customer's QR code.
func (c *Codec) Issue(orderID string) (string, error) {
	claims := HandoffClaims{
		OrderID: orderID,
		StandardClaims: jwt.StandardClaims{
			Subject:  orderID,
			IssuedAt: time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode extracts the order id from a scanned payload. A payload shaped
// like a JWT must verify against the signing secret; anything else is
// treated as a bare order id. Unverifiable tokens resolve to no order.
func (c *Codec) Decode(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", apperrors.ErrNotFound
	}
	if strings.Count(payload, ".") != 2 {
		return payload, nil
	}

	claims := &HandoffClaims{}
	token, err := jwt.ParseWithClaims(payload, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid || claims.OrderID == "" {
		return "", apperrors.ErrNotFound
	}
	return claims.OrderID, nil
}

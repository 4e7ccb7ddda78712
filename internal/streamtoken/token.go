// Package streamtoken mints and verifies short-lived signed URLs for
// audio-file streaming and cover-art requests. There is no session/password
// layer in this system (token format and credential storage are explicitly
// out of scope), so a client authenticated by whatever fronts this service
// exchanges an X-User-Id for a token scoped to one audio file, valid for a
// short window — a stream URL handed to a <audio> tag or shared link can't
// be replayed forever.
package streamtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"melodia/internal/apperr"
)

// Claims scopes a token to exactly one audio file and one purpose (stream
// or cover-art): a stream token can't be used to fetch cover art and vice
// versa, so leaking one doesn't widen access beyond its intended use.
type Claims struct {
	AudioFileID int64  `json:"audio_file_id"`
	Purpose     string `json:"purpose"`
	jwt.RegisteredClaims
}

const (
	PurposeStream   = "stream"
	PurposeCoverArt = "cover-art"
)

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) Issue(audioFileID int64, purpose string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		AudioFileID: audioFileID,
		Purpose:     purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   fmt.Sprintf("audio-file:%d", audioFileID),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign stream token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks tokenString was signed by this Signer, matches purpose, and
// scopes to audioFileID.
func (s *Signer) Verify(tokenString string, purpose string, audioFileID int64) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return apperr.Auth("invalid stream token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return apperr.Auth("invalid stream token")
	}
	if claims.Purpose != purpose || claims.AudioFileID != audioFileID {
		return apperr.Auth("stream token not valid for this resource")
	}
	return nil
}

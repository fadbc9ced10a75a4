package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// AuthorDecoder turns a bearer token into the username it was issued for.
type AuthorDecoder interface {
	DecodeAuthor(token string) (string, error)
}

// AuthorVerifier checks JWTs issued by the external identity authority.
// The username is read from the "username" claim.
type AuthorVerifier struct {
	key     any
	methods []string
	issuer  string

	// Now is the clock used for exp/nbf checks.
	Now func() time.Time
}

// NewAuthorVerifier accepts either a shared HMAC secret or a PEM encoded
// RSA, ECDSA or Ed25519 public key.
func NewAuthorVerifier(key, issuer string) (*AuthorVerifier, error) {
	v := &AuthorVerifier{issuer: issuer, Now: time.Now}
	if key == "" {
		return nil, errors.New("author token key is empty")
	}
	if !strings.Contains(key, "-----BEGIN") {
		v.key = []byte(key)
		v.methods = []string{"HS256", "HS384", "HS512"}
		return v, nil
	}

	pem := []byte(key)
	if k, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		v.key = k
		v.methods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}
		return v, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		v.key = k
		v.methods = []string{"ES256", "ES384", "ES512"}
		return v, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(pem); err == nil {
		v.key = k
		v.methods = []string{"EdDSA"}
		return v, nil
	}
	return nil, errors.New("author token key: unsupported PEM public key")
}

func (v *AuthorVerifier) DecodeAuthor(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: %w: missing token", ErrAuth, ErrTokenInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", ErrAuth, ErrTokenExpired)
		}
		return "", fmt.Errorf("%w: %w: %v", ErrAuth, ErrTokenInvalid, err)
	}

	name, _ := claims["username"].(string)
	if name == "" {
		return "", fmt.Errorf("%w: %w: no username claim", ErrAuth, ErrTokenInvalid)
	}
	return name, nil
}

// ModerationCodec signs (comment id, thread name) pairs for the links sent
// to moderators. A token is three base64url segments joined by dots:
// payload, issue time and HMAC-SHA256 of the first two.
type ModerationCodec struct {
	key []byte

	// Now is the clock used for the issue timestamp and the age check.
	Now func() time.Time
}

type moderationPayload struct {
	CommentID uint   `json:"c"`
	Thread    string `json:"t"`
}

var b64 = base64.RawURLEncoding

// NewModerationCodec derives the signing key from secret with HKDF.
func NewModerationCodec(secret string) (*ModerationCodec, error) {
	if secret == "" {
		return nil, errors.New("moderation secret is empty")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("murmur/moderation-token"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive moderation key: %w", err)
	}
	return &ModerationCodec{key: key, Now: time.Now}, nil
}

func (m *ModerationCodec) sign(msg string) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func (m *ModerationCodec) Encode(commentID uint, thread string) (string, error) {
	payload, err := json.Marshal(moderationPayload{CommentID: commentID, Thread: thread})
	if err != nil {
		return "", err
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.Now().Unix()))

	signed := b64.EncodeToString(payload) + "." + b64.EncodeToString(ts[:])
	return signed + "." + b64.EncodeToString(m.sign(signed)), nil
}

// Decode verifies the signature before looking at the age, so a tampered
// token is always ErrTokenInvalid.
func (m *ModerationCodec) Decode(token string, maxAge time.Duration) (uint, string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, "", ErrTokenInvalid
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return 0, "", ErrTokenInvalid
	}
	if !hmac.Equal(sig, m.sign(parts[0]+"."+parts[1])) {
		return 0, "", ErrTokenInvalid
	}

	ts, err := b64.DecodeString(parts[1])
	if err != nil || len(ts) != 8 {
		return 0, "", ErrTokenInvalid
	}
	issued := time.Unix(int64(binary.BigEndian.Uint64(ts)), 0)
	if age := m.Now().Sub(issued); age > maxAge {
		return 0, "", fmt.Errorf("%w: issued %s ago", ErrTokenExpired, age.Truncate(time.Second))
	}

	raw, err := b64.DecodeString(parts[0])
	if err != nil {
		return 0, "", ErrTokenInvalid
	}
	var p moderationPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.CommentID == 0 {
		return 0, "", ErrTokenInvalid
	}
	return p.CommentID, p.Thread, nil
}

package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/hkdf"
)

// TokenIntent tags what a confirmation token may be used for
type TokenIntent = string

const (
	// IntentSignup confirms ownership of an email before creating an account
	IntentSignup TokenIntent = "signup"
	// IntentRecoverPassword allows setting a new password
	IntentRecoverPassword TokenIntent = "recover-password"
)

const (
	encKeyInfo = "go-accounts token encryption"
	macKeyInfo = "go-accounts token signature"
	keySize    = 32
)

var tokenEncoding = base64.RawURLEncoding.Strict()

// TokenPayload is the content carried by a confirmation token
type TokenPayload struct {
	Email    string      `json:"email"`
	Intent   TokenIntent `json:"intent"`
	IssuedAt int64       `json:"iat"`
}

// TokenSignerOption configures a TokenSigner
type TokenSignerOption func(*TokenSigner)

// WithTokenClock overrides the time source
func WithTokenClock(now func() time.Time) TokenSignerOption {
	return func(s *TokenSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// TokenSigner issues opaque, tamper evident and time limited tokens.
// Payloads are sealed with AES-GCM and the result is signed with
// HMAC-SHA256, both keys derived from a single secret.
type TokenSigner struct {
	encryptionKey []byte
	hmacKey       []byte
	now           func() time.Time
}

// NewTokenSigner derives the signer keys from secret
func NewTokenSigner(secret string, opts ...TokenSignerOption) (*TokenSigner, error) {
	if secret == "" {
		return nil, goerrors.New("token signer requires a secret key", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	encKey, err := deriveKey(secret, encKeyInfo)
	if err != nil {
		return nil, err
	}

	macKey, err := deriveKey(secret, macKeyInfo)
	if err != nil {
		return nil, err
	}

	s := &TokenSigner{
		encryptionKey: encKey,
		hmacKey:       macKey,
		now:           time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

// Sign seals payload into a URL safe token. IssuedAt is always set
// from the signer clock.
func (s *TokenSigner) Sign(payload TokenPayload) (string, error) {
	payload.IssuedAt = s.now().Unix()

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal token payload")
	}

	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate nonce")
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	signature := s.sign(ciphertext)

	return tokenEncoding.EncodeToString(append(signature, ciphertext...)), nil
}

// Unsign verifies token and returns its payload. The signature is
// checked before anything else. A non positive maxAge rejects every
// token as expired.
func (s *TokenSigner) Unsign(token string, maxAge time.Duration) (*TokenPayload, error) {
	data, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if len(data) < sha256.Size {
		return nil, ErrTokenInvalid
	}

	signature, ciphertext := data[:sha256.Size], data[sha256.Size:]
	if !hmac.Equal(signature, s.sign(ciphertext)) {
		return nil, ErrTokenInvalid
	}

	gcm, err := s.cipher()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrTokenInvalid
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	var payload TokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, ErrTokenInvalid
	}

	age := s.now().Unix() - payload.IssuedAt
	if age < 0 {
		return nil, ErrTokenInvalid
	}
	if maxAge <= 0 || time.Duration(age)*time.Second > maxAge {
		return nil, ErrTokenExpired
	}

	return &payload, nil
}

// UnsignIntent is Unsign that also requires the payload intent to
// match. A token minted for another flow is reported as invalid.
func (s *TokenSigner) UnsignIntent(token string, intent TokenIntent, maxAge time.Duration) (*TokenPayload, error) {
	payload, err := s.Unsign(token, maxAge)
	if err != nil {
		return nil, err
	}

	if payload.Intent != intent || payload.Email == "" {
		return nil, ErrTokenInvalid
	}

	return payload, nil
}

func (s *TokenSigner) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write(data)
	return mac.Sum(nil)
}

func (s *TokenSigner) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create GCM")
	}
	return gcm, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive key")
	}
	return key, nil
}

package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// HashBcrypt uses bcrypt with a configurable cost
	HashBcrypt = "bcrypt"
	// HashArgon2id produces PHC formatted argon2id hashes
	HashArgon2id = "argon2id"
	// HashPBKDF2 produces "pbkdf2:sha256:N$salt$hex" hashes
	HashPBKDF2 = "pbkdf2:sha256"
)

const (
	defaultPBKDF2Iterations = 600000
	pbkdf2SaltLength        = 16
	saltChars               = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	argon2Time    uint32 = 1
	argon2Memory  uint32 = 64 * 1024
	argon2Threads uint8  = 4
	argon2KeyLen  uint32 = 32
	argon2SaltLen        = 16
)

// HasherOption configures a password hasher
type HasherOption func(*passwordHasher)

// WithBcryptCost sets the bcrypt work factor
func WithBcryptCost(cost int) HasherOption {
	return func(h *passwordHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.bcryptCost = cost
		}
	}
}

// WithPBKDF2Iterations sets the pbkdf2 round count
func WithPBKDF2Iterations(n int) HasherOption {
	return func(h *passwordHasher) {
		if n > 0 {
			h.iterations = n
		}
	}
}

type passwordHasher struct {
	method     string
	bcryptCost int
	iterations int
}

// NewPasswordHasher returns a hasher that produces hashes with the
// given method. Verify accepts hashes of every supported method since
// the stored value names the method that produced it.
//
// method is one of bcrypt, argon2id, pbkdf2:sha256 or
// pbkdf2:sha256:<iterations>.
func NewPasswordHasher(method string, opts ...HasherOption) (PasswordHasher, error) {
	h := &passwordHasher{
		method:     HashBcrypt,
		bcryptCost: passwordHashCost(),
		iterations: defaultPBKDF2Iterations,
	}

	switch {
	case method == "" || method == HashBcrypt:
	case method == HashArgon2id:
		h.method = HashArgon2id
	case method == HashPBKDF2:
		h.method = HashPBKDF2
	case strings.HasPrefix(method, HashPBKDF2+":"):
		n, err := strconv.Atoi(strings.TrimPrefix(method, HashPBKDF2+":"))
		if err != nil || n <= 0 {
			return nil, ErrUnknownHashMethod.Clone().WithMetadata(map[string]any{
				"method": method,
			})
		}
		h.method = HashPBKDF2
		h.iterations = n
	default:
		return nil, ErrUnknownHashMethod.Clone().WithMetadata(map[string]any{
			"method": method,
		})
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h, nil
}

// MustPasswordHasher is NewPasswordHasher that panics on error
func MustPasswordHasher(method string, opts ...HasherOption) PasswordHasher {
	h, err := NewPasswordHasher(method, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *passwordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	switch h.method {
	case HashArgon2id:
		return hashArgon2id(password)
	case HashPBKDF2:
		return hashPBKDF2(password, h.iterations)
	default:
		b, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "bcrypt hash failed")
		}
		return string(b), nil
	}
}

func (h *passwordHasher) Verify(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}

	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(hash, password)
	case strings.HasPrefix(hash, "pbkdf2:"):
		return verifyPBKDF2(hash, password)
	case strings.HasPrefix(hash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return false
}

func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(encoded, password string) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func hashPBKDF2(password string, iterations int) (string, error) {
	salt, err := randomSalt(pbkdf2SaltLength)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("%s:%d$%s$%s", HashPBKDF2, iterations, salt, hex.EncodeToString(key)), nil
}

func verifyPBKDF2(encoded, password string) bool {
	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 {
		return false
	}

	// pbkdf2:sha256[:iterations]
	method := strings.Split(parts[0], ":")
	if len(method) < 2 || len(method) > 3 || method[1] != "sha256" {
		return false
	}

	iterations := defaultPBKDF2Iterations
	if len(method) == 3 {
		n, err := strconv.Atoi(method[2])
		if err != nil || n <= 0 {
			return false
		}
		iterations = n
	}

	want, err := hex.DecodeString(parts[2])
	if err != nil || len(want) == 0 {
		return false
	}

	got := pbkdf2.Key([]byte(password), []byte(parts[1]), iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func randomSalt(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltChars)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = saltChars[idx.Int64()]
	}
	return string(out), nil
}

// Package cryptox implements one-way password digests.
//
// New digests use argon2id and are stored in the PHC string format
//
//	$argon2id$v=19$m=<memory KiB>,t=<iterations>,p=<threads>$<salt>$<key>
//
// so every digest carries the algorithm and cost it was produced with.
// Verification reads those parameters back from the digest, which keeps old
// digests valid after the configured cost changes. bcrypt digests ($2a$,
// $2b$, $2y$) are accepted for verification only.
package cryptox

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const argon2idPrefix = "$argon2id$"

var errMalformedDigest = errors.New("malformed digest")

// Argon2Params controls the cost of new digests.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2Params follows the RFC 9106 second recommended option scaled
// down to 64 MiB.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4, SaltLen: 16, KeyLen: 32}
}

// PasswordHasher produces and checks password digests and is safe for
// concurrent use. At most maxConcurrent digests are computed at once, which
// caps argon2 memory at maxConcurrent * MemoryKiB; further callers wait.
type PasswordHasher struct {
	params Argon2Params
	sem    *semaphore.Weighted
}

// Option tunes a PasswordHasher.
type Option func(*hasherOptions)

type hasherOptions struct {
	maxConcurrent int
}

// WithMaxConcurrent limits how many digests are computed at once. n <= 0
// means GOMAXPROCS.
func WithMaxConcurrent(n int) Option {
	return func(o *hasherOptions) { o.maxConcurrent = n }
}

func NewPasswordHasher(p Argon2Params, opts ...Option) *PasswordHasher {
	var o hasherOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = runtime.GOMAXPROCS(0)
	}

	d := DefaultArgon2Params()
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.SaltLen == 0 {
		p.SaltLen = d.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	return &PasswordHasher{params: p, sem: semaphore.NewWeighted(int64(o.maxConcurrent))}
}

// slot blocks until a digest may be computed and returns its release.
func (h *PasswordHasher) slot() func() {
	// Acquire fails only on a done context
	_ = h.sem.Acquire(context.Background(), 1)
	return func() { h.sem.Release(1) }
}

// Hash returns a fresh digest of plaintext using a per-call random salt.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	defer h.slot()()
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)
	return encodeArgon2id(h.params, salt, key), nil
}

// Verify reports whether plaintext matches digest. An empty or unrecognised
// digest never matches.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	defer h.slot()()

	switch {
	case strings.HasPrefix(digest, argon2idPrefix):
		p, salt, key, err := decodeArgon2id(digest)
		if err != nil {
			return false
		}
		candidate := argon2.IDKey([]byte(plaintext), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(key)))
		return subtle.ConstantTimeCompare(key, candidate) == 1
	case isBcrypt(digest):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether digest was produced with a different
// algorithm or cost than the hasher is configured for.
func (h *PasswordHasher) NeedsRehash(digest string) bool {
	if !strings.HasPrefix(digest, argon2idPrefix) {
		return true
	}
	p, _, key, err := decodeArgon2id(digest)
	if err != nil {
		return true
	}
	return p.Time != h.params.Time ||
		p.MemoryKiB != h.params.MemoryKiB ||
		p.Threads != h.params.Threads ||
		uint32(len(key)) != h.params.KeyLen
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func encodeArgon2id(p Argon2Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decodeArgon2id(digest string) (Argon2Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}

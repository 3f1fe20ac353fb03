// Package otp implements issuance, verification, and resend throttling of
// email one-time passcodes. Only a SHA-256 hash of the code is ever kept, so
// a leaked context or log line cannot be replayed.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	// DefaultExpiry is how long an issued code stays valid.
	DefaultExpiry = 5 * time.Minute
	// DefaultResendCooldown is the minimum gap between two sends.
	DefaultResendCooldown = 30 * time.Second
	// DefaultMaxResends caps resends for one issued email.
	DefaultMaxResends = 3
)

// Record tracks the live code for one email address. A fresh Issue fully
// overwrites the prior record; only Resend carries the counter forward.
type Record struct {
	Email       string
	Hash        string
	ExpiresAt   time.Time
	LastSentAt  time.Time
	ResendCount int
	Verified    bool
}

// Result is the three-way outcome of Verify. A boolean would collapse
// "ask to retry" and "ask to resend" into one user-facing recovery.
type Result int

const (
	VerifyOK Result = iota
	VerifyExpired
	VerifyMismatch
)

func (r Result) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyExpired:
		return "expired"
	default:
		return "mismatch"
	}
}

// ThrottleError signals a refused resend. Wait is non-zero when the caller
// only has to sit out the cooldown; Exhausted means no more resends at all.
type ThrottleError struct {
	Exhausted bool
	Wait      time.Duration
}

func (e *ThrottleError) Error() string {
	if e.Exhausted {
		return "otp: resend limit reached"
	}
	return fmt.Sprintf("otp: resend cooldown, wait %s", e.Wait)
}

// Guard generates and checks one-time codes. The zero value uses real time,
// crypto/rand, and the default policy; tests inject Now.
type Guard struct {
	Expiry         time.Duration
	ResendCooldown time.Duration
	MaxResends     int
	Now            func() time.Time
	Rand           io.Reader
}

// NewGuard returns a guard with the default policy.
func NewGuard() *Guard {
	return &Guard{
		Expiry:         DefaultExpiry,
		ResendCooldown: DefaultResendCooldown,
		MaxResends:     DefaultMaxResends,
	}
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Guard) expiry() time.Duration {
	if g.Expiry > 0 {
		return g.Expiry
	}
	return DefaultExpiry
}

func (g *Guard) cooldown() time.Duration {
	if g.ResendCooldown > 0 {
		return g.ResendCooldown
	}
	return DefaultResendCooldown
}

func (g *Guard) maxResends() int {
	if g.MaxResends > 0 {
		return g.MaxResends
	}
	return DefaultMaxResends
}

// Issue generates a fresh 6-digit code for the email, resetting any prior
// record including the resend counter. The clear code is returned exactly
// once for delivery and never stored.
func (g *Guard) Issue(email string) (Record, string, error) {
	code, err := g.generate()
	if err != nil {
		return Record{}, "", err
	}
	now := g.now()
	return Record{
		Email:      email,
		Hash:       HashCode(code),
		ExpiresAt:  now.Add(g.expiry()),
		LastSentAt: now,
	}, code, nil
}

// Resend rotates the code on an existing record, enforcing the resend cap
// and cooldown. The returned wait is how long the caller must hold off.
func (g *Guard) Resend(rec Record) (Record, string, error) {
	if rec.ResendCount >= g.maxResends() {
		return rec, "", &ThrottleError{Exhausted: true}
	}
	now := g.now()
	if !rec.LastSentAt.IsZero() {
		if elapsed := now.Sub(rec.LastSentAt); elapsed < g.cooldown() {
			return rec, "", &ThrottleError{Wait: g.cooldown() - elapsed}
		}
	}
	code, err := g.generate()
	if err != nil {
		return rec, "", err
	}
	rec.Hash = HashCode(code)
	rec.ExpiresAt = now.Add(g.expiry())
	rec.LastSentAt = now
	rec.ResendCount++
	rec.Verified = false
	return rec, code, nil
}

// Verify checks a candidate code against the record. Expiry wins over
// correctness so a stale code is reported as expired even when it matches.
// Mismatches carry no counter; only resends are capped.
func (g *Guard) Verify(rec *Record, candidate string) Result {
	if g.now().After(rec.ExpiresAt) {
		return VerifyExpired
	}
	if HashCode(candidate) != rec.Hash {
		return VerifyMismatch
	}
	rec.Verified = true
	return VerifyOK
}

// HashCode returns the hex SHA-256 digest of a code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (g *Guard) generate() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	n, err := rand.Int(src, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

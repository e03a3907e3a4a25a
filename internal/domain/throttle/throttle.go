// internal/domain/throttle/throttle.go
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CounterStore holds integer counters that expire independently
type CounterStore interface {
	// Get returns the value of key and whether it exists
	Get(ctx context.Context, key string) (int64, bool, error)
	// Increment adds one to key and restarts its ttl
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Put(ctx context.Context, key string, value int64, ttl time.Duration) error
	Forget(ctx context.Context, keys ...string) error
}

// Policy is the lockout schedule
type Policy struct {
	MaxAttempts     int
	AttemptsTTL     time.Duration
	LockoutCountTTL time.Duration
	BaseLockout     time.Duration
	LockoutStep     time.Duration
	MaxLockout      time.Duration // zero means unbounded
	KeyPrefix       string
}

// PolicyFromConfig builds a policy from configuration
func PolicyFromConfig(cfg config.ThrottleConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		AttemptsTTL:     cfg.AttemptsTTL,
		LockoutCountTTL: cfg.LockoutCountTTL,
		BaseLockout:     cfg.BaseLockout,
		LockoutStep:     cfg.LockoutStep,
		MaxLockout:      cfg.MaxLockout,
		KeyPrefix:       cfg.KeyPrefix,
	}
}

// DefaultPolicy is 5 attempts, then 30s, 45s, 60s, ... lockouts
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		AttemptsTTL:     10 * time.Minute,
		LockoutCountTTL: 30 * time.Minute,
		BaseLockout:     30 * time.Second,
		LockoutStep:     15 * time.Second,
		KeyPrefix:       "login",
	}
}

// Lockout describes an active lockout
type Lockout struct {
	Count       int
	Seconds     int
	AvailableAt time.Time
}

// LoginThrottle tracks failed logins per identity with escalating lockouts.
//
// Three entries are kept per identity: the attempt counter, the lockout
// counter (suffix ":lockouts") and the unlock time in epoch seconds (suffix
// ":timer"). Each expires on its own.
type LoginThrottle struct {
	store  CounterStore
	policy Policy
	clock  clock.Clock
}

// New creates a login throttle
func New(store CounterStore, policy Policy, clk clock.Clock) *LoginThrottle {
	return &LoginThrottle{
		store:  store,
		policy: policy,
		clock:  clk,
	}
}

// MaxAttempts is the number of failures that triggers a lockout
func (t *LoginThrottle) MaxAttempts() int {
	return t.policy.MaxAttempts
}

// Key returns the throttle identity for an email address
func (t *LoginThrottle) Key(email string) string {
	return t.policy.KeyPrefix + ":" + NormalizeIdentity(email)
}

// Letters that carry no combining mark under NFD and fold to a plain Latin letter
var latinFold = map[rune]rune{
	'ø': 'o', 'Ø': 'o',
	'đ': 'd', 'Đ': 'd',
	'ð': 'd', 'Ð': 'd',
	'ł': 'l', 'Ł': 'l',
	'ħ': 'h', 'Ħ': 'h',
	'ı': 'i',
}

// Letters that transliterate to more than one character
var latinExpand = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"þ", "th", "Þ", "th",
)

// NormalizeIdentity lower-cases an email and transliterates it to ASCII
// Latin where possible: diacritics are dropped, ø becomes o, ß becomes ss.
func NormalizeIdentity(email string) string {
	email = strings.TrimSpace(email)
	chain := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if folded, ok := latinFold[r]; ok {
				return folded
			}
			return r
		}),
		norm.NFC,
	)
	normalized, _, err := transform.String(chain, email)
	if err != nil {
		normalized = email
	}
	return strings.ToLower(latinExpand.Replace(normalized))
}

// Attempts returns the failed attempts since the last lockout or clear
func (t *LoginThrottle) Attempts(ctx context.Context, key string) (int, error) {
	n, _, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts: %w", err)
	}
	return int(n), nil
}

// Hit records a failed attempt and returns the new count
func (t *LoginThrottle) Hit(ctx context.Context, key string) (int, error) {
	n, err := t.store.Increment(ctx, key, t.policy.AttemptsTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return int(n), nil
}

// TooManyAttempts reports whether a lockout window is active. The attempt
// count alone never locks an identity out.
func (t *LoginThrottle) TooManyAttempts(ctx context.Context, key string) (bool, error) {
	seconds, err := t.AvailableIn(ctx, key)
	if err != nil {
		return false, err
	}
	return seconds > 0, nil
}

// Lockout starts the next, longer lockout window and resets the attempt count
func (t *LoginThrottle) Lockout(ctx context.Context, key string) (*Lockout, error) {
	count, err := t.store.Increment(ctx, lockoutsKey(key), t.policy.LockoutCountTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to record lockout: %w", err)
	}

	timeout := t.Timeout(int(count))
	availableAt := t.clock.Now().Add(timeout)

	if err := t.store.Put(ctx, timerKey(key), availableAt.Unix(), timeout); err != nil {
		return nil, fmt.Errorf("failed to store lockout timer: %w", err)
	}
	if err := t.store.Forget(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to reset attempts: %w", err)
	}

	return &Lockout{
		Count:       int(count),
		Seconds:     int(timeout / time.Second),
		AvailableAt: availableAt,
	}, nil
}

// Timeout returns the length of the nth lockout
func (t *LoginThrottle) Timeout(lockoutCount int) time.Duration {
	if lockoutCount < 1 {
		lockoutCount = 1
	}
	timeout := t.policy.BaseLockout + time.Duration(lockoutCount-1)*t.policy.LockoutStep
	if t.policy.MaxLockout > 0 && timeout > t.policy.MaxLockout {
		return t.policy.MaxLockout
	}
	return timeout
}

// AvailableIn returns the seconds until the lockout lifts, 0 when none is active
func (t *LoginThrottle) AvailableIn(ctx context.Context, key string) (int, error) {
	availableAt, ok, err := t.store.Get(ctx, timerKey(key))
	if err != nil {
		return 0, fmt.Errorf("failed to read lockout timer: %w", err)
	}
	if !ok {
		return 0, nil
	}

	remaining := availableAt - t.clock.Now().Unix()
	if remaining < 0 {
		return 0, nil
	}
	return int(remaining), nil
}

// LockoutCount returns the lockouts that still count towards escalation
func (t *LoginThrottle) LockoutCount(ctx context.Context, key string) (int, error) {
	n, _, err := t.store.Get(ctx, lockoutsKey(key))
	if err != nil {
		return 0, fmt.Errorf("failed to read lockout count: %w", err)
	}
	return int(n), nil
}

// Clear forgets every entry of the identity; called after a successful login
func (t *LoginThrottle) Clear(ctx context.Context, key string) error {
	if err := t.store.Forget(ctx, key, lockoutsKey(key), timerKey(key)); err != nil {
		return fmt.Errorf("failed to clear throttle: %w", err)
	}
	return nil
}

func lockoutsKey(key string) string { return key + ":lockouts" }
func timerKey(key string) string    { return key + ":timer" }

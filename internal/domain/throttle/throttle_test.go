package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/meatshop-backend/internal/config"
	redisstore "github.com/your-org/meatshop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
)

func newTestThrottle(t *testing.T, policy Policy) (*LoginThrottle, *miniredis.Miniredis, *clock.Manual) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clk := clock.NewManual(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	return New(redisstore.NewCounterStore(client), policy, clk), mr, clk
}

// elapse moves both the throttle clock and redis ttls forward
func elapse(mr *miniredis.Miniredis, clk *clock.Manual, d time.Duration) {
	clk.Advance(d)
	mr.FastForward(d)
}

func failTimes(t *testing.T, lt *LoginThrottle, key string, n int) int {
	t.Helper()
	var attempts int
	for i := 0; i < n; i++ {
		var err error
		attempts, err = lt.Hit(context.Background(), key)
		require.NoError(t, err)
	}
	return attempts
}

func TestTimeoutSchedule(t *testing.T) {
	lt := New(nil, DefaultPolicy(), clock.System())

	assert.Equal(t, 30*time.Second, lt.Timeout(0))
	assert.Equal(t, 30*time.Second, lt.Timeout(1))
	assert.Equal(t, 45*time.Second, lt.Timeout(2))
	assert.Equal(t, 60*time.Second, lt.Timeout(3))
	assert.Equal(t, 30*time.Second+99*15*time.Second, lt.Timeout(100))

	capped := DefaultPolicy()
	capped.MaxLockout = time.Minute
	lt = New(nil, capped, clock.System())
	assert.Equal(t, time.Minute, lt.Timeout(3))
	assert.Equal(t, time.Minute, lt.Timeout(10))
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.ThrottleConfig{
		MaxAttempts:     3,
		AttemptsTTL:     time.Minute,
		LockoutCountTTL: time.Hour,
		BaseLockout:     10 * time.Second,
		LockoutStep:     5 * time.Second,
		MaxLockout:      2 * time.Minute,
		KeyPrefix:       "auth",
	})

	lt := New(nil, policy, clock.System())
	assert.Equal(t, 3, lt.MaxAttempts())
	assert.Equal(t, 20*time.Second, lt.Timeout(3))
	assert.Equal(t, "auth:a@b.c", lt.Key("A@B.C"))
}

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"juan@example.com", "juan@example.com"},
		{"  Juan@Example.COM ", "juan@example.com"},
		{"José@Example.com", "jose@example.com"},
		{"MUÑOZ@example.com", "munoz@example.com"},
		{"Ångström@example.com", "angstrom@example.com"},
		{"Søren.Straße@example.com", "soren.strasse@example.com"},
		{"ÆSA@example.com", "aesa@example.com"},
		{"Łukasz.Đorđević@example.com", "lukasz.dordevic@example.com"},
		{"þóra@example.is", "thora@example.is"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIdentity(tt.in))
		})
	}
}

func TestLoginThrottle_EscalatingLockouts(t *testing.T) {
	lt, mr, clk := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()
	key := lt.Key("Juan@Example.com")

	attempts := failTimes(t, lt, key, 5)
	assert.Equal(t, 5, attempts)

	locked, err := lt.TooManyAttempts(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked, "attempts alone never lock")

	first, err := lt.Lockout(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 30, first.Seconds)
	assert.Equal(t, clk.Now().Add(30*time.Second), first.AvailableAt)

	locked, err = lt.TooManyAttempts(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	remaining, err := lt.AvailableIn(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 30, remaining)

	attempts, err = lt.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, attempts, "lockout resets the attempt counter")

	elapse(mr, clk, 12*time.Second)
	remaining, err = lt.AvailableIn(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 18, remaining)

	elapse(mr, clk, 19*time.Second)
	locked, err = lt.TooManyAttempts(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)

	failTimes(t, lt, key, 5)
	second, err := lt.Lockout(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, 45, second.Seconds)

	count, err := lt.LockoutCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoginThrottle_LockoutCountExpires(t *testing.T) {
	lt, mr, clk := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()
	key := lt.Key("maria@example.com")

	_, err := lt.Lockout(ctx, key)
	require.NoError(t, err)

	elapse(mr, clk, 31*time.Minute)

	lockout, err := lt.Lockout(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, lockout.Count)
	assert.Equal(t, 30, lockout.Seconds)
}

func TestLoginThrottle_AttemptsExpire(t *testing.T) {
	lt, mr, clk := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()
	key := lt.Key("pedro@example.com")

	failTimes(t, lt, key, 4)
	elapse(mr, clk, 11*time.Minute)

	attempts, err := lt.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestLoginThrottle_Clear(t *testing.T) {
	lt, mr, _ := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()
	key := lt.Key("ana@example.com")

	failTimes(t, lt, key, 3)
	_, err := lt.Lockout(ctx, key)
	require.NoError(t, err)
	failTimes(t, lt, key, 2)

	require.NoError(t, lt.Clear(ctx, key))

	assert.False(t, mr.Exists(key))
	assert.False(t, mr.Exists(key+":lockouts"))
	assert.False(t, mr.Exists(key+":timer"))

	locked, err := lt.TooManyAttempts(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLoginThrottle_IdentitiesAreIndependent(t *testing.T) {
	lt, _, _ := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()

	_, err := lt.Lockout(ctx, lt.Key("one@example.com"))
	require.NoError(t, err)

	locked, err := lt.TooManyAttempts(ctx, lt.Key("two@example.com"))
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = lt.TooManyAttempts(ctx, lt.Key("ONE@example.com"))
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLoginThrottle_StoreErrorsSurface(t *testing.T) {
	lt, mr, _ := newTestThrottle(t, DefaultPolicy())
	ctx := context.Background()
	key := lt.Key("down@example.com")
	mr.Close()

	_, err := lt.Hit(ctx, key)
	assert.Error(t, err)

	_, err = lt.TooManyAttempts(ctx, key)
	assert.Error(t, err)

	_, err = lt.Lockout(ctx, key)
	assert.Error(t, err)

	assert.Error(t, lt.Clear(ctx, key))
}

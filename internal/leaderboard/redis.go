package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces every key written by the board.
	DefaultPrefix = "opsalert"
	// DefaultConnectTimeout bounds the initial ping.
	DefaultConnectTimeout = 5 * time.Second
)

// Redis is a Board backed by sorted sets (sales) and a hash (monitoring).
type Redis struct {
	client *redis.Client
	prefix string
}

// Connect opens a client and checks it answers.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis wraps client. An empty prefix uses DefaultPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) salesKey(period string) string {
	return r.prefix + ":leaderboard:sales:" + period
}

func (r *Redis) countersKey() string {
	return r.prefix + ":monitoring:alerts"
}

func (r *Redis) appliedKey(key string) string {
	return r.prefix + ":applied:" + key
}

// recordSale claims the event ID and credits both boards in one step.
// KEYS: applied marker, monthly board, all-time board.
// ARGV: amount, seller, marker ttl in seconds.
var recordSale = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'EX', ARGV[3]) then
	redis.call('ZINCRBY', KEYS[2], ARGV[1], ARGV[2])
	redis.call('ZINCRBY', KEYS[3], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// countAlert claims the event ID and bumps one monitoring counter.
// KEYS: applied marker, counters hash. ARGV: field, marker ttl in seconds.
var countAlert = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'EX', ARGV[2]) then
	redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
	return 1
end
return 0
`)

func ttlSeconds() int64 { return int64(DedupeTTL / time.Second) }

func (r *Redis) RecordSale(ctx context.Context, eventID, sellerID string, amount float64, at time.Time) (bool, error) {
	keys := []string{r.appliedKey(saleKey(eventID)), r.salesKey(MonthOf(at)), r.salesKey(PeriodAllTime)}
	n, err := recordSale.Run(ctx, r.client, keys, strconv.FormatFloat(amount, 'f', -1, 64), sellerID, ttlSeconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to record sale for %s: %w", sellerID, err)
	}
	return n == 1, nil
}

func (r *Redis) IncrementMonitoring(ctx context.Context, eventID, category, severity string) (bool, error) {
	keys := []string{r.appliedKey(monitoringKey(eventID)), r.countersKey()}
	n, err := countAlert.Run(ctx, r.client, keys, monitoringField(category, severity), ttlSeconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to increment monitoring counter: %w", err)
	}
	return n == 1, nil
}

func (r *Redis) Top(ctx context.Context, period string, n int) ([]Entry, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	zs, err := r.client.ZRevRangeWithScores(ctx, r.salesKey(period), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard %s: %w", period, err)
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{UserID: id, Total: z.Score})
	}
	return out, nil
}

func (r *Redis) Monitoring(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.countersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read monitoring counters: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("monitoring counter %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

var _ Board = (*Redis)(nil)

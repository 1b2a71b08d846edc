package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisSource reads customer records from Redis. Each modality is a list of
// JSON documents under {prefix}:customer:{id}:{modality}; master data lives
// under {prefix}:customer:{id}:profile and the set {prefix}:customers indexes
// every known customer.
type RedisSource struct {
	client    redis.UniversalClient
	logger    *logrus.Logger
	keyPrefix string
}

// NewRedisSource connects to Redis and verifies the connection
func NewRedisSource(cfg config.RedisConfig, logger *logrus.Logger) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.Database,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.ErrUnavailable, "failed to connect to Redis", map[string]interface{}{
			"address": cfg.Address,
			"error":   err.Error(),
		})
	}

	src := NewRedisSourceWithClient(client, cfg.KeyPrefix, logger)

	logger.WithFields(logrus.Fields{
		"address":    cfg.Address,
		"database":   cfg.Database,
		"key_prefix": src.keyPrefix,
	}).Info("Redis record source initialized")

	return src, nil
}

// NewRedisSourceWithClient wraps an existing client
func NewRedisSourceWithClient(client redis.UniversalClient, keyPrefix string, logger *logrus.Logger) *RedisSource {
	if keyPrefix == "" {
		keyPrefix = "valuescore"
	}
	return &RedisSource{client: client, logger: logger, keyPrefix: keyPrefix}
}

// Close closes the Redis connection
func (r *RedisSource) Close() error {
	return r.client.Close()
}

func (r *RedisSource) recordKey(customerID string, m multimodal.Modality) string {
	return fmt.Sprintf("%s:customer:%s:%s", r.keyPrefix, customerID, m)
}

func (r *RedisSource) profileKey(customerID string) string {
	return fmt.Sprintf("%s:customer:%s:profile", r.keyPrefix, customerID)
}

func (r *RedisSource) indexKey() string {
	return r.keyPrefix + ":customers"
}

// readList decodes every JSON entry of a modality list. Undecodable entries
// are skipped with a warning.
func readList[T any](ctx context.Context, r *RedisSource, customerID string, m multimodal.Modality, tr multimodal.TimeRange, ts func(T) time.Time) ([]T, error) {
	key := r.recordKey(customerID, m)
	entries, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.NewCollectorUnavailable(string(m), err, map[string]interface{}{
			"customer_id": customerID,
		})
	}

	out := make([]T, 0, len(entries))
	for i, raw := range entries {
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.logger.WithError(errors.NewMalformedRecord(string(m), err.Error())).WithFields(logrus.Fields{
				"key":   key,
				"index": i,
			}).Warn("Skipping undecodable record")
			continue
		}
		if tr.Contains(ts(rec)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CollectText implements TextCollector.
func (r *RedisSource) CollectText(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.TextRecord, error) {
	return readList(ctx, r, customerID, multimodal.ModalityText, tr, func(t multimodal.TextRecord) time.Time { return t.Timestamp })
}

// CollectVoice implements VoiceCollector.
func (r *RedisSource) CollectVoice(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	return readList(ctx, r, customerID, multimodal.ModalityVoice, tr, func(v multimodal.VoiceInsight) time.Time { return v.Timestamp })
}

// CollectBehavior implements BehaviorCollector.
func (r *RedisSource) CollectBehavior(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	return readList(ctx, r, customerID, multimodal.ModalityBehavior, tr, func(b multimodal.BehaviorSession) time.Time { return b.Timestamp })
}

// CollectInteraction implements InteractionCollector.
func (r *RedisSource) CollectInteraction(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.InteractionRecord, error) {
	return readList(ctx, r, customerID, multimodal.ModalityInteraction, tr, func(i multimodal.InteractionRecord) time.Time { return i.Timestamp })
}

// LookupCustomer implements CustomerDirectory.
func (r *RedisSource) LookupCustomer(ctx context.Context, customerID string) (multimodal.Customer, error) {
	raw, err := r.client.Get(ctx, r.profileKey(customerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return multimodal.Customer{}, errors.NewNotFound("customer not found", map[string]interface{}{
				"customer_id": customerID,
			})
		}
		return multimodal.Customer{}, errors.Wrap(errors.ErrUnavailable, "failed to read customer from Redis", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
	}

	var c multimodal.Customer
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return multimodal.Customer{}, errors.NewMalformedRecord("customer", err.Error(), map[string]interface{}{
			"customer_id": customerID,
		})
	}
	if c.ID == "" {
		c.ID = customerID
	}
	return c, nil
}

// ListCustomers implements CustomerLister. Customers are sorted by ID;
// indexed IDs without master data get default master data.
func (r *RedisSource) ListCustomers(ctx context.Context) ([]multimodal.Customer, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, "failed to list customers from Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	sort.Strings(ids)

	out := make([]multimodal.Customer, 0, len(ids))
	for _, id := range ids {
		c, err := r.LookupCustomer(ctx, id)
		if errors.IsErrorType(err, errors.ErrNotFound) {
			c = multimodal.DefaultCustomer(id)
		} else if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// PutCustomer stores customer master data and indexes the customer.
func (r *RedisSource) PutCustomer(ctx context.Context, c multimodal.Customer) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal customer")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.profileKey(c.ID), data, 0)
	pipe.SAdd(ctx, r.indexKey(), c.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store customer in Redis", map[string]interface{}{
			"customer_id": c.ID,
		})
	}
	return nil
}

// Seed writes a fixture into Redis: master data first, then the records of
// each customer in ID order. Records are appended, so seeding twice
// duplicates them. It returns the number of customers written.
func (r *RedisSource) Seed(ctx context.Context, fx Fixture) (int, error) {
	seeded := make(map[string]bool)
	for _, c := range fx.Customers {
		if c.ID == "" {
			continue
		}
		if err := r.PutCustomer(ctx, c); err != nil {
			return len(seeded), err
		}
		seeded[c.ID] = true
	}

	for _, id := range fx.customerIDs() {
		if !seeded[id] {
			if err := r.PutCustomer(ctx, multimodal.DefaultCustomer(id)); err != nil {
				return len(seeded), err
			}
			seeded[id] = true
		}
		if err := r.Push(ctx, id, fx.Records[id]); err != nil {
			return len(seeded), err
		}
	}

	r.logger.WithFields(logrus.Fields{
		"customers":  len(seeded),
		"key_prefix": r.keyPrefix,
	}).Info("Seeded Redis record store")
	return len(seeded), nil
}

// Push appends raw records for customerID, one list entry per record.
func (r *RedisSource) Push(ctx context.Context, customerID string, raw multimodal.RawRecords) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.indexKey(), customerID)

	add := func(m multimodal.Modality, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal record", map[string]interface{}{
				"modality": string(m),
			})
		}
		pipe.RPush(ctx, r.recordKey(customerID, m), data)
		return nil
	}

	for _, t := range raw.Text {
		if err := add(multimodal.ModalityText, t); err != nil {
			return err
		}
	}
	for _, v := range raw.Voice {
		if err := add(multimodal.ModalityVoice, v); err != nil {
			return err
		}
	}
	for _, b := range raw.Behavior {
		if err := add(multimodal.ModalityBehavior, b); err != nil {
			return err
		}
	}
	for _, i := range raw.Interaction {
		if err := add(multimodal.ModalityInteraction, i); err != nil {
			return err
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to push records to Redis", map[string]interface{}{
			"customer_id": customerID,
		})
	}

	r.logger.WithFields(logrus.Fields{
		"customer_id": customerID,
		"text":        len(raw.Text),
		"voice":       len(raw.Voice),
		"behavior":    len(raw.Behavior),
		"interaction": len(raw.Interaction),
	}).Debug("Records pushed to Redis")

	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/pdf2img/internal/conversion"
)

const (
	conversionKeyPrefix = "conversion:"
	conversionIndexKey  = "conversions"

	// 楽観ロックの再試行回数
	maxTxRetries = 16
)

// createScript は索引への追加とレコードの保存を1回の操作で行います。
// 索引への追加が失敗した場合はレコードを書き込みません。
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// Redis は変換レコードを JSON で Redis に保存します。
type Redis struct {
	rdb *redis.Client
}

// OpenRedis は url に接続する Redis を作成します。
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Close はクライアントを閉じます。
func (s *Redis) Close() error {
	return s.rdb.Close()
}

// Ping は接続を確認します。
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Redis) Create(ctx context.Context, c *conversion.Conversion) error {
	if err := validateNew(c); err != nil {
		return err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}

	keys := []string{conversionKey(c.ID), conversionIndexKey}
	created, err := createScript.Run(ctx, s.rdb, keys, payload, c.ID).Int()
	if err != nil {
		return fmt.Errorf("store conversion: %w", err)
	}
	if created == 0 {
		return conversion.ErrDuplicateID
	}
	return nil
}

func (s *Redis) GetByID(ctx context.Context, id string) (*conversion.Conversion, error) {
	if id == "" {
		return nil, nil
	}
	data, err := s.rdb.Get(ctx, conversionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record conversion.Conversion
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode conversion %s: %w", id, err)
	}
	return &record, nil
}

func (s *Redis) GetAll(ctx context.Context) ([]conversion.Conversion, error) {
	ids, err := s.rdb.SMembers(ctx, conversionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversion ids: %w", err)
	}
	records := make([]conversion.Conversion, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = conversionKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversions: %w", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var record conversion.Conversion
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode conversion %s: %w", ids[i], err)
		}
		records = append(records, record)
	}

	sortByStartDate(records)
	return records, nil
}

func (s *Redis) UpdateStatus(ctx context.Context, id string, status conversion.Status) error {
	if err := validateTarget(status); err != nil {
		return err
	}
	key := conversionKey(id)

	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return conversion.ErrRecordNotFound
			}
			return err
		}
		var record conversion.Conversion
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode conversion %s: %w", id, err)
		}
		if !conversion.CanTransition(record.Status, status) {
			return conversion.ErrStatusFinal
		}
		record.Status = status
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update conversion %s: too many concurrent updates", id)
}

func conversionKey(id string) string {
	return conversionKeyPrefix + id
}

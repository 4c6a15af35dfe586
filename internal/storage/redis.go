package storage

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"resume-matcher-go/internal/config"
	"resume-matcher-go/internal/constants"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-matcher-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	"app:file:":   0.25, // 文件去重操作采样25%
	"app:resume:": 0.1,  // 简历文本操作采样10%
	"lock:":       0.5,  // 锁操作采样50%
	"cache:":      0.01, // 缓存操作采样1%
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}

	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}

	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}


// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetMD5ExpireDuration 返回配置的MD5记录过期时间
func (r *Redis) GetMD5ExpireDuration() time.Duration {
	days := r.config.MD5RecordExpireDays
	if days <= 0 {
		days = 365 // 默认1年
	}
	return time.Duration(days) * 24 * time.Hour
}







// checkAndAddMD5Atomic 使用Lua脚本原子地检查并添加MD5
func (r *Redis) checkAndAddMD5Atomic(ctx context.Context, spanName, setKey, md5Hex string) (exists bool, err error) {
	ctx, span := redisTracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "EVAL"),
		attribute.String("db.redis.key", setKey),
		attribute.String("db.redis.member", md5Hex),
	)

	if r.Client == nil {
		err = fmt.Errorf("redis client is not initialized")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	script := `
		local exists = redis.call('SISMEMBER', KEYS[1], ARGV[1])
		redis.call('SADD', KEYS[1], ARGV[1])
		redis.call('EXPIRE', KEYS[1], ARGV[2])
		return exists
	`

	expiry := r.GetMD5ExpireDuration().Seconds()

	res, err := r.Client.Eval(ctx, script, []string{setKey}, md5Hex, expiry).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("执行原子检查和添加操作失败: %w", err)
	}

	// Lua脚本返回0表示不存在，1表示存在
	existsVal, ok := res.(int64)
	if !ok {
		err := fmt.Errorf("意外的Redis返回类型: %T", res)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	exists = existsVal == 1
	span.SetAttributes(attribute.Bool("already_exists", exists))
	span.SetStatus(codes.Ok, "")

	return exists, nil
}


// CheckAndAddTextMD5 检查并添加渲染文本MD5到集合，是一个原子操作
func (r *Redis) CheckAndAddTextMD5(ctx context.Context, md5Hex string) (bool, error) {
	return r.checkAndAddMD5Atomic(ctx, "Redis.CheckAndAddTextMD5", constants.KeyTextMD5Set, md5Hex)
}

// RemoveRawFileMD5 从集合中移除原始文件MD5
func (r *Redis) RemoveRawFileMD5(ctx context.Context, md5 string) error {
	ctx, span := redisTracer.Start(ctx, "Redis.RemoveRawFileMD5",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "SREM"),
		attribute.String("db.redis.key", constants.KeyFileMD5Set),
		attribute.String("db.redis.member", md5),
	)

	// 同时清理MD5到submission_uuid的映射，保证CheckAndSetFileMD5的写入被完整回滚
	mapKey := fmt.Sprintf(constants.KeyFileMD5ToSubmissionUUID, md5)
	pipe := r.Client.Pipeline()
	sremCmd := pipe.SRem(ctx, constants.KeyFileMD5Set, md5)
	pipe.Del(ctx, mapKey)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("从集合中移除MD5失败: %w", err)
	}

	span.SetAttributes(attribute.Int64("removed_count", sremCmd.Val()))
	span.SetStatus(codes.Ok, "")

	return nil
}

// SetResumeMarkdown 缓存渲染后的Markdown文本
func (r *Redis) SetResumeMarkdown(ctx context.Context, submissionUUID string, markdown string, ttl time.Duration) error {
	key := fmt.Sprintf(constants.KeyResumeMarkdown, submissionUUID)
	return r.Set(ctx, key, markdown, ttl)
}

// GetResumeMarkdown 读取缓存的Markdown文本，未命中时返回 ErrNotFound
func (r *Redis) GetResumeMarkdown(ctx context.Context, submissionUUID string) (string, error) {
	key := fmt.Sprintf(constants.KeyResumeMarkdown, submissionUUID)
	return r.Get(ctx, key)
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	// 根据key前缀决定是否创建span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", key),
			// 避免与redisotel hook产生的span重复
			attribute.Bool("otel.propagate_to_child", false),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			// key不存在不算错误
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return "", err
		}

		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", key),
			attribute.Int("db.redis.value_length", len(value)),
			attribute.Bool("otel.propagate_to_child", false),
		)

		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// AcquireLock 尝试获取一个分布式锁
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	// 随机值作为锁的持有者标识
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	// 未能获取锁
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// 只有持有者才能删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}

	return false, nil // 锁不存在或不属于当前持有者
}

// CheckAndSetFileMD5 检查文件MD5是否已有对应提交，没有则登记 md5 -> submissionUUID 的映射。
// 返回 (exists, existingUUID, error)。
func (r *Redis) CheckAndSetFileMD5(ctx context.Context, md5 string, submissionUUID string) (bool, string, error) {
	setKey := constants.KeyFileMD5Set
	exists, err := r.Client.SIsMember(ctx, setKey, md5).Result()
	if err != nil {
		return false, "", fmt.Errorf("检查MD5是否存在失败: %w", err)
	}
	mapKey := fmt.Sprintf(constants.KeyFileMD5ToSubmissionUUID, md5)
	if exists {
		// MD5已存在，获取关联的submission_uuid
		existingUUID, err := r.Client.Get(ctx, mapKey).Result()
		if err != nil && err != redis.Nil {
			return true, "", fmt.Errorf("获取已存在的submission_uuid失败: %w", err)
		}
		return true, existingUUID, nil
	}
	// MD5不存在，原子地添加
	pipe := r.Client.Pipeline()
	setCmd := pipe.SAdd(ctx, setKey, md5)
	setNXCmd := pipe.SetNX(ctx, mapKey, submissionUUID, r.GetMD5ExpireDuration())
	pipe.Expire(ctx, setKey, r.GetMD5ExpireDuration())
	_, err = pipe.Exec(ctx)
	if err != nil {
		return false, "", fmt.Errorf("执行原子添加MD5操作失败: %w", err)
	}
	if setCmd.Val() > 0 && setNXCmd.Val() {
		return false, "", nil // 成功设置了新的MD5
	}
	// 在极小的并发窗口中，另一个进程设置了它，重新获取
	existingUUID, err := r.Client.Get(ctx, mapKey).Result()
	if err != nil {
		return true, "", fmt.Errorf("获取已存在的submission_uuid失败: %w", err)
	}
	return true, existingUUID, nil
}

package lottery

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config 生产环境配置结构
type Config struct {
	// 抽奖配置
	Lottery *LotteryConfig `mapstructure:"lottery"`

	// 锁配置
	Lock *LockConfig `mapstructure:"lock"`

	// Redis 配置
	Redis *RedisConfig `mapstructure:"redis"`

	// 熔断器配置
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// Validate 验证全部配置
func (c *Config) Validate() error {
	if c.Lottery == nil || c.Lock == nil || c.Redis == nil || c.CircuitBreaker == nil {
		return ErrConfigInvalid.WithDetails("missing configuration section")
	}
	if err := c.Lottery.Validate(); err != nil {
		return err
	}
	if err := c.Lock.Validate(); err != nil {
		return err
	}
	return c.Redis.Validate()
}

// LotteryConfig 抽奖轮次配置
type LotteryConfig struct {
	// Operator is the only account allowed to activate rounds and receives the commission
	Operator     Account `mapstructure:"operator"`
	Namespace    string  `mapstructure:"namespace"`
	EventChannel string  `mapstructure:"event_channel"`

	// DefaultRound is used by callers that activate without explicit parameters
	DefaultRound RoundParams `mapstructure:"default_round"`
}

// DefaultLotteryConfig 返回默认抽奖配置
func DefaultLotteryConfig() *LotteryConfig {
	return &LotteryConfig{
		Operator:     "operator",
		Namespace:    DefaultNamespace,
		EventChannel: DefaultEventChannel,
		DefaultRound: RoundParams{
			TicketPrice:       DefaultTicketPrice,
			CommissionDivisor: DefaultCommissionDivisor,
			SaleDuration:      DefaultSaleDuration,
			RevealDuration:    DefaultRevealDuration,
		},
	}
}

// Validate 验证抽奖配置
func (c *LotteryConfig) Validate() error {
	if c.Operator == "" {
		return ErrConfigInvalid.WithDetails("operator account is required")
	}
	if err := c.DefaultRound.Validate(); err != nil {
		return ErrConfigInvalid.WithCause(err).WithDetails("default round: " + err.Error())
	}
	return nil
}

// LockConfig 轮次锁配置
type LockConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Expiration    time.Duration `mapstructure:"expiration"`
}

// DefaultLockConfig 返回默认锁配置
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		Timeout:       DefaultLockTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryInterval: DefaultRetryInterval,
		Expiration:    DefaultLockExpiration,
	}
}

// Validate 验证锁配置
func (c *LockConfig) Validate() error {
	if c.Timeout < MinLockTimeout || c.Timeout > MaxLockTimeout {
		return ErrConfigInvalid.WithDetails(fmt.Sprintf("lock timeout must be between %v and %v", MinLockTimeout, MaxLockTimeout))
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > MaxRetryAttempts {
		return ErrConfigInvalid.WithDetails(fmt.Sprintf("lock retry attempts must be between 0 and %d", MaxRetryAttempts))
	}
	if c.RetryInterval < 0 {
		return ErrConfigInvalid.WithDetails("lock retry interval cannot be negative")
	}
	if c.Expiration <= 0 {
		return ErrConfigInvalid.WithDetails("lock expiration must be positive")
	}
	return nil
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接配置
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// DefaultRedisConfig 返回默认的Redis配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// Validate 验证 Redis 配置
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return ErrConfigInvalid.WithDetails("redis address is required")
	}
	if c.PoolSize <= 0 {
		return ErrConfigInvalid.WithDetails("redis pool size must be positive")
	}
	return nil
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// DefaultConfig 返回全部默认配置
func DefaultConfig() *Config {
	return &Config{
		Lottery:        DefaultLotteryConfig(),
		Lock:           DefaultLockConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper  *viper.Viper
	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fairlottery")
	v.AddConfigPath("$HOME/.fairlottery")

	// 设置环境变量前缀
	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cm := &ConfigManager{viper: v, config: DefaultConfig()}
	cm.setDefaults()
	return cm
}

// SetConfigFile 使用指定的配置文件
func (cm *ConfigManager) SetConfigFile(path string) { cm.viper.SetConfigFile(path) }

// LoadConfig 加载配置
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	// 读取配置文件, 不存在时使用默认配置
	if err := cm.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

func (cm *ConfigManager) decode() (*Config, error) {
	config := DefaultConfig()
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	// 抽奖默认配置
	cm.viper.SetDefault("lottery.operator", "operator")
	cm.viper.SetDefault("lottery.namespace", DefaultNamespace)
	cm.viper.SetDefault("lottery.event_channel", DefaultEventChannel)
	cm.viper.SetDefault("lottery.default_round.ticket_price", DefaultTicketPrice)
	cm.viper.SetDefault("lottery.default_round.commission_divisor", DefaultCommissionDivisor)
	cm.viper.SetDefault("lottery.default_round.sale_duration", "24h")
	cm.viper.SetDefault("lottery.default_round.reveal_duration", "24h")

	// 锁默认配置
	cm.viper.SetDefault("lock.timeout", "30s")
	cm.viper.SetDefault("lock.retry_attempts", 3)
	cm.viper.SetDefault("lock.retry_interval", "100ms")
	cm.viper.SetDefault("lock.expiration", "30s")

	// Redis 默认配置
	cm.viper.SetDefault("redis.addr", DefaultRedisAddr)
	cm.viper.SetDefault("redis.password", "")
	cm.viper.SetDefault("redis.db", 0)
	cm.viper.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	cm.viper.SetDefault("redis.max_retries", DefaultRedisMaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", "5s")
	cm.viper.SetDefault("redis.read_timeout", "3s")
	cm.viper.SetDefault("redis.write_timeout", "3s")
	cm.viper.SetDefault("redis.pool_timeout", "4s")

	// 熔断器默认配置
	cm.viper.SetDefault("circuit_breaker.enabled", true)
	cm.viper.SetDefault("circuit_breaker.name", DefaultCircuitBreakerName)
	cm.viper.SetDefault("circuit_breaker.max_requests", DefaultCircuitBreakerMaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", "60s")
	cm.viper.SetDefault("circuit_breaker.timeout", "30s")
	cm.viper.SetDefault("circuit_breaker.failure_ratio", DefaultCircuitBreakerFailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", DefaultCircuitBreakerMinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", true)
}

// WatchConfig 监听配置变化, 无效的新配置会被忽略
func (cm *ConfigManager) WatchConfig(callback func(*Config)) {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config, err := cm.decode()
		if err != nil {
			// 记录错误但不中断服务
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.config
}

// NewRedisClientFromConfig 从配置创建Redis客户端
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

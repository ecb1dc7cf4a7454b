// Package config предоставляет структуры и функции для парсинга и загрузки конфига.
// Значения читаются из YAML-файла, секреты перекрываются переменными окружения.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"APP_ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	Identity                `yaml:"identity"`
	Stripe                  `yaml:"stripe"`
	MercadoPago             `yaml:"mercadopago"`
	Checkout                `yaml:"checkout"`
	Admin                   `yaml:"admin"`
	Resolver                `yaml:"resolver"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"20"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш кандидатов.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для публикации событий о выдаче доступа.
// Пустой URL отключает публикацию.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	GrantExchange      string        `yaml:"grant_exchange" env-default:"fulfillment"`
	GrantRoutingKey    string        `yaml:"grant_routing_key" env-default:"access.granted"`
}

// Identity настройки проверки токенов внешнего провайдера идентификации.
type Identity struct {
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience" env-default:"authenticated"`
}

// Stripe настройки Stripe Checkout.
type Stripe struct {
	SecretKey        string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret    string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PriceID          string `yaml:"price_id" env:"STRIPE_PRICE_ID"`
	CityGuidePriceID string `yaml:"city_guide_price_id" env:"STRIPE_CITY_GUIDE_PRICE_ID"`
}

// MercadoPago настройки REST API Mercado Pago.
type MercadoPago struct {
	AccessToken        string        `yaml:"access_token" env:"MP_ACCESS_TOKEN"`
	WebhookSecret      string        `yaml:"webhook_secret" env:"MP_WEBHOOK_SECRET"`
	BaseURL            string        `yaml:"base_url" env-default:"https://api.mercadopago.com"`
	UnitPrice          float64       `yaml:"unit_price" env-default:"57.83"`
	CityGuideUnitPrice float64       `yaml:"city_guide_unit_price" env-default:"88.92"`
	CurrencyID         string        `yaml:"currency_id" env-default:"BRL"`
	Sandbox            bool          `yaml:"sandbox"`
	Timeout            time.Duration `yaml:"timeout" env-default:"15s"`
}

// Checkout общие настройки создания оплаты.
type Checkout struct {
	DefaultProvider string `yaml:"default_provider" env-default:"stripe"`
	PublicBaseURL   string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	SuccessPath     string `yaml:"success_path" env-default:"/checkout-success.html"`
	CancelPath      string `yaml:"cancel_path" env-default:"/"`
	Source          string `yaml:"source" env-default:"curadoria-elite-travel"`
}

// Admin настройки ручной выдачи доступа.
type Admin struct {
	GrantKeyHash string `yaml:"grant_key_hash" env:"ADMIN_GRANT_KEY_HASH"`
}

// Resolver настройки поиска материалов.
type Resolver struct {
	ExactLimit    int           `yaml:"exact_limit" env-default:"500"`
	FallbackLimit int           `yaml:"fallback_limit" env-default:"1000"`
	ScanLimit     int           `yaml:"scan_limit" env-default:"2000"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env-default:"1m"`
}

// Load читает конфиг по указанному пути и возвращает ошибку вместо завершения процесса.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига из файла, указанного в CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// String возвращает конфиг для логов, секреты замаскированы.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"Identity:\n"+
			"  JWTSecret: %s\n"+
			"Stripe:\n"+
			"  SecretKey: %s\n"+
			"MercadoPago:\n"+
			"  AccessToken: %s\n"+
			"Checkout:\n"+
			"  DefaultProvider: %s\n"+
			"  PublicBaseURL: %s\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		mask(c.RabbitMQURL),
		mask(c.JWTSecret),
		mask(c.Stripe.SecretKey),
		mask(c.AccessToken),
		c.DefaultProvider,
		c.PublicBaseURL,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

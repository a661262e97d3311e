// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvProduction は本番環境を表す APP_ENV の値です。
	EnvProduction = "production"
	// EnvDevelopment は開発環境を表す APP_ENV の値です。
	EnvDevelopment = "development"
)

// Config はアプリケーションの設定を保持する構造体です。
// 起動時に一度だけ構築し、以降は読み取り専用として各コンポーネントへ渡します。
type Config struct {
	// 実行環境
	Env      string // development / production
	Port     string // APIサーバーのポート番号
	LogLevel string // slog のログレベル
	LogDir   string // イベントログ（reqLog.log など）の出力先

	// データストア
	DatabaseURI  string // MongoDB 接続URI
	DatabaseName string // 使用するデータベース名
	RedisURL     string // ログイン試行制限用 Redis（空ならメモリ）

	// トークン
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	// Cookie の Secure 属性を明示的に上書きする場合に使用（nil なら Env から決定）
	CookieSecure *bool

	// CORS設定
	AllowedOrigins []string

	// X-Forwarded-For を信頼するプロキシ（空なら接続元アドレスをそのまま使う）
	TrustedProxies []string

	// ログイン試行制限
	LoginLimitMax    int
	LoginLimitWindow time.Duration

	// /users に必要なロール（空ならロール制限なし）
	UsersRequiredRoles []string

	// ユーザーが 1 人もいない場合に起動時に作成する管理者（どちらかが空なら作成しない）
	SeedAdminUsername string
	SeedAdminPassword string
}

// Load は環境変数から設定を読み込みます。
// .env.local / .env ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env:      getEnv("APP_ENV", EnvDevelopment),
		Port:     getEnv("PORT", "3500"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", "logs"),

		DatabaseURI:  getEnv("DATABASE_URI", ""),
		DatabaseName: getEnv("DATABASE_NAME", "technotes"),
		RedisURL:     getEnv("REDIS_URL", ""),

		AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
		AccessTokenTTL:     getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		CookieSecure: getEnvAsOptionalBool("COOKIE_SECURE"),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
		TrustedProxies: getEnvAsList("TRUSTED_PROXIES", ""),

		LoginLimitMax:    getEnvAsInt("LOGIN_LIMIT_MAX", 5),
		LoginLimitWindow: getEnvAsDuration("LOGIN_LIMIT_WINDOW", time.Minute),

		UsersRequiredRoles: getEnvAsList("USERS_REQUIRED_ROLES", ""),

		SeedAdminUsername: getEnv("SEED_ADMIN_USERNAME", ""),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFile() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			return
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// 署名鍵が無い状態で起動するとトークン発行時に初めて失敗するため、ここで弾きます。
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if c.AccessTokenSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.LoginLimitMax <= 0 || c.LoginLimitWindow <= 0 {
		errs = append(errs, errors.New("login limit settings must be positive"))
	}
	if c.Env != EnvProduction && c.Env != EnvDevelopment && c.Env != "test" {
		errs = append(errs, fmt.Errorf("unknown APP_ENV %q", c.Env))
	}
	for _, origin := range c.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			errs = append(errs, err)
		}
	}
	if (c.SeedAdminUsername == "") != (c.SeedAdminPassword == "") {
		errs = append(errs, errors.New("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// validateOrigin は ALLOWED_ORIGINS の各要素が scheme://host 形式であることを確認します。
// CORS ミドルウェアは不正なオリジンで panic するため、起動前に弾きます。
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ALLOWED_ORIGINS: invalid origin %q (expected http(s)://host[:port])", origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return fmt.Errorf("ALLOWED_ORIGINS: origin %q must not contain a path, query or credentials", origin)
	}
	return nil
}

// IsProduction は本番環境かどうかを返します。
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SecureCookies はリフレッシュトークン Cookie に Secure 属性を付けるかどうかを返します。
func (c *Config) SecureCookies() bool {
	if c.CookieSecure != nil {
		return *c.CookieSecure
	}
	return c.IsProduction()
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "15m" のような time.ParseDuration 形式の値を読み込みます。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsOptionalBool(key string) *bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return nil
	}
	return &value
}

// getEnvAsList はカンマ区切りの値を配列に変換します（空要素は捨てる）。
func getEnvAsList(key string, defaultValue string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		raw = defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory" // 进程内存储，仅用于本地调试
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	StoreDriver     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string
	RateLimitMax    int
	RateLimitWindow time.Duration
	CORSOrigin      string

	WorkerConcurrency int

	RobotEnabled      bool
	RobotTickSchedule string
	Robot             service.RobotConfig

	WeChatAppID            string
	WeChatAppSecret        string
	WeChatAPIBase          string
	WeChatRoomFullTemplate string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	robot := service.DefaultRobotConfig()
	cfg := &Config{
		DBUser:                 os.Getenv("DB_USER"),
		DBPassword:             os.Getenv("DB_PASSWORD"),
		DBHost:                 os.Getenv("DB_HOST"),
		DBPort:                 os.Getenv("DB_PORT"),
		DBName:                 os.Getenv("DB_NAME"),
		StoreDriver:            strings.ToLower(envString("STORE_DRIVER", StoreDriverMySQL)),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envInt("REDIS_DB", 0),
		KeyPrefix:              envString("REDIS_KEY_PREFIX", "mj:"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTExpiryHours:         envInt("JWT_EXPIRY_HOURS", 24*7),
		ServerPort:             envString("SERVER_PORT", "8080"),
		LogLevel:               envString("LOG_LEVEL", "info"),
		AppEnv:                 envString("APP_ENV", "development"),
		RateLimitMax:           envInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow:        envDuration("RATE_LIMIT_WINDOW", time.Minute),
		CORSOrigin:             envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		WorkerConcurrency:      envInt("WORKER_CONCURRENCY", 10),
		RobotEnabled:           envBool("ROBOT_ENABLED", true),
		RobotTickSchedule:      envString("ROBOT_TICK_SCHEDULE", "@every 1m"),
		WeChatAppID:            os.Getenv("WECHAT_APP_ID"),
		WeChatAppSecret:        os.Getenv("WECHAT_APP_SECRET"),
		WeChatAPIBase:          os.Getenv("WECHAT_API_BASE"),
		WeChatRoomFullTemplate: os.Getenv("WECHAT_ROOM_FULL_TEMPLATE"),
	}

	robot.MinActiveRooms = envInt("ROBOT_MIN_ACTIVE_ROOMS", robot.MinActiveRooms)
	robot.CreateInterval = envDuration("ROBOT_CREATE_INTERVAL", robot.CreateInterval)
	robot.Dwell = envDuration("ROBOT_DWELL", robot.Dwell)
	robot.WithdrawProbability = envFloat("ROBOT_WITHDRAW_PROBABILITY", robot.WithdrawProbability)
	robot.WithdrawDelay = envDuration("ROBOT_WITHDRAW_DELAY", robot.WithdrawDelay)
	robot.WorkStartHour = envInt("ROBOT_WORK_START_HOUR", robot.WorkStartHour)
	robot.WorkEndHour = envInt("ROBOT_WORK_END_HOUR", robot.WorkEndHour)
	robot.Location = envLocation("ROBOT_TIMEZONE", robot.Location)
	cfg.Robot = robot

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.StoreDriver != StoreDriverMySQL && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q (want mysql or memory)", cfg.StoreDriver)
	}
	if cfg.Robot.WithdrawProbability < 0 || cfg.Robot.WithdrawProbability > 1 {
		return nil, fmt.Errorf("ROBOT_WITHDRAW_PROBABILITY must be within [0, 1], got %v", cfg.Robot.WithdrawProbability)
	}
	if !validHour(cfg.Robot.WorkStartHour) || !validHour(cfg.Robot.WorkEndHour) {
		return nil, fmt.Errorf("ROBOT_WORK_START_HOUR/ROBOT_WORK_END_HOUR must be within [0, 23]")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// WeChatConfigured 是否配置了小程序 appid/secret
func (c *Config) WeChatConfigured() bool {
	return c.WeChatAppID != "" && c.WeChatAppSecret != ""
}

func validHour(h int) bool { return h >= 0 && h <= 23 }

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// 以下解析函数在值非法时记录警告并回退到默认值

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %v", key, v, def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %t", key, v, def)
		return def
	}
	return b
}

// envDuration 接受 "90s" 这类写法，也接受纯数字 (秒)
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %s", key, v, def)
		return def
	}
	return d
}

func envLocation(key string, def *time.Location) *time.Location {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %s", key, v, def)
		return def
	}
	return loc
}

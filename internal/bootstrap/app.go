package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	httpHandler "github.com/korou13456/mahjong-mini-backend-sub000/internal/handler/http"
	wsHandler "github.com/korou13456/mahjong-mini-backend-sub000/internal/handler/websocket"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/hub"
	gormpersistence "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/gorm"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/memory"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/setup"
	redisstate "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/state/redis"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/middleware"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/tasks"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/wechat"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB // memory 驱动下为 nil
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	stopSubscribe  context.CancelFunc
}

// NewLogger 按配置创建 logger，生产环境输出 JSON
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 各层通过包级 logrus 记录日志，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	return log
}

// OpenDatabase 连接 MySQL 并迁移表结构
func OpenDatabase(cfg *Config) (*gorm.DB, error) {
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	return db, nil
}

// openUnitOfWork 按 STORE_DRIVER 选择存储实现
func openUnitOfWork(cfg *Config, log *logrus.Logger) (repository.UnitOfWork, *gorm.DB, error) {
	if cfg.StoreDriver == StoreDriverMemory {
		log.Warn("Using in-memory store: data is lost on restart")
		store := memory.NewStore()
		store.PutStore(domain.Store{ID: 1, Name: "演示门店", Address: "-", Status: domain.StoreStatusActive})
		return store, nil, nil
	}
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Database initialized")
	return gormpersistence.NewUnitOfWork(db), db, nil
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel(), cfg.AppEnv)

	// 1. 基础设施
	uow, db, err := openUnitOfWork(cfg, log)
	if err != nil {
		return nil, err
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	enqueuer := tasks.NewEnqueuer(asynqClient)
	log.Info("Infrastructure initialized successfully")

	// 2. 外部服务。接口变量保持真正的 nil，避免 typed nil
	var (
		wxSession service.WeChatSessionClient
		wxSender  service.MessageSender
	)
	if cfg.WeChatConfigured() {
		wx := wechat.NewClient(cfg.WeChatAPIBase, cfg.WeChatAppID, cfg.WeChatAppSecret, stateRepo)
		wxSession, wxSender = wx, wx
		log.Info("WeChat client initialized")
	} else {
		log.Warn("WECHAT_APP_ID/WECHAT_APP_SECRET not set, mini-program login disabled")
	}

	// 3. Services
	engine := service.NewRoomEngine()
	roomService := service.NewRoomService(uow, engine, stateRepo, enqueuer)
	robotService := service.NewRobotService(uow, engine, cfg.Robot, stateRepo, enqueuer, stateRepo)
	authService, err := service.NewAuthService(uow, wxSession, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	exportService := service.NewExportService(uow)
	notifyService := service.NewNotifyService(uow, wxSender, cfg.WeChatRoomFullTemplate)
	if cfg.StoreDriver == StoreDriverMemory {
		if _, err := robotService.SeedRobots(context.Background(), 10, -1000); err != nil {
			return nil, err
		}
	}
	log.Info("Services initialized")

	// 4. Hub
	hubInstance := hub.NewHub()

	// 5. Worker Server
	var notifier worker.RoomFullNotifier
	if notifyService.Enabled() {
		notifier = notifyService
	}
	mux := worker.NewServeMux(robotService, notifier)
	workerServer := worker.NewWorkerServer(redisClientOpt, cfg.WorkerConcurrency, mux, log)

	// 6. Router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, RouterDeps{
		Rooms:     httpHandler.NewRoomHandler(roomService),
		Auth:      httpHandler.NewAuthHandler(authService),
		Export:    httpHandler.NewExportHandler(exportService),
		WebSocket: wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSOrigin),
		Limiter:   stateRepo,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// RouterDeps 路由依赖的处理器
type RouterDeps struct {
	Rooms     *httpHandler.RoomHandler
	Auth      *httpHandler.AuthHandler
	Export    *httpHandler.ExportHandler
	WebSocket *wsHandler.WebSocketHandler
	Limiter   middleware.RateLimiter
}

// NewRouter 注册中间件和全部路由
func NewRouter(cfg *Config, log *logrus.Logger, d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(LoggerMiddleware(log))
	router.Use(func(c *gin.Context) { /* CORS */
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/ws/tables", middleware.OptionalAuth(cfg.JWTSecret), d.WebSocket.HandleConnection)

	api := router.Group("", middleware.RateLimit(d.Limiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	api.POST("/login", d.Auth.Login)
	api.POST("/admin/login", d.Auth.AdminLogin)

	public := api.Group("", middleware.OptionalAuth(cfg.JWTSecret))
	{
		public.GET("/get-table-list", d.Rooms.GetTableList)
		public.GET("/get-table-detail", d.Rooms.GetTableDetail)
	}
	user := api.Group("", middleware.Auth(cfg.JWTSecret))
	{
		user.POST("/enter-room", d.Rooms.EnterRoom)
		user.POST("/exit-room", d.Rooms.ExitRoom)
		user.POST("/create-room", d.Rooms.CreateRoom)
	}
	admin := api.Group("", middleware.Auth(cfg.JWTSecret), middleware.RequireAdmin())
	{
		admin.POST("/admin-create-room", d.Rooms.AdminCreateRoom)
		admin.GET("/admin/export-tables", d.Export.ExportTables)
	}
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	a.stopSubscribe = cancel
	channel := redisstate.RoomEventsChannel(a.Config.KeyPrefix)
	go func() {
		if err := a.Hub.Subscribe(ctx, a.RedisClient, channel); err != nil {
			a.Log.WithError(err).Error("Room event subscription failed")
		}
	}()

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	if a.Config.RobotEnabled {
		a.registerPeriodicTasks()
	} else {
		a.Log.Info("Robot scheduler disabled (ROBOT_ENABLED=false)")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{
		Location: a.Config.Robot.Location,
	})

	payload, err := tasks.NewRobotTickTask()
	if err != nil {
		a.Log.Errorf("Failed to create robot tick task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeRobotTick, payload)

	schedule := a.Config.RobotTickSchedule
	entryID, err := scheduler.Register(schedule, task,
		asynq.Queue(tasks.QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(a.Config.Robot.TickLockTTL),
	)
	if err != nil {
		a.Log.Errorf("Could not register robot tick task: %v", err)
		return
	}
	a.Log.Infof("Robot tick task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	a.scheduler = scheduler

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.stopSubscribe != nil {
		a.stopSubscribe()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
			"request_id":  c.GetString(middleware.ContextRequestID),
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

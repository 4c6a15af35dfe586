package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-matcher-go/internal/api/handler"
	"resume-matcher-go/internal/api/router"
	"resume-matcher-go/internal/config"
	"resume-matcher-go/internal/logger"
	"resume-matcher-go/internal/outbox"
	"resume-matcher-go/internal/processor"
	"resume-matcher-go/internal/storage"
	"resume-matcher-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

// @title           Resume Matcher API
// @version         1.0
// @description     简历解析与结构化服务
// @BasePath  /api/v1
func main() {
	var configPath string
	var initConfigPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.StringVar(&initConfigPath, "init-config", "", "生成示例配置文件到指定路径后退出")
	pflag.Parse()

	if initConfigPath != "" {
		if err := config.CreateSampleConfig(initConfigPath); err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(1)
		}
		return
	}

	// 初始化日志系统
	initLogger()

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}

	// 1.1 按配置初始化链路追踪
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint != "" {
		shutdownTracing, err := tracing.InitTracerProvider(
			context.Background(),
			cfg.Tracing.ServiceName,
			cfg.Tracing.Endpoint,
			cfg.Tracing.SampleRatio,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("关闭链路追踪失败")
			}
		}()
		logger.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("链路追踪已启用")
	}

	// 2. 初始化存储管理器
	ctx := context.Background()
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 3. 初始化业务服务和API处理器
	resumeService, err := processor.NewResumeService(cfg, storageManager, &logger.Logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化简历服务失败")
	}
	resumeHandler := handler.NewResumeHandler(cfg, storageManager, resumeService)
	logger.Info().Msg("简历服务初始化成功")

	// 4. 启动事务性发件箱中继
	relay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, logger.Logger)
	relay.Start()
	defer relay.Stop()

	// 5. 启动消费者
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	// 5.1 上传消费者：启动失败按配置间隔重试
	retryInterval := config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second)
	go func() {
		prefetch := consumerWorkers(cfg, "upload", 10)
		startWithRetry(consumerCtx, retryInterval, "简历上传消费者", func() error {
			return resumeHandler.StartResumeUploadConsumer(consumerCtx, prefetch)
		})
	}()

	// 5.2 LLM结构化消费者
	go func() {
		prefetch := consumerWorkers(cfg, "structuring", 5)
		startWithRetry(consumerCtx, retryInterval, "结构化消费者", func() error {
			return resumeHandler.StartStructuringConsumer(consumerCtx, prefetch)
		})
	}()

	// 5.3 MD5记录清理任务
	go func() {
		resumeHandler.StartMD5CleanupTask(consumerCtx)
	}()

	// 6. 创建HTTP服务器并注册路由
	serverTracer, serverTracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(serverTracerCfg))
	router.RegisterRoutes(h, cfg, resumeHandler)

	// 7. 启动HTTP服务器
	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	// 8. 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	// 9. 优雅关闭，先停消费者和中继，再关HTTP服务器
	cancelConsumers()
	relay.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("服务器关闭失败")
	}

	logger.Info().Msg("优雅退出完成")
}

// 初始化日志系统
func initLogger() {
	// 默认开发环境使用美化输出，生产环境使用JSON格式
	isProduction := os.Getenv("ENV") == "production"

	// 尝试加载配置文件
	cfg, err := config.LoadConfig("")

	logConfig := logger.Config{
		Level:        "debug",
		Format:       "pretty",
		TimeFormat:   time.RFC3339,
		ReportCaller: true,
	}

	// 如果配置文件成功加载，使用配置文件中的日志设置
	if err == nil && cfg != nil {
		logConfig.Level = cfg.Logger.Level
		logConfig.Format = cfg.Logger.Format
		logConfig.TimeFormat = cfg.Logger.TimeFormat
		logConfig.ReportCaller = cfg.Logger.ReportCaller
		logConfig.SuppressPatterns = cfg.Logger.SuppressPatterns
	} else if isProduction {
		logConfig.Level = "info"
		logConfig.Format = "json"
		logConfig.ReportCaller = false
	}

	logger.Init(logConfig)

	// 设置一些全局的字段
	logger.Logger = logger.Logger.With().
		Str("app", "resume-matcher").
		Str("version", "1.0.0").
		Logger()

	// Hertz框架内部日志也走zerolog
	hlog.SetLogger(hertzzerolog.From(logger.Logger))
}

// startWithRetry 循环启动消费者直到成功或上下文取消
func startWithRetry(ctx context.Context, interval time.Duration, name string, start func() error) {
	for {
		err := start()
		if err == nil {
			return
		}
		logger.Error().Err(err).Str("consumer", name).Dur("retry_in", interval).Msg("启动消费者失败")
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// consumerWorkers 读取指定消费者的预取数量配置，未配置时使用默认值
func consumerWorkers(cfg *config.Config, name string, fallback int) int {
	if n, ok := cfg.RabbitMQ.ConsumerWorkers[name]; ok && n > 0 {
		return n
	}
	if cfg.RabbitMQ.PrefetchCount > 0 {
		return cfg.RabbitMQ.PrefetchCount
	}
	return fallback
}

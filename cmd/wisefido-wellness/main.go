package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/service"

	logpkg "wisefido-wellness/internal/common/logger"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-wellness")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. 获取租户和用户（每个进程实例服务一个被监测用户）
	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		logger.Fatal("TENANT_ID environment variable is required")
	}
	userID := os.Getenv("USER_ID")
	if userID == "" {
		logger.Fatal("USER_ID environment variable is required")
	}
	userName := os.Getenv("USER_NAME")
	if userName == "" {
		userName = userID // 告警短信中的称呼，缺省退回用户ID
	}

	// 4. 创建服务
	wellnessService, err := service.NewWellnessService(cfg, logger, tenantID, userID, userName)
	if err != nil {
		logger.Fatal("Failed to create wellness service",
			zap.Error(err),
		)
	}
	defer wellnessService.Stop()

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := wellnessService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel() // 取消上下文，停止服务
	case err := <-serviceErrChan:
		logger.Fatal("Service error",
			zap.Error(err),
		)
	}

	logger.Info("Wellness service stopped")
}

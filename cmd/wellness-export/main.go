package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wisefido-wellness/internal/common/database"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/export"
	"wisefido-wellness/internal/repository"

	logpkg "wisefido-wellness/internal/common/logger"

	"go.uber.org/zap"
)

// wellness-export 导出指定时间段内的归档升级案例为 Excel 文件
// 用法: TENANT_ID=xxx wellness-export -days 30 -out cases.xlsx
func main() {
	days := flag.Int("days", 30, "export cases opened within the last N days")
	out := flag.String("out", "wellness_cases.xlsx", "output file path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wellness-export")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		logger.Fatal("TENANT_ID environment variable is required")
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	casesRepo := repository.NewCasesRepository(db, logger)

	endTime := time.Now()
	startTime := endTime.AddDate(0, 0, -*days)

	ctx := context.Background()
	cases, err := casesRepo.ListCases(ctx, tenantID, startTime, endTime)
	if err != nil {
		logger.Fatal("Failed to list cases", zap.Error(err))
	}

	data, err := export.GenerateCasesExport(cases)
	if err != nil {
		logger.Fatal("Failed to generate export", zap.Error(err))
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Fatal("Failed to write output file", zap.Error(err))
	}

	logger.Info("Export complete",
		zap.String("tenant_id", tenantID),
		zap.Int("case_count", len(cases)),
		zap.String("output", *out),
	)
}

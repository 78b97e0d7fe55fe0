package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-wellness/internal/baseline"
	"wisefido-wellness/internal/common/database"
	"wisefido-wellness/internal/common/mqtt"
	commonredis "wisefido-wellness/internal/common/redis"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/consumer"
	"wisefido-wellness/internal/detector"
	"wisefido-wellness/internal/dispatch"
	"wisefido-wellness/internal/escalation"
	"wisefido-wellness/internal/models"
	"wisefido-wellness/internal/notify"
	"wisefido-wellness/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// tenantContacts 把租户绑定进联系人查询（协调器只关心 user）
type tenantContacts struct {
	repo     *repository.ContactsRepository
	tenantID string
}

func (t *tenantContacts) GetContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	return t.repo.GetContacts(ctx, t.tenantID, userID)
}

// tenantArchiver 把租户绑定进案例归档
type tenantArchiver struct {
	repo     *repository.CasesRepository
	tenantID string
}

func (t *tenantArchiver) ArchiveCase(ctx context.Context, escalationCase *models.EscalationCase) error {
	return t.repo.ArchiveCase(ctx, t.tenantID, escalationCase)
}

// WellnessService 健康监测服务（整合各层）
// 每个进程实例服务一个用户（TENANT_ID + USER_ID 注入）
type WellnessService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger
	tenantID    string
	userID      string

	// 各层组件
	baselinesRepo *repository.BaselinesRepository
	configsRepo   *repository.MonitoringConfigsRepository
	contactsRepo  *repository.ContactsRepository
	casesRepo     *repository.CasesRepository
	notifier      *notify.Notifier
	dispatcher    *dispatch.SMSDispatcher
	coordinator   *escalation.Coordinator
	engine        *Engine
	consumer      *consumer.Consumer
}

// NewWellnessService 创建健康监测服务
func NewWellnessService(cfg *config.Config, logger *zap.Logger, tenantID, userID, userName string) (*WellnessService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := commonredis.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
	}

	// 4. 创建 Repository 层
	baselinesRepo := repository.NewBaselinesRepository(db, logger)
	configsRepo := repository.NewMonitoringConfigsRepository(db, logger)
	contactsRepo := repository.NewContactsRepository(db, logger)
	casesRepo := repository.NewCasesRepository(db, logger)

	// 5. 创建通知与投递层
	kv := notify.NewRedisKVStore(redisClient)
	notifier := notify.NewNotifier(cfg, redisClient, kv, logger)
	dispatcher := dispatch.NewSMSDispatcher(cfg, logger)

	// 6. 加载持久化状态（基线 + 用户监测配置）
	profile, err := baselinesRepo.GetBaseline(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	mc, err := configsRepo.GetConfig(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitoring config: %w", err)
	}
	if mc == nil {
		mc = models.DefaultMonitoringConfig(userID, cfg.Wellness.Inactivity.DefaultThresholdMinutes)
	}

	// 7. 创建检测层
	learner := baseline.NewLearner(cfg, userID, profile, logger)
	fall := detector.NewFallDetector(cfg, logger)
	inactivity := detector.NewInactivityMonitor(cfg, userID, time.Now(), logger)
	deviation := detector.NewDeviationMonitor(cfg, learner, logger)

	// 8. 创建升级协调器
	archiver := &tenantArchiver{repo: casesRepo, tenantID: tenantID}
	coordinator := escalation.NewCoordinator(cfg, tenantID, userID, userName,
		&tenantContacts{repo: contactsRepo, tenantID: tenantID},
		dispatcher, archiver, notifier, escalation.SystemClock{}, logger)

	// 9. 创建引擎与消费者
	engine := NewEngine(cfg, tenantID, userID,
		learner, fall, inactivity, deviation,
		coordinator, notifier, archiver, baselinesRepo, configsRepo, mc, logger)
	mqttConsumer := consumer.NewConsumer(cfg, mqttClient, engine, userID, logger)

	return &WellnessService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		tenantID:      tenantID,
		userID:        userID,
		baselinesRepo: baselinesRepo,
		configsRepo:   configsRepo,
		contactsRepo:  contactsRepo,
		casesRepo:     casesRepo,
		notifier:      notifier,
		dispatcher:    dispatcher,
		coordinator:   coordinator,
		engine:        engine,
		consumer:      mqttConsumer,
	}, nil
}

// Start 启动服务
func (s *WellnessService) Start(ctx context.Context) error {
	s.logger.Info("Starting wellness service",
		zap.String("tenant_id", s.tenantID),
		zap.String("user_id", s.userID),
	)

	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	return nil
}

// Stop 停止服务（待引擎退出、在途投递完成后再关闭连接）
func (s *WellnessService) Stop() error {
	s.logger.Info("Stopping wellness service")

	if err := s.consumer.Stop(); err != nil {
		s.logger.Error("Failed to stop MQTT consumer", zap.Error(err))
	}
	s.mqttClient.Disconnect()

	s.engine.Wait()
	s.coordinator.Close()

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}

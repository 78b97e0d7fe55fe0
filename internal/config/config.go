package config

import (
	"os"
	"strconv"

	"wisefido-wellness/internal/common/config"
)

// Config 健康监测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 健康监测服务特定配置
	Wellness struct {
		// MQTT 主题配置
		Topics struct {
			Motion   string // 加速度计强度流，如 "wellness/{user}/motion"
			Activity string // 活动信号（步数增量/解锁等），如 "wellness/{user}/activity"
			CheckIn  string // 用户 "I'm OK" 确认，如 "wellness/{user}/checkin"
		}

		// Redis Streams 配置（UI 订阅的事件通道）
		Streams struct {
			Events string // 事件流名称，如 "wellness:events"
		}

		// Redis 缓存配置（UI 拉取的状态快照 + 活动案例标记）
		Cache struct {
			StatusKeyPrefix string // 状态缓存键前缀，如 "wellness:user:"
			StatusSuffix    string // 状态缓存键后缀，如 ":status"
			StatusTTL       int    // 状态缓存 TTL（秒）
			CaseKeyPrefix   string // 活动案例标记键前缀，如 "wellness:case:"
			CaseSuffix      string // 活动案例标记键后缀，如 ":active"
			CaseTTL         int    // 活动案例标记 TTL（秒）
		}

		// 基线学习配置
		Learning struct {
			WindowDays       int     // 学习窗口天数，默认 14
			SpreadMultiplier float64 // 典型值判断带宽 k（mean ± k·spread），默认 2.0
			MinBucketSamples int     // 桶内最少观测数，不足则视为典型（fail open），默认 4
			MinSpread        float64 // spread 下限，避免零方差桶误判，默认 1.0
		}

		// 跌倒检测配置
		Fall struct {
			ImpactThresholdG      float64 // 冲击阈值（g），默认 2.5
			LowActivityThresholdG float64 // 静止判定阈值（g），默认 0.5
			StillnessWindowSec    int     // 静止确认窗口（秒），默认 3
		}

		// 静默（无活动）监测配置
		Inactivity struct {
			DefaultThresholdMinutes int     // 默认静默阈值（分钟），默认 240
			AbsoluteCeilingHours    int     // 绝对上限（小时），静音时段也不能无限延迟，默认 18
			CheckInFraction         float64 // 轻提醒触发比例，默认 0.75
		}

		// 模式偏离监测配置
		Deviation struct {
			ConsecutivePeriods int // 连续非典型周期数，默认 2
			LateNightStartHour int // 夜猫子豁免时段开始（小时），默认 22
			LateNightEndHour   int // 夜猫子豁免时段结束（小时），默认 5
		}

		// 升级协调配置
		Escalation struct {
			FallCountdownSec    int // 跌倒候选倒计时（秒），默认 60
			DefaultCountdownSec int // 其他事件倒计时（秒），默认 300
		}

		SampleBufferSize int // 传感器样本缓冲区大小，默认 1024
	}

	// SMS 网关配置（Alert Dispatcher）
	SMS struct {
		GatewayURL string
		APIKey     string
		Sender     string
		TimeoutSec int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-wellness")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Wellness.Topics.Motion = getEnv("TOPIC_MOTION", "wellness/+/motion")
	cfg.Wellness.Topics.Activity = getEnv("TOPIC_ACTIVITY", "wellness/+/activity")
	cfg.Wellness.Topics.CheckIn = getEnv("TOPIC_CHECKIN", "wellness/+/checkin")

	cfg.Wellness.Streams.Events = getEnv("STREAM_EVENTS", "wellness:events")

	cfg.Wellness.Cache.StatusKeyPrefix = getEnv("CACHE_STATUS_PREFIX", "wellness:user:")
	cfg.Wellness.Cache.StatusSuffix = ":status"
	cfg.Wellness.Cache.StatusTTL = getEnvInt("CACHE_STATUS_TTL", 120)
	cfg.Wellness.Cache.CaseKeyPrefix = getEnv("CACHE_CASE_PREFIX", "wellness:case:")
	cfg.Wellness.Cache.CaseSuffix = ":active"
	cfg.Wellness.Cache.CaseTTL = getEnvInt("CACHE_CASE_TTL", 3600)

	// 经验调参常量全部可配置，默认值来自现场调校
	cfg.Wellness.Learning.WindowDays = getEnvInt("LEARNING_WINDOW_DAYS", 14)
	cfg.Wellness.Learning.SpreadMultiplier = getEnvFloat("LEARNING_SPREAD_MULTIPLIER", 2.0)
	cfg.Wellness.Learning.MinBucketSamples = getEnvInt("LEARNING_MIN_BUCKET_SAMPLES", 4)
	cfg.Wellness.Learning.MinSpread = getEnvFloat("LEARNING_MIN_SPREAD", 1.0)

	cfg.Wellness.Fall.ImpactThresholdG = getEnvFloat("FALL_IMPACT_THRESHOLD_G", 2.5)
	cfg.Wellness.Fall.LowActivityThresholdG = getEnvFloat("FALL_LOW_ACTIVITY_THRESHOLD_G", 0.5)
	cfg.Wellness.Fall.StillnessWindowSec = getEnvInt("FALL_STILLNESS_WINDOW_SEC", 3)

	cfg.Wellness.Inactivity.DefaultThresholdMinutes = getEnvInt("INACTIVITY_DEFAULT_THRESHOLD_MIN", 240)
	cfg.Wellness.Inactivity.AbsoluteCeilingHours = getEnvInt("INACTIVITY_ABSOLUTE_CEILING_HOURS", 18)
	cfg.Wellness.Inactivity.CheckInFraction = getEnvFloat("INACTIVITY_CHECKIN_FRACTION", 0.75)

	cfg.Wellness.Deviation.ConsecutivePeriods = getEnvInt("DEVIATION_CONSECUTIVE_PERIODS", 2)
	cfg.Wellness.Deviation.LateNightStartHour = getEnvInt("DEVIATION_LATE_NIGHT_START", 22)
	cfg.Wellness.Deviation.LateNightEndHour = getEnvInt("DEVIATION_LATE_NIGHT_END", 5)

	cfg.Wellness.Escalation.FallCountdownSec = getEnvInt("ESCALATION_FALL_COUNTDOWN_SEC", 60)
	cfg.Wellness.Escalation.DefaultCountdownSec = getEnvInt("ESCALATION_DEFAULT_COUNTDOWN_SEC", 300)

	cfg.Wellness.SampleBufferSize = getEnvInt("SAMPLE_BUFFER_SIZE", 1024)

	cfg.SMS.GatewayURL = getEnv("SMS_GATEWAY_URL", "http://localhost:8080")
	cfg.SMS.APIKey = getEnv("SMS_API_KEY", "")
	cfg.SMS.Sender = getEnv("SMS_SENDER", "WiseFido")
	cfg.SMS.TimeoutSec = getEnvInt("SMS_TIMEOUT_SEC", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// EngineConfig 感知引擎的可调参数
// 阈值都是配置而非固定契约，默认值记录在 DESIGN.md
type EngineConfig struct {
	// 实体显著遭遇达到该次数即提升为持久实体
	PromotionOccurrenceThreshold int `json:"promotion_occurrence_threshold"`

	// 同一代理人两次 agent_initiative 触发之间的冷却窗口（模拟分钟）
	InitiativeCooldownMinutes int `json:"initiative_cooldown_minutes"`

	// 代理人内部压力越过该值才会主动发起
	InitiativePressureThreshold float64 `json:"initiative_pressure_threshold"`

	// 环境变化显著度达到该值才触发 environment_shift
	EnvironmentSalienceThreshold float64 `json:"environment_salience_threshold"`

	// 情节记忆的显著度门槛
	MemorySalienceThreshold float64 `json:"memory_salience_threshold"`

	// 渲染服务单次请求超时（秒）与重试预算
	RendererTimeoutSeconds int `json:"renderer_timeout_seconds"`
	RendererRetryBudget    int `json:"renderer_retry_budget"`
}

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 渲染服务（认知/渲染协作方）配置
	RendererProvider string            `json:"renderer_provider"`
	RendererConfig   map[string]string `json:"renderer_config"`

	// 引擎参数
	Engine EngineConfig `json:"engine"`
}

// DefaultEngineConfig 返回引擎参数默认值
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PromotionOccurrenceThreshold: 3,
		InitiativeCooldownMinutes:    10,
		InitiativePressureThreshold:  0.7,
		EnvironmentSalienceThreshold: 0.6,
		MemorySalienceThreshold:      0.4,
		RendererTimeoutSeconds:       90,
		RendererRetryBudget:          3,
	}
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	engine := DefaultEngineConfig()
	engine.PromotionOccurrenceThreshold = getEnvInt("PROMOTION_OCCURRENCE_THRESHOLD", engine.PromotionOccurrenceThreshold)
	engine.InitiativeCooldownMinutes = getEnvInt("INITIATIVE_COOLDOWN_MINUTES", engine.InitiativeCooldownMinutes)
	engine.InitiativePressureThreshold = getEnvFloat("INITIATIVE_PRESSURE_THRESHOLD", engine.InitiativePressureThreshold)
	engine.EnvironmentSalienceThreshold = getEnvFloat("ENVIRONMENT_SALIENCE_THRESHOLD", engine.EnvironmentSalienceThreshold)
	engine.MemorySalienceThreshold = getEnvFloat("MEMORY_SALIENCE_THRESHOLD", engine.MemorySalienceThreshold)
	engine.RendererTimeoutSeconds = getEnvInt("RENDERER_TIMEOUT_SECONDS", engine.RendererTimeoutSeconds)
	engine.RendererRetryBudget = getEnvInt("RENDERER_RETRY_BUDGET", engine.RendererRetryBudget)

	config := &AppConfig{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		DebugMode:        getEnvBool("DEBUG_MODE", true),
		RendererProvider: getEnv("RENDERER_PROVIDER", "openai"),
		RendererConfig: map[string]string{
			"api_key":       getEnv("RENDERER_API_KEY", ""),
			"default_model": getEnv("RENDERER_MODEL", "gpt-4o"),
		},
		Engine: engine,
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("警告: 环境变量 %s 不是合法整数: %v\n", key, err)
		return defaultValue
	}
	return n
}

// getEnvFloat 获取浮点类型环境变量
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		fmt.Printf("警告: 环境变量 %s 不是合法浮点数: %v\n", key, err)
		return defaultValue
	}
	return f
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = baseConfig

	// 尝试从文件合并已保存的配置（保留文件中的渲染服务设置，基础配置以环境为准）
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 如果文件中没有API密钥，使用环境变量的密钥
				if savedConfig.RendererConfig != nil && savedConfig.RendererConfig["api_key"] == "" {
					savedConfig.RendererConfig["api_key"] = baseConfig.RendererConfig["api_key"]
				}

				// 文件中没有引擎参数时回退到环境/默认值
				if savedConfig.Engine == (EngineConfig{}) {
					savedConfig.Engine = baseConfig.Engine
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return baseConfig
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateRendererConfig 更新渲染服务配置
func UpdateRendererConfig(provider string, rendererConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.RendererProvider = provider
	currentConfig.RendererConfig = rendererConfig

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Endpoint is one entry of RPC_ENDPOINTS.
type Endpoint struct {
	Name string
	URL  string
}

type Config struct {
	Endpoints       []Endpoint
	EndpointOrder   []int         // 为空则按 RPC_ENDPOINTS 顺序
	RPCTimeout      time.Duration // 单次请求超时
	RPCRateLimit    float64       // 0 = 不限速
	RPCBurst        int
	TxWaitTimeout   time.Duration
	TxPollInterval  time.Duration
	LogLevel        string
	LogFormat       string
	DatabaseURL     string // 为空则不启用交易日志
	MetricsAddr     string
	ExpectedChainID int64 // 0 = 不校验
}

func Load() (*Config, error) {
	_ = godotenv.Load() // .env文件是可选的

	endpoints, err := ParseEndpoints(getEnv("RPC_ENDPOINTS", ""))
	if err != nil {
		return nil, err
	}
	order, err := ParseEndpointOrder(getEnv("RPC_ENDPOINT_ORDER", ""))
	if err != nil {
		return nil, err
	}

	return &Config{
		Endpoints:       endpoints,
		EndpointOrder:   order,
		RPCTimeout:      time.Duration(getEnvAsInt64("RPC_TIMEOUT_MS", 3000)) * time.Millisecond,
		RPCRateLimit:    getEnvAsFloat("RPC_RPS", 0),
		RPCBurst:        int(getEnvAsInt64("RPC_BURST", 1)),
		TxWaitTimeout:   time.Duration(getEnvAsInt64("TX_WAIT_TIMEOUT_SECONDS", 320)) * time.Second,
		TxPollInterval:  time.Duration(getEnvAsInt64("TX_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		ExpectedChainID: getEnvAsInt64("EXPECTED_CHAIN_ID", 0),
	}, nil
}

// ParseEndpoints parses a comma separated list of "name=url" or bare "url"
// entries. Bare entries are named rpc-<position>. Order is preserved.
func ParseEndpoints(s string) ([]Endpoint, error) {
	var out []Endpoint
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url := fmt.Sprintf("rpc-%d", i), part
		if k, v, ok := strings.Cut(part, "="); ok && !strings.Contains(k, "://") {
			name, url = strings.TrimSpace(k), strings.TrimSpace(v)
		}
		if url == "" {
			return nil, fmt.Errorf("endpoint %q has an empty URL", name)
		}
		out = append(out, Endpoint{Name: name, URL: url})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("RPC_ENDPOINTS is empty")
	}
	return out, nil
}

// ParseEndpointOrder parses RPC_ENDPOINT_ORDER, a comma separated list of
// positions in RPC_ENDPOINTS. An empty string yields nil.
func ParseEndpointOrder(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid RPC_ENDPOINT_ORDER entry %q: %w", part, err)
		}
		out = append(out, i)
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s: %s, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid %s: %s, using default %g", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

package config

import (
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ZilDuck/nft-marketplace/internal/log"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Env       string
	Network   string
	Debug     bool
	LogPath   string
	SentryDsn string

	MarketplaceAddress string
	DatastorePath      string
	QueueSize          int

	HttpPort    string
	HttpTimeout int
	ApiUrl      string

	ElasticSearch ElasticSearchConfig
	Aws           AwsConfig
	Rabbitmq      RabbitmqConfig
}

type AwsConfig struct {
	AccessKey string
	SecretKey string
	Region    string
}

type ElasticSearchConfig struct {
	Hosts            []string
	Sniff            bool
	HealthCheck      bool
	Debug            bool
	Username         string
	Password         string
	Aws              bool
	BulkPersistCount int
	Refresh          string
}

type RabbitmqConfig struct {
	Dsn      string
	Exchange string
}

// Enabled reports whether an Elasticsearch cluster is configured.
func (c ElasticSearchConfig) Enabled() bool {
	return len(c.Hosts) != 0
}

func (c RabbitmqConfig) Enabled() bool {
	return c.Dsn != ""
}

// Init loads the .env file when present and starts the global logger for the named binary.
func Init(name string) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		zap.L().With(zap.Error(err)).Fatal("Unable to init config")
	}

	initLogger(name)
}

func initLogger(name string) {
	cfg := Get()
	log.NewLogger(strings.TrimSuffix(cfg.LogPath, "/")+"/"+name+".log", cfg.Debug, cfg.SentryDsn)
}

func Get() *Config {
	return &Config{
		Env:                getString("ENV", "dev"),
		Network:            getString("NETWORK", "localhost"),
		Debug:              getBool("DEBUG", false),
		LogPath:            getString("LOG_PATH", "./var/log"),
		SentryDsn:          getString("SENTRY_DSN", ""),
		MarketplaceAddress: getString("MARKETPLACE_ADDRESS", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		DatastorePath:      getString("DATASTORE_PATH", "./var/datastore"),
		QueueSize:          getInt("QUEUE_SIZE", 128),
		HttpPort:           getString("HTTP_PORT", "8080"),
		HttpTimeout:        getInt("HTTP_TIMEOUT", 30),
		ApiUrl:             getString("API_URL", "http://localhost:8080"),
		Aws: AwsConfig{
			AccessKey: getString("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getString("AWS_SECRET_KEY_ID", ""),
			Region:    getString("AWS_REGION", ""),
		},
		ElasticSearch: ElasticSearchConfig{
			Hosts:            getSlice("ELASTIC_SEARCH_HOSTS", make([]string, 0), ","),
			Sniff:            getBool("ELASTIC_SEARCH_SNIFF", true),
			HealthCheck:      getBool("ELASTIC_SEARCH_HEALTH_CHECK", true),
			Debug:            getBool("ELASTIC_SEARCH_DEBUG", false),
			Username:         getString("ELASTIC_SEARCH_USERNAME", ""),
			Password:         getString("ELASTIC_SEARCH_PASSWORD", ""),
			Aws:              getBool("ELASTIC_SEARCH_AWS", false),
			BulkPersistCount: getInt("ELASTIC_SEARCH_BULK_PERSIST_COUNT", 300),
			Refresh:          getString("ELASTIC_SEARCH_REFRESH", "wait_for"),
		},
		Rabbitmq: RabbitmqConfig{
			Dsn:      getString("RABBITMQ_DSN", ""),
			Exchange: getString("RABBITMQ_EXCHANGE", "marketplace.events"),
		},
	}
}

func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) int {
	valStr := getString(key, "")
	val, _, err := big.ParseFloat(valStr, 10, 0, big.ToNearestEven)
	if err != nil {
		return defaultValue
	}

	intVal, _ := val.Int64()
	return int(intVal)
}

func getBool(key string, defaultValue bool) bool {
	valStr := getString(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultValue
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	return strings.Split(valStr, sep)
}

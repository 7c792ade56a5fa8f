package server

import (
	"strings"
	"time"

	mid "github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/util"
	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/common"
)

const (
	StoreOpensearch    = "opensearch"
	StoreElasticsearch = "elasticsearch"
	StorePgvector      = "pgvector"
)

type Config struct {
	Port string

	StoreAdapter   string
	SearchURLs     []string
	SearchUser     string
	SearchPassword string
	SearchIndex    string
	SearchInsecure bool
	DatabaseURL    string

	SimilarityParallelism  int
	SimilarityRoundDecimal int
	StatsParallelism       int
	Limits                 mid.Limits

	RequestTimeout     time.Duration
	StartupPingRetries int
	CORSOrigins        []string

	AuthURL      string
	MasterAPIKey string

	Providers          ProviderConfig
	Models             map[ai.Provider]string
	MaxAbstractTokens  int
	SummaryTemperature float64
	SummaryMaxTokens   int
}

// LoadConfig reads the server configuration from the environment.
func LoadConfig() Config {
	return Config{
		Port: util.GetEnvString("PORT", "8777"),

		StoreAdapter:   strings.ToLower(util.GetEnvString("STORE_ADAPTER", StoreOpensearch)),
		SearchURLs:     util.GetEnvList("SEARCH_URL", []string{"http://localhost:9200"}),
		SearchUser:     util.GetEnv("SEARCH_USER"),
		SearchPassword: util.GetEnv("SEARCH_PASSWORD"),
		SearchIndex:    util.GetEnvString("SEARCH_INDEX", "ndltd"),
		SearchInsecure: util.GetEnvBool("SEARCH_INSECURE", false),
		DatabaseURL:    util.GetEnv("DATABASE_URL"),

		SimilarityParallelism:  int(util.GetEnvNumeric("SIMILARITY_PARALLELISM", 1)),
		SimilarityRoundDecimal: int(util.GetEnvNumeric("SIMILARITY_ROUND_DECIMAL", common.DefaultRoundDecimal)),
		StatsParallelism:       int(util.GetEnvNumeric("STATS_PARALLELISM", len(common.AggregationFields))),
		Limits: mid.Limits{
			MaxLayer:    int(util.GetEnvNumeric("SIMILARITY_MAX_LAYER", mid.DefaultLimits.MaxLayer)),
			MaxNResults: int(util.GetEnvNumeric("SIMILARITY_MAX_RESULTS", mid.DefaultLimits.MaxNResults)),
			MaxRelatedK: int(util.GetEnvNumeric("RELATED_MAX_K", mid.DefaultLimits.MaxRelatedK)),
		},

		RequestTimeout:     util.GetEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		StartupPingRetries: int(util.GetEnvNumeric("STARTUP_PING_RETRIES", 5)),
		CORSOrigins:        util.GetEnvList("CORS_ORIGINS", []string{"*"}),

		AuthURL:      util.GetEnv("AUTH_URL"),
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),

		Providers: ProviderConfig{
			GoogleAPIKey:    util.GetEnv("GOOGLE_API_KEY"),
			AnthropicAPIKey: util.GetEnv("ANTHROPIC_API_KEY"),
			OpenAIAPIKey:    util.GetEnv("OPENAI_API_KEY"),
			OpenAIBaseURL:   util.GetEnv("OPENAI_BASE_URL"),
			OllamaURL:       util.GetEnv("OLLAMA_URL"),
			OllamaAPIKey:    util.GetEnv("OLLAMA_API_KEY"),
		},
		Models:             loadModels(),
		MaxAbstractTokens:  int(util.GetEnvNumeric("SUMMARY_MAX_ABSTRACT_TOKENS", 1024)),
		SummaryTemperature: util.GetEnvNumeric("SUMMARY_TEMPERATURE", 0),
		SummaryMaxTokens:   int(util.GetEnvNumeric("SUMMARY_MAX_OUTPUT_TOKENS", 0)),
	}
}

// loadModels reads AI_<PROVIDER>_MODEL for every provider.
func loadModels() map[ai.Provider]string {
	models := make(map[ai.Provider]string, len(ai.Providers))
	for _, p := range ai.Providers {
		if m := util.GetEnv("AI_" + strings.ToUpper(p.String()) + "_MODEL"); m != "" {
			models[p] = m
		}
	}
	return models
}

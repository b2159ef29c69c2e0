package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Operation names, used as config keys, metric attributes and breaker names.
const (
	OperationExtract = "extract"
	OperationTailor  = "tailor"
	OperationExplain = "explain"
	OperationEdit    = "edit"
)

// Operations lists every model call shape in conversation order.
var Operations = []string{OperationExtract, OperationTailor, OperationExplain, OperationEdit}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", ProviderOpenAI)
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.baseURL", "")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 1)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.persona", "")
	v.SetDefault("ai.personaFile", "")

	// Extraction is a structured call; keep it deterministic and short.
	v.SetDefault("ai.extract.timeout", 30*time.Second)
	v.SetDefault("ai.extract.temperature", 0.0)

	v.SetDefault("ai.tailor.timeout", 90*time.Second)
	v.SetDefault("ai.explain.timeout", 60*time.Second)
	v.SetDefault("ai.edit.timeout", 60*time.Second)

	for _, op := range Operations {
		// Empty strings inherit the global value but keep the keys visible to AutomaticEnv.
		v.SetDefault("ai."+op+".provider", "")
		v.SetDefault("ai."+op+".model", "")
		v.SetDefault("ai."+op+".apiKey", "")
		v.SetDefault("ai."+op+".baseURL", "")

		prefix := "ai." + op + ".circuitBreaker."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"maxRequests", 3)
		v.SetDefault(prefix+"interval", 60*time.Second)
		v.SetDefault(prefix+"timeout", 60*time.Second)
		v.SetDefault(prefix+"minRequests", 3)
		v.SetDefault(prefix+"failureThreshold", 0.6)
	}

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	// Posting a job description runs three model calls in one request.
	v.SetDefault("server.writeTimeout", 5*time.Minute)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)
	v.SetDefault("server.sessions.ttl", 30*time.Minute)
	v.SetDefault("server.sessions.cleanupInterval", time.Minute)
	v.SetDefault("server.sessions.maxSessions", 1000)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.botName", "Resume Tailor 🤵")
	v.SetDefault("app.exportDir", "exports")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024) // 1MB
	v.SetDefault("app.watchPrompts", false)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.timeout", 10*time.Second)
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.aiKey", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "resumetailor")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.conversation.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 15*time.Second)
	v.SetDefault("observability.healthCheck.aiModelCheckTimeout", 10*time.Second)
}

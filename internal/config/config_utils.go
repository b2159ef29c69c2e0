package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyAIKeyFallbacks()
	c.applyServerAPIKeyFallbacks()
	c.applyObservabilityDefaults()
}

// applyAIKeyFallbacks reads the provider's conventional key variable when no key is configured
func (c *Config) applyAIKeyFallbacks() {
	if c.AI.APIKey != "" {
		return
	}
	switch c.AI.Provider {
	case ProviderOpenAI:
		c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// applyServerAPIKeyFallbacks splits a comma-separated RESUMETAILOR_SERVER_APIKEYS value
func (c *Config) applyServerAPIKeyFallbacks() {
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("RESUMETAILOR_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
	if c.App.LogLevel == "debug" && !c.Observability.ConsoleOutput {
		c.Observability.ConsoleOutput = true
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

func splitAndTrim(value string) []string {
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"RESUMETAILOR_AI_APIKEY",
		"RESUMETAILOR_AI_PROVIDER",
		"RESUMETAILOR_AI_MODEL",
		"RESUMETAILOR_SERVER_PORT",
		"RESUMETAILOR_SERVER_HOST",
		"RESUMETAILOR_APP_LOGLEVEL",
		"RESUMETAILOR_VAULT_ENABLED",
		"OPENAI_API_KEY",
		"GEMINI_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] AI Provider: %s", c.AI.Provider)
	log.Printf("[CONFIG] AI Model: %s", c.AI.Model)
	if c.AI.APIKey != "" {
		log.Println("[CONFIG] AI API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] AI API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Server: %s:%s", c.Server.Host, c.Server.Port)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Export Dir: %s", c.App.ExportDir)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)

	for _, op := range Operations {
		opCfg := c.ForOperation(op)
		log.Printf("[CONFIG] %s - Provider: %s, Model: %s, Timeout: %s, Retries: %d",
			op, opCfg.Provider, opCfg.Model, *opCfg.Timeout, *opCfg.MaxRetries)
	}

	log.Println("[CONFIG] =====================================")
}

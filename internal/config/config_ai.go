package config

import "time"

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.BaseURL == "" {
		opCfg.BaseURL = c.AI.BaseURL
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		retries := c.AI.MaxRetries
		opCfg.MaxRetries = &retries
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
}

// ForOperation returns the resolved model configuration for one of Operations.
// Unknown names resolve to the global settings.
func (c *Config) ForOperation(operation string) OperationAIConfig {
	var opCfg OperationAIConfig
	switch operation {
	case OperationExtract:
		opCfg = c.AI.Extract
	case OperationTailor:
		opCfg = c.AI.Tailor
	case OperationExplain:
		opCfg = c.AI.Explain
	case OperationEdit:
		opCfg = c.AI.Edit
	}
	c.applyOperationDefaults(&opCfg)
	return opCfg
}

func (c *Config) GetExtractConfig() OperationAIConfig { return c.ForOperation(OperationExtract) }
func (c *Config) GetTailorConfig() OperationAIConfig  { return c.ForOperation(OperationTailor) }
func (c *Config) GetExplainConfig() OperationAIConfig { return c.ForOperation(OperationExplain) }
func (c *Config) GetEditConfig() OperationAIConfig    { return c.ForOperation(OperationEdit) }

const (
	// maxRetryBackoff is the cap the model client puts on the pause before a retry.
	maxRetryBackoff = 30 * time.Second
	// writeTimeoutMargin covers rendering and writing the response after the model calls.
	writeTimeoutMargin = 30 * time.Second
)

// PostingTurnBudget is the longest a job posting turn can wait on models.
// Extraction, tailoring and the explanation run one after another, each with
// every attempt timing out and the longest pause before each retry.
func (c *Config) PostingTurnBudget() time.Duration {
	var total time.Duration
	for _, op := range []string{OperationExtract, OperationTailor, OperationExplain} {
		opCfg := c.ForOperation(op)
		retries := max(*opCfg.MaxRetries, 0)
		total += time.Duration(retries+1)*(*opCfg.Timeout) + time.Duration(retries)*maxRetryBackoff
	}
	return total
}

// EffectiveWriteTimeout raises the configured server write timeout so a
// posting turn can finish before the connection is cut. Zero stays unbounded.
func (c *Config) EffectiveWriteTimeout() time.Duration {
	if c.Server.WriteTimeout <= 0 {
		return 0
	}
	return max(c.Server.WriteTimeout, c.PostingTurnBudget()+writeTimeoutMargin)
}

// promptConfigFor returns the raw prompt overrides of an operation.
func (c *Config) promptConfigFor(operation string) PromptConfig {
	switch operation {
	case OperationExtract:
		return c.AI.Extract.Prompts
	case OperationTailor:
		return c.AI.Tailor.Prompts
	case OperationExplain:
		return c.AI.Explain.Prompts
	case OperationEdit:
		return c.AI.Edit.Prompts
	}
	return PromptConfig{}
}

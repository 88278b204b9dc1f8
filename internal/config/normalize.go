package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizePipeline()
	c.normalizeLLM()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LECTERN_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ScanInterval < 0 {
		c.Workflow.ScanInterval = 0
	}
	if c.Workflow.WatchDebounceMS <= 0 {
		c.Workflow.WatchDebounceMS = defaultWatchDebounceMS
	}
	if c.Workflow.RecentLimit <= 0 {
		c.Workflow.RecentLimit = defaultRecentLimit
	}
}

func (c *Config) normalizePipeline() {
	if len(c.Pipeline.TranslateCommand) == 0 {
		if value, ok := os.LookupEnv("LECTERN_TRANSLATE_COMMAND"); ok {
			c.Pipeline.TranslateCommand = strings.Fields(value)
		}
	}
	args := c.Pipeline.TranslateCommand[:0]
	for _, arg := range c.Pipeline.TranslateCommand {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Pipeline.TranslateCommand = args
	if c.Pipeline.TranslateTimeout <= 0 {
		c.Pipeline.TranslateTimeout = defaultTranslateTimeout
	}
	c.Pipeline.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.SourceLanguage))
	if c.Pipeline.SourceLanguage == "" {
		c.Pipeline.SourceLanguage = defaultSourceLanguage
	}
	c.Pipeline.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.TargetLanguage))
	if c.Pipeline.TargetLanguage == "" {
		c.Pipeline.TargetLanguage = defaultTargetLanguage
	}
	if c.Pipeline.MaxPages < 0 {
		c.Pipeline.MaxPages = 0
	}
	if c.Pipeline.ChunkChars <= 0 {
		c.Pipeline.ChunkChars = defaultChunkChars
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("LECTERN_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

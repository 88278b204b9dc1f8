package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if filepath.Clean(c.Paths.DataDir) == filepath.Clean(c.Paths.OutputDir) {
		return errors.New("paths.output_dir must differ from paths.data_dir")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind: %w", err)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	for _, lang := range []string{c.Pipeline.SourceLanguage, c.Pipeline.TargetLanguage} {
		switch lang {
		case "en", "zh":
		default:
			return fmt.Errorf("pipeline languages must be \"en\" or \"zh\", got %q", lang)
		}
	}
	if c.Pipeline.SourceLanguage == c.Pipeline.TargetLanguage {
		return errors.New("pipeline.source_language and pipeline.target_language must differ")
	}
	if len(c.Pipeline.TranslateCommand) > 0 {
		joined := strings.Join(c.Pipeline.TranslateCommand, " ")
		if !strings.Contains(joined, "{input}") || !strings.Contains(joined, "{output}") {
			return errors.New("pipeline.translate_command must reference {input} and {output}")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

// TranslatorConfigured reports whether the translate stage has a backend.
func (c *Config) TranslatorConfigured() bool {
	return len(c.Pipeline.TranslateCommand) > 0 || (c.LLM.APIKey != "" && c.LLM.Model != "")
}

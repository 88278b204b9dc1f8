package config

const (
	defaultDataDir          = "~/.local/share/lectern/data"
	defaultOutputDir        = "~/.local/share/lectern/output"
	defaultLogDir           = "~/.local/share/lectern/logs"
	defaultAPIBind          = "127.0.0.1:7510"
	defaultScanInterval     = 60
	defaultWatchDebounceMS  = 500
	defaultRecentLimit      = 50
	defaultTranslateTimeout = 1800
	defaultSourceLanguage   = "en"
	defaultTargetLanguage   = "zh"
	defaultChunkChars       = 6000
	defaultLLMBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMTimeout       = 120
	defaultLLMTitle         = "lectern translator"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			ScanInterval:    defaultScanInterval,
			WatchDataDir:    true,
			WatchDebounceMS: defaultWatchDebounceMS,
			RecentLimit:     defaultRecentLimit,
		},
		Pipeline: Pipeline{
			TranslateTimeout: defaultTranslateTimeout,
			SourceLanguage:   defaultSourceLanguage,
			TargetLanguage:   defaultTargetLanguage,
			ChunkChars:       defaultChunkChars,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultWatchDir                 = "~/.local/share/feple/data"
	defaultOutputDir                = "~/.local/share/feple/output"
	defaultLogDir                   = "~/.local/share/feple/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultWorkers                  = 4
	defaultExtractionTimeoutSeconds = 600
	defaultPredictionTimeoutSeconds = 120
	defaultQuietPeriodMillis        = 1000
	defaultStabilityTimeoutMillis   = 30000
	defaultReportIntervalSeconds    = 60
	defaultHighConfidenceThreshold  = 0.8
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:  defaultWatchDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Pipeline: Pipeline{
			Workers:                  defaultWorkers,
			ExtractionTimeoutSeconds: defaultExtractionTimeoutSeconds,
			PredictionTimeoutSeconds: defaultPredictionTimeoutSeconds,
		},
		Watcher: Watcher{
			QuietPeriodMillis:  defaultQuietPeriodMillis,
			StabilityTimeoutMs: defaultStabilityTimeoutMillis,
			Extensions:         []string{".json"},
		},
		Report: Report{
			IntervalSeconds:         defaultReportIntervalSeconds,
			HighConfidenceThreshold: defaultHighConfidenceThreshold,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

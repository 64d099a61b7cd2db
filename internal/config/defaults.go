package config

import "time"

const (
	defaultOutputDir             = "~/.local/share/ripcast/output"
	defaultWorkDir               = "~/.local/share/ripcast/work"
	defaultLogDir                = "~/.local/share/ripcast/logs"
	defaultStateDir              = "~/.local/share/ripcast/state"
	defaultAPIBind               = "127.0.0.1:8090"
	defaultExtractorBinary       = "yt-dlp"
	defaultExtractorTimeout      = 1800
	defaultMaxConcurrent         = 3
	defaultFormat                = "mp3"
	defaultMaxNameLength         = 100
	defaultMaxBatchSize          = 20
	defaultTokenTTLMinutes       = 10
	defaultTokenSweepMinutes     = 5
	defaultJobWindowMinutes      = 60
	defaultRetentionSweepMinutes = 60
	defaultArtifactMaxAge        = 240
	defaultStreamGraceMillis     = 500
	defaultLimitWindowSeconds    = 60
	defaultLimitMaxRequests      = 60
	defaultLimitMaxJobs          = 10
	defaultLimitBurstThreshold   = 5
	defaultLimitBurstDelayMs     = 250
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

func defaultDomains() []string {
	return []string{
		"youtube.com",
		"www.youtube.com",
		"m.youtube.com",
		"music.youtube.com",
		"youtu.be",
		"soundcloud.com",
		"vimeo.com",
		"bandcamp.com",
	}
}

func defaultFormats() []string {
	return []string{"mp3", "m4a", "opus", "flac", "wav"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
			APIBind:   defaultAPIBind,
		},
		Extractor: Extractor{
			Binary:         defaultExtractorBinary,
			TimeoutSeconds: defaultExtractorTimeout,
			MaxConcurrent:  defaultMaxConcurrent,
		},
		Validation: Validation{
			AllowedDomains: defaultDomains(),
			AllowedFormats: defaultFormats(),
			DefaultFormat:  defaultFormat,
			MaxNameLength:  defaultMaxNameLength,
			MaxBatchSize:   defaultMaxBatchSize,
		},
		Tokens: Tokens{
			TTLMinutes:           defaultTokenTTLMinutes,
			SweepIntervalMinutes: defaultTokenSweepMinutes,
		},
		Retention: Retention{
			JobWindowMinutes:      defaultJobWindowMinutes,
			SweepIntervalMinutes:  defaultRetentionSweepMinutes,
			ArtifactMaxAgeMinutes: defaultArtifactMaxAge,
			StreamGraceMillis:     defaultStreamGraceMillis,
		},
		Limits: Limits{
			WindowSeconds:  defaultLimitWindowSeconds,
			MaxRequests:    defaultLimitMaxRequests,
			MaxJobs:        defaultLimitMaxJobs,
			BurstThreshold: defaultLimitBurstThreshold,
			BurstDelayMs:   defaultLimitBurstDelayMs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// TokenTTL returns the capability token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Tokens.TTLMinutes) * time.Minute
}

// TokenSweepInterval returns the interval between expired-token sweeps.
func (c *Config) TokenSweepInterval() time.Duration {
	return time.Duration(c.Tokens.SweepIntervalMinutes) * time.Minute
}

// JobRetention returns how long terminal jobs stay visible after finishing.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Retention.JobWindowMinutes) * time.Minute
}

// RetentionSweepInterval returns the interval between job retention sweeps.
func (c *Config) RetentionSweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalMinutes) * time.Minute
}

// ArtifactMaxAge returns the maximum age of an artifact on disk.
func (c *Config) ArtifactMaxAge() time.Duration {
	return time.Duration(c.Retention.ArtifactMaxAgeMinutes) * time.Minute
}

// StreamGrace returns the delay between a terminal frame and stream close.
func (c *Config) StreamGrace() time.Duration {
	return time.Duration(c.Retention.StreamGraceMillis) * time.Millisecond
}

// ExtractorTimeout returns the per-job extraction deadline.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

// LimitWindow returns the rate limiter's sliding window size.
func (c *Config) LimitWindow() time.Duration {
	return time.Duration(c.Limits.WindowSeconds) * time.Second
}

// BurstDelay returns the progressive delay unit applied past the burst threshold.
func (c *Config) BurstDelay() time.Duration {
	return time.Duration(c.Limits.BurstDelayMs) * time.Millisecond
}

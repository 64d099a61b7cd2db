package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExtractor()
	c.normalizeValidation()
	c.normalizePolicies()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeExtractor() {
	c.Extractor.Binary = strings.TrimSpace(c.Extractor.Binary)
	if c.Extractor.Binary == "" {
		c.Extractor.Binary = defaultExtractorBinary
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		c.Extractor.TimeoutSeconds = defaultExtractorTimeout
	}
	if c.Extractor.MaxConcurrent <= 0 {
		c.Extractor.MaxConcurrent = defaultMaxConcurrent
	}
}

func (c *Config) normalizeValidation() {
	domains := make([]string, 0, len(c.Validation.AllowedDomains))
	for _, domain := range c.Validation.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	if len(domains) == 0 {
		domains = defaultDomains()
	}
	c.Validation.AllowedDomains = domains

	formats := make([]string, 0, len(c.Validation.AllowedFormats))
	for _, format := range c.Validation.AllowedFormats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format != "" {
			formats = append(formats, format)
		}
	}
	if len(formats) == 0 {
		formats = defaultFormats()
	}
	c.Validation.AllowedFormats = formats

	c.Validation.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Validation.DefaultFormat))
	if c.Validation.DefaultFormat == "" {
		c.Validation.DefaultFormat = defaultFormat
	}
	if c.Validation.MaxNameLength <= 0 {
		c.Validation.MaxNameLength = defaultMaxNameLength
	}
	if c.Validation.MaxBatchSize <= 0 {
		c.Validation.MaxBatchSize = defaultMaxBatchSize
	}
}

func (c *Config) normalizePolicies() {
	if c.Tokens.TTLMinutes <= 0 {
		c.Tokens.TTLMinutes = defaultTokenTTLMinutes
	}
	if c.Tokens.SweepIntervalMinutes <= 0 {
		c.Tokens.SweepIntervalMinutes = defaultTokenSweepMinutes
	}
	if c.Retention.JobWindowMinutes <= 0 {
		c.Retention.JobWindowMinutes = defaultJobWindowMinutes
	}
	if c.Retention.SweepIntervalMinutes <= 0 {
		c.Retention.SweepIntervalMinutes = defaultRetentionSweepMinutes
	}
	if c.Retention.ArtifactMaxAgeMinutes <= 0 {
		c.Retention.ArtifactMaxAgeMinutes = defaultArtifactMaxAge
	}
	if c.Retention.StreamGraceMillis <= 0 {
		c.Retention.StreamGraceMillis = defaultStreamGraceMillis
	}
	if c.Limits.WindowSeconds <= 0 {
		c.Limits.WindowSeconds = defaultLimitWindowSeconds
	}
	if c.Limits.MaxRequests <= 0 {
		c.Limits.MaxRequests = defaultLimitMaxRequests
	}
	if c.Limits.MaxJobs <= 0 {
		c.Limits.MaxJobs = defaultLimitMaxJobs
	}
	if c.Limits.BurstThreshold <= 0 {
		c.Limits.BurstThreshold = defaultLimitBurstThreshold
	}
	if c.Limits.BurstDelayMs <= 0 {
		c.Limits.BurstDelayMs = defaultLimitBurstDelayMs
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

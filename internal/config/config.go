// Package config provides configuration loading for pdfscribe.
// Supports YAML files, environment overrides, and programmatic defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Hashing modes accepted by hashing.mode.
const (
	HashModeFull       = "full_sha256"
	HashModeFastWindow = "fast_window"
)

// Chunking strategies accepted by chunking.strategy.
const (
	StrategyPhysicalSplit = "physical_split"
	StrategyPageRange     = "page_range"
	StrategySingle        = "single"
)

// Engine names accepted by the engines section.
const (
	EngineNativeText = "native_text"
	EngineLayout     = "layout"
)

// Forced tier values accepted by classification.forced_tier.
const (
	TierAuto      = "AUTO"
	TierHighText  = "HIGH_TEXT"
	TierMixedText = "MIXED_TEXT"
	TierScan      = "SCAN"
)

// Config holds all configuration for one pdfscribe invocation.
type Config struct {
	Global         Global         `yaml:"global"`
	Paths          Paths          `yaml:"paths"`
	Hashing        Hashing        `yaml:"hashing"`
	Limits         Limits         `yaml:"limits"`
	Classification Classification `yaml:"classification"`
	Chunking       Chunking       `yaml:"chunking"`
	Engines        Engines        `yaml:"engines"`
	NativeText     NativeText     `yaml:"native_text"`
	Layout         Layout         `yaml:"layout"`
	Postprocess    Postprocess    `yaml:"postprocess"`
	Output         Output         `yaml:"output"`
	Logging        Logging        `yaml:"logging"`
	Debug          Debug          `yaml:"debug"`
	Security       Security       `yaml:"security"`
}

// Global holds job-wide settings.
type Global struct {
	JobName string `yaml:"job_name"`

	// OfflineOnly forbids any engine behavior that reaches the network.
	OfflineOnly bool `yaml:"offline_only"`

	// KeepIntermediates retains materialized chunk files after the job.
	KeepIntermediates bool `yaml:"keep_intermediates"`

	// Resume treats an existing completed job directory as a no-op success.
	Resume bool `yaml:"resume"`

	// MaxParallelChunks is accepted for forward compatibility; chunks are
	// always processed sequentially in this build.
	MaxParallelChunks int `yaml:"max_parallel_chunks"`

	PrintSummary bool `yaml:"print_summary"`
}

// Paths holds filesystem locations used by a job.
type Paths struct {
	OutDir       string `yaml:"out_dir"`
	WorkDir      string `yaml:"work_dir"`
	CacheDir     string `yaml:"cache_dir"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	ScriptsDir   string `yaml:"scripts_dir"`
}

// Hashing selects how input files are digested for job identity.
type Hashing struct {
	// Mode is full_sha256 or fast_window. The fast_window mode hashes the
	// first and last window plus the byte length; it is NOT collision
	// resistant against crafted inputs and must only be used for
	// accidental-duplicate detection.
	Mode            string `yaml:"mode"`
	FastWindowBytes int64  `yaml:"fast_window_bytes"`
}

// Limits holds hard input ceilings and the overall job deadline.
type Limits struct {
	MaxInputFileBytes        int64 `yaml:"max_input_file_bytes"`
	MaxInputPages            int   `yaml:"max_input_pages"`
	RequireChunkingOverPages int   `yaml:"require_chunking_over_pages"`
	RequireChunkingOverBytes int64 `yaml:"require_chunking_over_bytes"`
	JobTimeoutSeconds        int64 `yaml:"job_timeout_seconds"`
}

// Classification holds the text-quality decision thresholds.
type Classification struct {
	SamplePages                int     `yaml:"sample_pages"`
	MinAvgCharsPerPageHighText int     `yaml:"min_avg_chars_per_page_for_high_text"`
	MaxAvgCharsPerPageScan     int     `yaml:"max_avg_chars_per_page_for_scan"`
	MaxGarbageRatioHighText    float64 `yaml:"max_garbage_ratio_for_high_text"`
	MaxWhitespaceRatioHighText float64 `yaml:"max_whitespace_ratio_for_high_text"`

	// ForcedTier bypasses the statistical decision when not AUTO.
	ForcedTier string `yaml:"forced_tier"`
}

// Chunking holds the chunk planner and materialization settings.
type Chunking struct {
	Strategy            string `yaml:"strategy"`
	TargetPagesPerChunk int    `yaml:"target_pages_per_chunk"`
	MaxPagesPerChunk    int    `yaml:"max_pages_per_chunk"`
	MinPagesPerChunk    int    `yaml:"min_pages_per_chunk"`
	CapChunkBytes       bool   `yaml:"cap_chunk_bytes"`
	MaxChunkBytes       int64  `yaml:"max_chunk_bytes"`
	KeepSplitPDFs       bool   `yaml:"keep_split_pdfs"`
}

// Engines maps each quality tier to a conversion engine.
type Engines struct {
	HighText  string `yaml:"high_text_engine"`
	MixedText string `yaml:"mixed_text_engine"`
	Scan      string `yaml:"scan_engine"`
}

// NativeText configures the lightweight text-extraction engine.
type NativeText struct {
	Backend            string `yaml:"backend"`
	NormalizeUnicode   bool   `yaml:"normalize_unicode"`
	CollapseWhitespace bool   `yaml:"collapse_whitespace"`
	FixHyphenation     bool   `yaml:"fix_hyphenation"`
}

// Layout configures the full layout-analysis engine and the subprocess
// runner shared by all engine capabilities.
type Layout struct {
	PythonExe            string            `yaml:"python_exe"`
	PDFBackend           string            `yaml:"pdf_backend"`
	DoOCR                bool              `yaml:"do_ocr"`
	ChunkTimeoutSeconds  int64             `yaml:"chunk_timeout_seconds"`
	DoctorTimeoutSeconds int64             `yaml:"doctor_timeout_seconds"`
	ProbeTimeoutSeconds  int64             `yaml:"probe_timeout_seconds"`
	SplitTimeoutSeconds  int64             `yaml:"split_timeout_seconds"`
	Env                  map[string]string `yaml:"env"`
}

// Postprocess configures the merge/cleanup text pipeline.
type Postprocess struct {
	NormalizeNewlines          bool     `yaml:"normalize_newlines"`
	NormalizeUnicode           bool     `yaml:"normalize_unicode"`
	RemoveControlChars         bool     `yaml:"remove_control_chars"`
	TrimTrailingWhitespace     bool     `yaml:"trim_trailing_whitespace"`
	RemoveRepeatedLines        bool     `yaml:"remove_repeated_lines"`
	RepeatedLineMinOccurrences int      `yaml:"repeated_line_min_occurrences"`
	RepeatedLineMaxLength      int      `yaml:"repeated_line_max_length"`
	RemoveByRegex              bool     `yaml:"remove_by_regex"`
	RegexPatterns              []string `yaml:"regex_patterns"`
}

// Output selects which job artifacts are written.
type Output struct {
	WriteMarkdown    bool   `yaml:"write_markdown"`
	WriteText        bool   `yaml:"write_text"`
	WriteReportJSON  bool   `yaml:"write_report_json"`
	WriteChunkJSON   bool   `yaml:"write_chunk_json"`
	WriteIndexJSON   bool   `yaml:"write_index_json"`
	MarkdownFilename string `yaml:"markdown_filename"`
	TextFilename     string `yaml:"text_filename"`
	ReportFilename   string `yaml:"report_filename"`
}

// Logging configures the zerolog output.
type Logging struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // console or json
	WriteToFile bool   `yaml:"write_to_file"`
	FilePath    string `yaml:"file_path"`
}

// Debug holds diagnostics knobs.
type Debug struct {
	KeepEngineStderr    bool `yaml:"keep_engine_stderr"`
	DumpEffectiveConfig bool `yaml:"dump_effective_config"`
}

// Security holds input and script hardening settings.
type Security struct {
	RejectURLInputs bool `yaml:"reject_url_inputs"`
	PinScriptsDir   bool `yaml:"pin_scripts_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Global: Global{
			JobName:           "default",
			OfflineOnly:       true,
			KeepIntermediates: true,
			Resume:            true,
			MaxParallelChunks: 1,
			PrintSummary:      true,
		},
		Paths: Paths{
			OutDir:       "out",
			WorkDir:      ".pdfscribe-work",
			CacheDir:     ".pdfscribe-cache",
			ArtifactsDir: ".pdfscribe-artifacts",
			ScriptsDir:   "scripts",
		},
		Hashing: Hashing{
			Mode:            HashModeFastWindow,
			FastWindowBytes: 16 * 1024 * 1024,
		},
		Limits: Limits{
			MaxInputFileBytes:        2 * 1024 * 1024 * 1024,
			MaxInputPages:            20000,
			RequireChunkingOverPages: 200,
			RequireChunkingOverBytes: 200_000_000,
			JobTimeoutSeconds:        0,
		},
		Classification: Classification{
			SamplePages:                12,
			MinAvgCharsPerPageHighText: 1200,
			MaxAvgCharsPerPageScan:     80,
			MaxGarbageRatioHighText:    0.02,
			MaxWhitespaceRatioHighText: 0.55,
			ForcedTier:                 TierAuto,
		},
		Chunking: Chunking{
			Strategy:            StrategyPhysicalSplit,
			TargetPagesPerChunk: 40,
			MaxPagesPerChunk:    80,
			MinPagesPerChunk:    10,
			CapChunkBytes:       true,
			MaxChunkBytes:       50_000_000,
			KeepSplitPDFs:       true,
		},
		Engines: Engines{
			HighText:  EngineNativeText,
			MixedText: EngineLayout,
			Scan:      EngineLayout,
		},
		NativeText: NativeText{
			Backend:            "python_pypdf",
			NormalizeUnicode:   true,
			CollapseWhitespace: true,
			FixHyphenation:     true,
		},
		Layout: Layout{
			PythonExe:            "auto",
			PDFBackend:           "AUTO",
			DoOCR:                false,
			ChunkTimeoutSeconds:  600,
			DoctorTimeoutSeconds: 60,
			ProbeTimeoutSeconds:  120,
			SplitTimeoutSeconds:  300,
		},
		Postprocess: Postprocess{
			NormalizeNewlines:          true,
			NormalizeUnicode:           true,
			RemoveControlChars:         true,
			TrimTrailingWhitespace:     true,
			RemoveRepeatedLines:        true,
			RepeatedLineMinOccurrences: 6,
			RepeatedLineMaxLength:      120,
			RemoveByRegex:              true,
			RegexPatterns: []string{
				`^(page\s+\d+|\d+\s*/\s*\d+)$`,
				`^[A-Z0-9\s\-]{12,}$`,
			},
		},
		Output: Output{
			WriteMarkdown:    true,
			WriteText:        true,
			WriteReportJSON:  true,
			WriteChunkJSON:   true,
			WriteIndexJSON:   true,
			MarkdownFilename: "transcript.md",
			TextFilename:     "transcript.txt",
			ReportFilename:   "report.json",
		},
		Logging: Logging{
			Level:       "info",
			Format:      "console",
			WriteToFile: true,
		},
		Debug: Debug{
			KeepEngineStderr:    true,
			DumpEffectiveConfig: true,
		},
		Security: Security{
			RejectURLInputs: true,
			PinScriptsDir:   true,
		},
	}
}

// Load reads a YAML config file on top of the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file for the few
// settings that vary per machine rather than per job.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDFSCRIBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PDFSCRIBE_PYTHON"); v != "" {
		cfg.Layout.PythonExe = v
	}
}

// Validate rejects unknown enum values before any subprocess is spawned.
func (c *Config) Validate() error {
	switch c.Hashing.Mode {
	case HashModeFull, HashModeFastWindow:
	default:
		return fmt.Errorf("unknown hashing.mode: %q", c.Hashing.Mode)
	}

	switch c.Chunking.Strategy {
	case StrategyPhysicalSplit, StrategyPageRange, StrategySingle:
	default:
		return fmt.Errorf("unknown chunking.strategy: %q", c.Chunking.Strategy)
	}

	switch strings.ToUpper(c.Classification.ForcedTier) {
	case TierAuto, TierHighText, TierMixedText, TierScan:
	default:
		return fmt.Errorf("unknown classification.forced_tier: %q", c.Classification.ForcedTier)
	}

	for name, engine := range map[string]string{
		"engines.high_text_engine":  c.Engines.HighText,
		"engines.mixed_text_engine": c.Engines.MixedText,
		"engines.scan_engine":       c.Engines.Scan,
	} {
		switch engine {
		case EngineNativeText, EngineLayout:
		default:
			return fmt.Errorf("unknown engine for %s: %q", name, engine)
		}
	}

	if c.Global.MaxParallelChunks < 1 {
		return fmt.Errorf("global.max_parallel_chunks must be >= 1, got %d", c.Global.MaxParallelChunks)
	}
	if c.Hashing.FastWindowBytes < 0 {
		return fmt.Errorf("hashing.fast_window_bytes must be >= 0, got %d", c.Hashing.FastWindowBytes)
	}
	if c.Classification.SamplePages < 1 {
		return fmt.Errorf("classification.sample_pages must be >= 1, got %d", c.Classification.SamplePages)
	}
	return nil
}

// Normalized returns the canonical YAML rendering of the effective config.
// Any effective-setting change, not just CLI flags, changes this string and
// therefore the job identity derived from it.
func (c *Config) Normalized() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("serializing config: %w", err)
	}
	return string(out), nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// Source modes
const (
	ModeDirectory = "directory"
	ModeList      = "list"
)

// Config holds application configuration
type Config struct {
	// Source settings
	Mode      string
	InputPath string
	Paths     []string

	// Extraction settings
	OutputDir   string
	Overwrite   bool
	Delete      bool
	DeleteAfter bool

	// Export settings
	CSVPath   string
	JSONPath  string
	Separator rune
	Indent    int

	// Index settings
	IndexPath string

	// Server settings
	Host string
	Port string

	LogLevel string
	Progress bool
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Mode:      ModeDirectory,
		InputPath: "./input",
		OutputDir: "./output",
		Separator: ';',
		Indent:    4,
		Host:      "localhost",
		Port:      "8080",
		LogLevel:  "info",
	}
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// RegisterFlags attaches the flags shared by every command.
func RegisterFlags(cmd *cobra.Command) {
	def := Default()
	flags := cmd.PersistentFlags()
	flags.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("index", "", "Path to a SQLite index of extracted messages")
}

// RegisterExtractFlags attaches the extraction flags to cmd.
func RegisterExtractFlags(cmd *cobra.Command) {
	def := Default()
	flags := cmd.Flags()
	flags.String("mode", def.Mode, "Source mode: directory (list --input) or list (positional paths)")
	flags.String("input", def.InputPath, "Directory whose direct children are processed in directory mode")
	flags.String("output-dir", def.OutputDir, "Directory attachments are written to (created when missing)")
	flags.Bool("overwrite", false, "Replace attachments with the same name instead of numbering them")
	flags.Bool("delete", false, "Delete each source right after it was fully processed")
	flags.Bool("delete-after", false, "Delete all fully processed sources once the run and exports are done")
	flags.String("csv", "", "Write the delimiter-separated export to this path")
	flags.String("json", "", "Write the JSON export to this path")
	flags.String("separator", string(def.Separator), "Field separator of the CSV export")
	flags.Int("indent", def.Indent, "Indentation of the JSON export in spaces")
	flags.Bool("progress", false, "Show a progress bar on stderr")
}

// RegisterServeFlags attaches the server flags to cmd.
func RegisterServeFlags(cmd *cobra.Command) {
	def := Default()
	flags := cmd.Flags()
	flags.String("host", def.Host, "Address to listen on")
	flags.String("port", def.Port, "Port to listen on")
}

// LoadConfig converts the parsed flags of an extraction command and its
// positional arguments into a Config.
func LoadConfig(cmd *cobra.Command, args []string) (*Config, error) {
	cfg := Default()
	flags := cmd.Flags()

	var err error
	if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
		return nil, err
	}
	if cfg.IndexPath, err = flags.GetString("index"); err != nil {
		return nil, err
	}
	if cfg.Mode, err = flags.GetString("mode"); err != nil {
		return nil, err
	}
	if cfg.InputPath, err = flags.GetString("input"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.Overwrite, err = flags.GetBool("overwrite"); err != nil {
		return nil, err
	}
	if cfg.Delete, err = flags.GetBool("delete"); err != nil {
		return nil, err
	}
	if cfg.DeleteAfter, err = flags.GetBool("delete-after"); err != nil {
		return nil, err
	}
	if cfg.CSVPath, err = flags.GetString("csv"); err != nil {
		return nil, err
	}
	if cfg.JSONPath, err = flags.GetString("json"); err != nil {
		return nil, err
	}
	separator, err := flags.GetString("separator")
	if err != nil {
		return nil, err
	}
	if cfg.Indent, err = flags.GetInt("indent"); err != nil {
		return nil, err
	}
	if cfg.Progress, err = flags.GetBool("progress"); err != nil {
		return nil, err
	}

	cfg.Mode = strings.ToLower(cfg.Mode)
	cfg.LogLevel = normalizeLevel(cfg.LogLevel)
	cfg.Paths = append([]string(nil), args...)

	if separator == `\t` {
		separator = "\t"
	}
	if utf8.RuneCountInString(separator) != 1 {
		return nil, fmt.Errorf("--separator must be a single character, got %q", separator)
	}
	cfg.Separator, _ = utf8.DecodeRuneInString(separator)

	if cfg.Mode == ModeDirectory {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadServeConfig converts the parsed flags of the serve command.
func LoadServeConfig(cmd *cobra.Command) (*Config, error) {
	cfg := Default()
	flags := cmd.Flags()

	var err error
	if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
		return nil, err
	}
	if cfg.IndexPath, err = flags.GetString("index"); err != nil {
		return nil, err
	}
	if cfg.Host, err = flags.GetString("host"); err != nil {
		return nil, err
	}
	if cfg.Port, err = flags.GetString("port"); err != nil {
		return nil, err
	}
	cfg.LogLevel = normalizeLevel(cfg.LogLevel)

	if cfg.IndexPath == "" {
		return nil, fmt.Errorf("--index is required")
	}
	if err := validateLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

func normalizeLevel(level string) string {
	level = strings.ToLower(level)
	if level == "warning" {
		level = "warn"
	}
	return level
}

func validateLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid --log-level: %s", level)
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Mode {
	case ModeDirectory:
		if cfg.InputPath == "" {
			return fmt.Errorf("--input is required in directory mode")
		}
		if len(cfg.Paths) > 0 {
			return fmt.Errorf("positional paths are only accepted with --mode list")
		}
	case ModeList:
		if len(cfg.Paths) == 0 {
			return fmt.Errorf("--mode list needs at least one path argument")
		}
	default:
		return fmt.Errorf("invalid --mode: %s (want directory or list)", cfg.Mode)
	}

	if cfg.OutputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	if cfg.Delete && cfg.DeleteAfter {
		return fmt.Errorf("--delete and --delete-after are mutually exclusive")
	}
	if cfg.Indent < 0 {
		return fmt.Errorf("--indent must not be negative")
	}
	if !validSeparator(cfg.Separator) {
		return fmt.Errorf("--separator cannot be %q", cfg.Separator)
	}

	return validateLevel(cfg.LogLevel)
}

// validSeparator applies the delimiter rules of encoding/csv so that a bad
// separator fails before any source is touched.
func validSeparator(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}

package application

import (
	"fmt"
	"os"
	"strings"

	zlog "github.com/lk2023060901/garden-chat-go/pkg/log"
	zviper "github.com/lk2023060901/garden-chat-go/pkg/util/viper"
)

// Application is the runtime container for a chat service process. It owns
// configuration loading and logger setup so the cmd binaries stay thin.
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run loads configuration and initializes logging. Config file resolution
// priority:
//  1. Default: ./config.yaml
//  2. Env: CHAT_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// loadConfig resolves the config file path and loads it via the viper
// wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("CHAT_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
			}
			continue
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLogger(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initGlobalLogger configures the process-wide logger. The config file's
// "log" section provides the baseline; CHAT_LOG_* env vars override it:
//
//   - CHAT_LOG_LEVEL: log level (default "info").
//   - CHAT_LOG_STDOUT: whether to log to stdout.
//   - CHAT_LOG_FILE_DIR: log directory.
//   - CHAT_LOG_FILE: log file name (empty means no file).
//   - CHAT_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLogger() error {
	cfg := &zlog.Config{
		Level:  "info",
		Format: "text",
		Stdout: true,
	}
	if a.cfg != nil {
		if err := a.cfg.UnmarshalKey("log", cfg); err != nil {
			return err
		}
	}

	if v := getenvDefault("CHAT_LOG_LEVEL", ""); v != "" {
		cfg.Level = v
	}
	if v := getenvDefault("CHAT_LOG_FORMAT", ""); v != "" {
		cfg.Format = v
	}
	if v := getenvDefault("CHAT_LOG_STDOUT", ""); v != "" {
		cfg.Stdout = getenvBool("CHAT_LOG_STDOUT", cfg.Stdout)
	}
	if v := getenvDefault("CHAT_LOG_FILE_DIR", ""); v != "" {
		cfg.File.RootPath = v
	}
	if v := getenvDefault("CHAT_LOG_FILE", ""); v != "" {
		cfg.File.Filename = v
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from the YAML config
// under the "logging" key.
//
// Example:
//
//	logging:
//	  audit:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: audit-debug.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

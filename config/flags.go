package config

import (
	"flag"
	"os"
	"strings"
	"time"
)

// Options is the parsed command line: the layered Config plus what to do.
type Options struct {
	Config

	ConfigPath string
	Sources    []string
	Dest       string
	ImportPath string
	ExportPath string
	Resume     bool
	List       bool
}

// Parse reads flags from args, then layers defaults, the -config file, the
// environment and finally the flags that were set explicitly.
func Parse(fs *flag.FlagSet, args []string, getenv func(string) string) (Options, error) {
	var (
		opts        Options
		stateDir    string
		logLevel    string
		tui         bool
		retries     int
		retryDelay  time.Duration
		noRetry     bool
		connections int
		workers     int
		skipEmpty   bool
		onLoss      string
		removeDone  bool
	)
	def := Default()

	fs.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	fs.Var((*stringSlice)(&opts.Sources), "source", "source path or URL (repeatable)")
	fs.StringVar(&opts.Dest, "dest", "", "destination path or URL")
	fs.StringVar(&opts.ImportPath, "import", "", "queue document (JSON) to import")
	fs.StringVar(&opts.ExportPath, "export", "", "write the remaining queue as JSON on exit")
	fs.BoolVar(&opts.Resume, "resume", false, "resume the queue saved in the state directory")
	fs.BoolVar(&opts.List, "list", false, "print the saved queue and failed transfers, then exit")

	fs.StringVar(&stateDir, "state-dir", def.StateDir, "directory for state/checkpoint files")
	fs.StringVar(&logLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&tui, "tui", def.TUI, "show the interactive queue view")
	fs.IntVar(&retries, "retries", def.Retry.Count, "automatic retries per failed file")
	fs.DurationVar(&retryDelay, "retry-delay", def.Retry.Delay, "delay before each retry (max 1s)")
	fs.BoolVar(&noRetry, "no-retry", false, "disable automatic retries")
	fs.IntVar(&connections, "connections", def.Queue.ConnectionsPerSite, "connections per site")
	fs.IntVar(&workers, "workers", def.Queue.Workers, "I/O worker goroutines")
	fs.BoolVar(&skipEmpty, "skip-empty-dirs", def.Queue.SkipEmptyDirs, "do not create empty directories")
	fs.StringVar(&onLoss, "on-connection-loss", def.Queue.OnConnectionLoss, "retry or fail when a connection drops mid-transfer")
	fs.BoolVar(&removeDone, "remove-finished", def.Queue.RemoveFinished, "dequeue transfers once they finish")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	cfg, err := Load(opts.ConfigPath)
	if err != nil {
		return opts, err
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "state-dir":
			cfg.StateDir = stateDir
		case "log-level":
			cfg.LogLevel = logLevel
		case "tui":
			cfg.TUI = tui
		case "retries":
			cfg.Retry.Count = retries
		case "retry-delay":
			cfg.Retry.Delay = retryDelay
		case "no-retry":
			cfg.Retry.Enabled = !noRetry
		case "connections":
			cfg.Queue.ConnectionsPerSite = connections
		case "workers":
			cfg.Queue.Workers = workers
		case "skip-empty-dirs":
			cfg.Queue.SkipEmptyDirs = skipEmpty
		case "on-connection-loss":
			cfg.Queue.OnConnectionLoss = onLoss
		case "remove-finished":
			cfg.Queue.RemoveFinished = removeDone
		}
	})

	opts.Config = cfg
	return opts, cfg.Validate()
}

// stringSlice implements flag.Value for repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var _ flag.Value = (*stringSlice)(nil)

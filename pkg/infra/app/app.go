// Package app builds the cobra command shared by the docqa binaries.
//
// Option values are resolved in this order, highest first: flags set on the
// command line, <NAME>_* environment variables, the YAML config file, flag
// defaults. ${VAR} references inside the config file are expanded from the
// environment before it is parsed.
//
//	a := app.NewApp(
//	    app.WithName("docqa"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(func(ctx context.Context) error { ... }),
//	)
//	a.Run()
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/docqa/pkg/app/cliflag"
)

const flagConfig = "config"

// Options is implemented by the option aggregate of a binary.
type Options interface {
	// Flags returns the flags grouped into help sections.
	Flags() cliflag.NamedFlagSets
	// Complete fills derived values after flags, env and file are applied.
	Complete() error
	Validate() error
}

// RunFunc is the body of the command. ctx is cancelled on SIGINT or SIGTERM.
type RunFunc func(ctx context.Context) error

// App is a configured cobra command.
type App struct {
	name        string
	description string
	opts        Options
	run         RunFunc
	configFile  bool

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func WithOptions(opts Options) Option {
	return func(a *App) { a.opts = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.run = run }
}

// WithoutConfigFile drops the --config flag and the config file search.
func WithoutConfigFile() Option {
	return func(a *App) { a.configFile = false }
}

// NewApp creates the command. The name defaults to the executable name.
func NewApp(opts ...Option) *App {
	a := &App{
		name:       filepath.Base(os.Args[0]),
		configFile: true,
		v:          viper.New(),
	}
	for _, o := range opts {
		o(a)
	}

	a.cmd = &cobra.Command{
		Use:           a.name,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd)
		},
	}
	a.cmd.SetOut(os.Stdout)
	a.cmd.SetErr(os.Stderr)

	pfs := a.cmd.PersistentFlags()
	if a.configFile {
		pfs.StringP(flagConfig, "c", "", "Path to the config file (default: search for "+a.name+".yaml).")
	}
	version.AddFlags(pfs)

	if a.opts != nil {
		fss := a.opts.Flags()
		for _, section := range fss.Order {
			a.cmd.Flags().AddFlagSet(fss.FlagSets[section])
		}
		a.cmd.SetUsageFunc(func(c *cobra.Command) error {
			_, _ = fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s\n", c.UseLine())
			cliflag.PrintSections(c.OutOrStderr(), fss, 0)
			return nil
		})
	}
	return a
}

// Command exposes the cobra command, mainly for tests.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command with a signal-aware context and exits the
// process with status 1 on error. A second signal exits immediately.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
		<-sigs
		os.Exit(1)
	}()

	err := a.cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) execute(cmd *cobra.Command) error {
	version.PrintAndExitIfRequested()

	if a.opts != nil {
		if err := a.bind(cmd); err != nil {
			return err
		}
		if err := a.opts.Complete(); err != nil {
			return err
		}
		if err := a.opts.Validate(); err != nil {
			return err
		}
	}
	if a.run == nil {
		return nil
	}
	return a.run(cmd.Context())
}

// bind layers file, environment and flags in viper and decodes the result
// into the options.
func (a *App) bind(cmd *cobra.Command) error {
	if a.configFile {
		path, _ := cmd.Flags().GetString(flagConfig)
		if err := a.readConfigFile(path); err != nil {
			return err
		}
	}

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	a.v.SetEnvPrefix(envPrefix(a.name))
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.Unmarshal(a.opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// readConfigFile loads path, or searches the standard locations when path is
// empty. A missing file is only an error when path was given explicitly.
func (a *App) readConfigFile(path string) error {
	v := a.v
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range configDirs(a.name) {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	raw, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.ReadConfig(strings.NewReader(expandEnv(string(raw)))); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func configDirs(name string) []string {
	dirs := []string{".", "configs"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+name))
	}
	return append(dirs, filepath.Join("/etc", name))
}

// envPrefix maps "docqa-eval" to "DOCQA_EVAL".
func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv substitutes ${VAR}; unset variables are left in place.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return val
		}
		return ref
	})
}

// Version reports the build version injected by kart-io/version.
func Version() string {
	return version.Get().GitVersion
}

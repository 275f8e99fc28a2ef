package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/input"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/metadata"
	"github.com/lucas-albers-lz4/respimg/pkg/pipeline"
	"github.com/lucas-albers-lz4/respimg/pkg/responsive"
	"github.com/lucas-albers-lz4/respimg/pkg/version"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AppFs is the filesystem every command reads and writes through.
var AppFs = afero.NewOsFs()

// SetFs replaces AppFs and returns a function restoring the previous one.
func SetFs(newFs afero.Fs) func() {
	oldFs := AppFs
	AppFs = newFs
	return func() {
		AppFs = oldFs
	}
}

// defaultConfigFiles are tried in order when --config is not given.
var defaultConfigFiles = []string{"respimg.yaml", "respimg.yml", "respimg.toml", "respimg.json", "respimg.jsonc"}

// newRootCmd builds the command tree. Settings resolve from flags first, then
// RESPIMG_* environment variables, then defaults.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RESPIMG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "respimg",
		Short: "Generate responsive image variants and the metadata to select them",
		Long: `respimg resizes and re-encodes the images of a source tree into every configured
width and format, writes them to an output tree and publishes a JSON metadata
payload describing every variant. Unchanged images are served from a
content-addressed cache, so repeated builds only process what changed.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// only the executing command binds, so build and watch can share keys
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			level := log.LevelInfo
			if levelStr := v.GetString("log-level"); levelStr != "" {
				parsed, err := log.ParseLevel(levelStr)
				if err != nil {
					log.Warnf("Invalid log level specified: '%s'. Using default: %s. Error: %v", levelStr, level, err)
				} else {
					level = parsed
				}
			}
			log.SetLevel(level)
			log.Debug("Effective settings", "settings", v.AllSettings())
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "configuration file (default is respimg.{yaml,yml,toml,json,jsonc} in the working directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "set log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("workers", 0, "number of images processed concurrently (default is the number of CPUs)")
	rootCmd.PersistentFlags().String("cache-dir", "", "directory of the persistent variant cache (default is in-memory)")
	rootCmd.PersistentFlags().String("cache-compression", "auto", "compression of cache entries (auto, none, lz4, zstd)")

	rootCmd.AddCommand(newBuildCmd(v))
	rootCmd.AddCommand(newWatchCmd(v))
	rootCmd.AddCommand(newInspectCmd(v))
	rootCmd.AddCommand(newCleanCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command line and returns the first error, annotated with an
// exit code.
func Execute(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return withExitCode(err)
	}
	return nil
}

// loadConfig reads the configuration named by --config or the first default
// file present in the working directory.
func loadConfig(v *viper.Viper) (config.File, error) {
	path := v.GetString("config")
	if path == "" {
		for _, candidate := range defaultConfigFiles {
			exists, err := afero.Exists(AppFs, candidate)
			if err != nil {
				return config.File{}, exitcodes.Wrap(exitcodes.ExitIOError, err)
			}
			if exists {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return config.File{}, &exitcodes.ExitCodeError{
			Code: exitcodes.ExitInputConfigurationError,
			Err:  fmt.Errorf("no configuration file given and none of %s found", strings.Join(defaultConfigFiles, ", ")),
		}
	}

	cfg, err := config.Load(AppFs, path)
	if err != nil {
		return config.File{}, exitcodes.Wrap(exitcodes.ExitInputConfigurationError, err)
	}
	return cfg, nil
}

// requireFlag returns the setting for key or an error naming the flag.
func requireFlag(v *viper.Viper, key string) (string, error) {
	value := v.GetString(key)
	if value == "" {
		return "", &exitcodes.ExitCodeError{
			Code: exitcodes.ExitMissingRequiredFlag,
			Err:  fmt.Errorf("required flag --%s not set", key),
		}
	}
	return value, nil
}

// withExitCode annotates err with the exit code of its category unless it
// already carries one.
func withExitCode(err error) error {
	if _, ok := exitcodes.IsExitCodeError(err); ok {
		return err
	}
	return &exitcodes.ExitCodeError{Code: exitCodeFor(err), Err: err}
}

func exitCodeFor(err error) int {
	var (
		validationErr *config.ValidationError
		sourceErr     *pipeline.SourceError
		jobErr        *pipeline.JobError
		extensionErr  *metadata.ExtensionError
		pathErr       *fs.PathError
	)
	switch {
	case errors.As(err, &validationErr), errors.Is(err, config.ErrNoGroups), errors.Is(err, pipeline.ErrConflictingGroups):
		return exitcodes.ExitInputConfigurationError
	case errors.Is(err, input.ErrRootNotFound):
		return exitcodes.ExitSourceTreeNotFound
	// a decode failure inside a job is still an input error
	case errors.As(err, &sourceErr):
		return exitcodes.ExitImageInputError
	case errors.As(err, &jobErr), errors.As(err, &extensionErr):
		return exitcodes.ExitImageProcessingError
	case errors.Is(err, responsive.ErrImageNotFound), errors.Is(err, responsive.ErrTypeNotFound):
		return exitcodes.ExitImageLookupError
	case errors.As(err, &pathErr):
		return exitcodes.ExitIOError
	default:
		return exitcodes.ExitInternalError
	}
}

package main

import (
	"fmt"

	"github.com/lucas-albers-lz4/respimg/pkg/cache"
	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newBuildCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate every configured variant of the input tree",
		Long: `Generate every configured width and format of the images selected by the
configuration groups and write them below the output directory.

Nothing is written unless every variant was produced. With --remove-sources the
sources processed by groups with removeSource set are deleted afterwards.`,
		Example: `  respimg build --input static --output public --metadata images.json
  RESPIMG_CACHE_DIR=.respimg-cache respimg build --input static --output public`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, v)
		},
	}
	addTreeFlags(cmd)
	cmd.Flags().String("metadata", "", "write the metadata payload to this path, relative to the output directory")
	cmd.Flags().Bool("remove-sources", false, "delete processed sources of removeSource groups after a successful build")
	return cmd
}

// addTreeFlags registers the flags shared by build and watch.
func addTreeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "root of the source image tree (required)")
	cmd.Flags().StringP("output", "o", "", "root of the generated output tree (required)")
}

func runBuild(cmd *cobra.Command, v *viper.Viper) error {
	p, err := newPipeline(v)
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), res.String()); err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}

	if v.GetBool("remove-sources") {
		removed, err := pipeline.Cleanup(AppFs, v.GetString("input"), res.Removable)
		if err != nil {
			return exitcodes.Wrap(exitcodes.ExitIOError, err)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d sources removed\n", len(removed)); err != nil {
			return exitcodes.Wrap(exitcodes.ExitIOError, err)
		}
	}
	return nil
}

// newPipeline assembles a pipeline from the configuration file and settings.
func newPipeline(v *viper.Viper) (*pipeline.Pipeline, error) {
	inputRoot, err := requireFlag(v, "input")
	if err != nil {
		return nil, err
	}
	outputRoot, err := requireFlag(v, "output")
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	c, err := newCache(v)
	if err != nil {
		return nil, err
	}

	log.Debug("Configured build", "input", inputRoot, "output", outputRoot, "groups", len(cfg.Groups))
	return pipeline.New(cfg, pipeline.Options{
		Fs:           AppFs,
		InputRoot:    inputRoot,
		OutputRoot:   outputRoot,
		MetadataPath: v.GetString("metadata"),
		Cache:        c,
		Workers:      v.GetInt("workers"),
	}), nil
}

// newCache returns a disk-backed cache when --cache-dir is set and an
// in-memory one otherwise.
func newCache(v *viper.Viper) (*cache.Cache, error) {
	dir := v.GetString("cache-dir")
	if dir == "" {
		return cache.New(nil), nil
	}
	compression, err := cache.ParseCompression(v.GetString("cache-compression"))
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitInputConfigurationError, err)
	}
	store, err := cache.NewDiskStore(AppFs, dir, compression)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitIOError, err)
	}
	log.Debug("Using disk cache", "dir", dir, "compression", compression)
	return cache.New(store), nil
}

package main

import (
	"fmt"
	"slices"

	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
	"github.com/lucas-albers-lz4/respimg/pkg/input"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCleanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete sources that a previous build already processed",
		Long: `Delete the sources selected by configuration groups with removeSource set,
limited to the images recorded in the metadata payload of a successful build.
Nothing is rebuilt; files the build did not process are never touched.`,
		Example: `  respimg clean --input static --metadata public/images.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClean(cmd, v)
		},
	}
	cmd.Flags().StringP("input", "i", "", "root of the source image tree (required)")
	cmd.Flags().String("metadata", "", "metadata payload written by build (required)")
	cmd.Flags().Bool("dry-run", false, "list the sources that would be removed without removing them")
	return cmd
}

func runClean(cmd *cobra.Command, v *viper.Viper) error {
	inputRoot, err := requireFlag(v, "input")
	if err != nil {
		return err
	}
	metadataPath, err := requireFlag(v, "metadata")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	data, err := afero.ReadFile(AppFs, metadataPath)
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, fmt.Errorf("failed to read metadata %s: %w", metadataPath, err))
	}
	payload, err := imagemeta.ParsePayload(data)
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}

	var removable []string
	for i, group := range cfg.Groups {
		if !group.RemovesSource() {
			continue
		}
		selected, err := input.Select(AppFs, inputRoot, group)
		if err != nil {
			return err
		}
		for _, rel := range selected {
			if _, ok := payload.Images[imagemeta.NormalizeName(rel)]; !ok {
				log.Debug("Keeping unprocessed source", "source", rel, "group", i)
				continue
			}
			if !slices.Contains(removable, rel) {
				removable = append(removable, rel)
			}
		}
	}
	slices.Sort(removable)

	if v.GetBool("dry-run") {
		for _, rel := range removable {
			fmt.Fprintln(cmd.OutOrStdout(), rel)
		}
		return nil
	}

	removed, err := pipeline.Cleanup(AppFs, inputRoot, removable)
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d sources removed\n", len(removed))
	return nil
}

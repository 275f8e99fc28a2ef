package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
	"github.com/lucas-albers-lz4/respimg/pkg/responsive"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

// Output formats of the inspect command.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// Inspection is what inspect reports for one image.
type Inspection struct {
	Name     string              `json:"name"`
	Meta     imagemeta.ImageMeta `json:"meta"`
	Variants []imagemeta.Variant `json:"variants"`
	Selected *imagemeta.Variant  `json:"selected,omitempty"`
}

// ImageList is what inspect reports when no image is named.
type ImageList struct {
	Images       []string `json:"images"`
	DeviceWidths []int    `json:"deviceWidths,omitempty"`
	Prepend      string   `json:"prepend,omitempty"`
}

func newInspectCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [NAME]",
		Short: "Show the published variants of an image",
		Long: `Read a metadata payload written by build and show the variants of the named
image, the way the runtime selector sees them. With --width the variant the
selector would pick for that rendered width is marked. Without NAME every image
in the payload is listed.`,
		Example: `  respimg inspect --metadata public/images.json images/hero.jpg --width 800
  respimg inspect --metadata public/images.json -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, v, args)
		},
	}
	cmd.Flags().String("metadata", "", "metadata payload written by build (required)")
	cmd.Flags().Int("width", 0, "mark the variant selected for this rendered width in pixels")
	cmd.Flags().String("type", "", "only show variants of this format")
	cmd.Flags().StringP("output-format", "o", outputText, "output format (text, json or yaml)")
	return cmd
}

func runInspect(cmd *cobra.Command, v *viper.Viper, args []string) error {
	metadataPath, err := requireFlag(v, "metadata")
	if err != nil {
		return err
	}
	format := v.GetString("output-format")
	if format != outputText && format != outputJSON && format != outputYAML {
		return &exitcodes.ExitCodeError{
			Code: exitcodes.ExitInputConfigurationError,
			Err:  fmt.Errorf("unsupported output format %q (use text, json or yaml)", format),
		}
	}

	data, err := afero.ReadFile(AppFs, metadataPath)
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, fmt.Errorf("failed to read metadata %s: %w", metadataPath, err))
	}
	svc, err := responsive.FromJSON(data)
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}

	var report any
	if len(args) == 0 {
		payload := svc.Payload()
		report = ImageList{Images: payload.Images.Names(), DeviceWidths: payload.DeviceWidths, Prepend: payload.Prepend}
	} else {
		report, err = inspectImage(svc, args[0], v.GetString("type"), v.GetInt("width"))
		if err != nil {
			return err
		}
	}
	return writeReport(cmd.OutOrStdout(), report, format)
}

func inspectImage(svc *responsive.Service, name, typ string, width int) (*Inspection, error) {
	meta, err := svc.GetImageMeta(name)
	if err != nil {
		return nil, err
	}
	variants, err := svc.GetImages(name, typ)
	if err != nil {
		return nil, err
	}
	in := &Inspection{Name: imagemeta.NormalizeName(name), Meta: meta, Variants: variants}
	if width > 0 {
		selected, err := svc.GetImageMetaBySize(name, width, typ)
		if err != nil {
			return nil, err
		}
		in.Selected = &selected
	}
	return in, nil
}

func writeReport(w io.Writer, report any, format string) error {
	var output []byte
	var err error
	switch format {
	case outputJSON:
		output, err = json.MarshalIndent(report, "", "  ")
		output = append(output, '\n')
	case outputYAML:
		output, err = yaml.Marshal(report)
	default:
		output = []byte(renderText(report))
	}
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitInternalError, fmt.Errorf("failed to render report: %w", err))
	}
	if _, err := w.Write(output); err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}
	return nil
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	widthStyle    = lipgloss.NewStyle().Width(8).Align(lipgloss.Right)
	sizeStyle     = lipgloss.NewStyle().Width(12)
	formatStyle   = lipgloss.NewStyle().Width(6)
)

func renderText(report any) string {
	var b strings.Builder
	switch r := report.(type) {
	case ImageList:
		b.WriteString(headerStyle.Render(fmt.Sprintf("%d images", len(r.Images))) + "\n")
		for _, name := range r.Images {
			b.WriteString("  " + name + "\n")
		}
	case *Inspection:
		b.WriteString(headerStyle.Render(r.Name) + "\n")
		b.WriteString(labelStyle.Render("aspect ratio ") + strconv.FormatFloat(r.Meta.AspectRatio, 'f', -1, 64) + "\n")
		b.WriteString(labelStyle.Render("formats      ") + strings.Join(r.Meta.Formats, ", ") + "\n")
		if r.Meta.Fingerprint != "" {
			b.WriteString(labelStyle.Render("fingerprint  ") + r.Meta.Fingerprint + "\n")
		}
		for _, vr := range r.Variants {
			marker := "  "
			if r.Selected != nil && *r.Selected == vr {
				marker = selectedStyle.Render("→ ")
			}
			row := marker +
				widthStyle.Render(strconv.Itoa(vr.Width)+"w") + "  " +
				sizeStyle.Render(fmt.Sprintf("%dx%d", vr.Width, vr.Height)) +
				formatStyle.Render(vr.Format) +
				vr.Path
			b.WriteString(row + "\n")
		}
	}
	return b.String()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/internal/utils"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
)

// outputFlags override the output section of the config.
type outputFlags struct {
	Size     string
	Shape    string
	Format   string
	Quality  int
	Lossless bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Size, "size", "s", "", "output size: a preset (passport, visa, avatar, ...) or WIDTHxHEIGHT")
	cmd.Flags().StringVar(&o.Shape, "shape", "", "output shape: rect or circle")
	cmd.Flags().StringVarP(&o.Format, "format", "f", "", "output format: png, jpg or webp")
	cmd.Flags().IntVarP(&o.Quality, "quality", "q", 0, "JPEG/WebP quality (1-100)")
	cmd.Flags().BoolVar(&o.Lossless, "lossless", false, "WebP lossless mode")
}

func (o *outputFlags) apply(cmd *cobra.Command, c *config.Config) error {
	if o.Size != "" {
		t, err := cropper.ParseTarget(o.Size)
		if err != nil {
			return err
		}
		c.Output.Width, c.Output.Height = t.Width, t.Height
	}
	if o.Shape != "" {
		c.Output.Shape = o.Shape
	}
	if o.Format != "" {
		c.Output.DefaultFormat = strings.ToLower(o.Format)
	}
	if o.Quality != 0 {
		c.Output.Quality = o.Quality
	}
	if cmd.Flags().Changed("lossless") {
		c.Output.Lossless = o.Lossless
	}
	return c.Validate()
}

type cropOptions struct {
	Input    string
	Output   string
	Gestures []string
	Debug    bool
	output   outputFlags
}

var cropOpts cropOptions

var cropCmd = &cobra.Command{
	Use:   "crop",
	Short: "Crop one photo to a head-and-shoulders frame",
	Long: `Detects the face in the input photo, frames head and shoulders around it
and writes the export image.

Gestures adjust the proposed crop before export, in source pixels:
  --gesture move:20,-10            drag the whole region
  --gesture bottom-right:-40,60    drag a corner (top-left, top-right,
                                   bottom-left, bottom-right)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cropOpts.output.Format = outputFormat(cropOpts.output.Format, cropOpts.Output)
		if err := cropOpts.output.apply(cmd, cfg); err != nil {
			return err
		}
		return runCrop(cmd, cropOpts)
	},
}

func init() {
	cropCmd.Flags().StringVarP(&cropOpts.Input, "input", "i", "", "input image path or URL (jpg/png/webp)")
	cropCmd.Flags().StringVarP(&cropOpts.Output, "output", "o", "", "output file (default: <output_dir>/<name><suffix>.<format>)")
	cropCmd.Flags().StringArrayVarP(&cropOpts.Gestures, "gesture", "g", nil, "adjust the crop before export, NAME:DX,DY (repeatable)")
	cropCmd.Flags().BoolVarP(&cropOpts.Debug, "debug", "d", false, "also write an overlay of faces, crop and export area")
	cropOpts.output.register(cropCmd)

	cropCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(cropCmd)
}

// outputFormat returns the --format value, or the format named by the
// extension of an explicit output file.
func outputFormat(format, output string) string {
	if format != "" || filepath.Ext(output) == "" {
		return format
	}
	return processing.FormatFromPath(output)
}

func runCrop(cmd *cobra.Command, opts cropOptions) error {
	ctx := cmd.Context()

	gestures := make([]gesture, 0, len(opts.Gestures))
	for _, s := range opts.Gestures {
		g, err := parseGesture(s)
		if err != nil {
			return err
		}
		gestures = append(gestures, g)
	}

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	factory, err := sessionFactory(cfg, detector, nil, logger)
	if err != nil {
		return err
	}

	processor := processing.NewProcessor()
	img, err := processor.LoadImageSmart(ctx, opts.Input)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.Input, err)
	}
	if err := processor.ValidateImage(img); err != nil {
		return err
	}

	sess := factory()
	if _, err := sess.Upload(ctx, img); err != nil {
		logger.Warn(sess.Status().Message, "input", opts.Input)
		return fmt.Errorf("%s: %w", opts.Input, err)
	}
	if err := replay(sess, gestures); err != nil {
		return err
	}

	renderer := sess.Renderer()
	out := opts.Output
	if out == "" {
		out = utils.GenerateOutputFilename(opts.Input, cfg.Output.OutputDir,
			cfg.Output.Prefix, cfg.Output.Suffix, renderer.Config().Format)
	}
	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := sess.Export(ctx, f); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	crop, _ := sess.Crop()
	logger.Info("wrote crop", "output", out, "crop", crop, "size", renderer.Config().Export.String())
	fmt.Fprintln(cmd.OutOrStdout(), out)

	if opts.Debug {
		cover := geometry.CoverFit(crop, renderer.Config().Export.Aspect(), geometry.DimensionsOf(img))
		overlay := processor.CreateDebugOverlay(img, sess.Faces(), crop, cover)
		dbgPath := utils.GenerateOutputFilename(out, filepath.Dir(out), "", "_debug", "png")
		if err := processor.SaveImage(overlay, dbgPath, "png", 0, false); err != nil {
			logger.Warn("debug overlay save failed", "path", dbgPath, "error", err)
		} else {
			logger.Info("wrote debug overlay", "path", dbgPath)
		}
	}
	return nil
}

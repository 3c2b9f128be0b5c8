package main

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/headshot/internal/utils"
)

type batchOptions struct {
	InputDir  string
	OutputDir string
	Workers   int
	SkipDone  bool
	output    outputFlags
}

var batchOpts batchOptions

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Crop every photo in a directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := batchOpts.output.apply(cmd, cfg); err != nil {
			return err
		}
		return runBatch(cmd, batchOpts)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOpts.InputDir, "input", "i", "", "directory to scan for images")
	batchCmd.Flags().StringVarP(&batchOpts.OutputDir, "output", "o", "", "output directory (default: output_dir from config)")
	batchCmd.Flags().IntVarP(&batchOpts.Workers, "workers", "w", runtime.NumCPU(), "number of photos processed in parallel")
	batchCmd.Flags().BoolVar(&batchOpts.SkipDone, "skip-existing", false, "skip photos whose output already exists")
	batchOpts.output.register(batchCmd)

	batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, opts batchOptions) error {
	ctx := cmd.Context()

	if !utils.DirExists(opts.InputDir) {
		return fmt.Errorf("input directory %s does not exist", opts.InputDir)
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = cfg.Output.OutputDir
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	files, err := utils.ListImageFiles(ctx, opts.InputDir)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(files) == 0 {
		logger.Warn("no images found", "dir", opts.InputDir)
		return nil
	}

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	c, err := newCropper(cfg, detector, logger)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("cropping"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var done, skipped, failed atomic.Int64
	var written atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)
	for _, file := range files {
		g.Go(func() error {
			defer bar.Add(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if opts.SkipDone && utils.FileExists(c.OutputPath(file, outDir)) {
				skipped.Add(1)
				return nil
			}

			out, _, err := c.ProcessFile(ctx, file, outDir)
			if err != nil {
				failed.Add(1)
				logger.Warn("crop failed", "input", file, "error", err)
				return nil
			}
			done.Add(1)
			if info, err := os.Stat(out); err == nil {
				written.Add(info.Size())
			}
			return nil
		})
	}

	err = g.Wait()
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	logger.Info("batch finished",
		"cropped", done.Load(),
		"skipped", skipped.Load(),
		"failed", failed.Load(),
		"written", utils.FormatFileSize(written.Load()),
	)

	if err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d photos failed", n, len(files))
	}
	return nil
}

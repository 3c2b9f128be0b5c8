package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
)

// detectReport is printed by the detect command.
type detectReport struct {
	Source string              `json:"source"`
	Image  geometry.Dimensions `json:"image"`
	Faces  []geometry.FaceBox  `json:"faces"`
	Crop   *geometry.Rect      `json:"crop,omitempty"`
}

var detectInput string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the detected faces and proposed crop as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		detector, err := newDetector(cfg)
		if err != nil {
			return err
		}

		processor := processing.NewProcessor()
		img, err := processor.LoadImageSmart(ctx, detectInput)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", detectInput, err)
		}

		faces, err := detector.DetectFaces(ctx, img)
		if err != nil {
			return fmt.Errorf("face detection failed: %w", err)
		}

		report := detectReport{
			Source: detectInput,
			Image:  geometry.DimensionsOf(img),
			Faces:  faces,
		}
		if report.Faces == nil {
			report.Faces = []geometry.FaceBox{}
		}
		if len(faces) > 0 {
			crop := geometry.InitialCropWithFraming(faces[0], report.Image, editorConfig(cfg).Framing)
			report.Crop = &crop
		}

		logger.Debug("detection finished", "source", detectInput, "faces", len(faces))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectInput, "input", "i", "", "input image path or URL")
	detectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(detectCmd)
}

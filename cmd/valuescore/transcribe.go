package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/speech"

	"github.com/spf13/cobra"
)

var (
	transcribeCustomer string
	transcribeValidate bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE...",
	Short: "Turn call recordings into voice insights",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringVarP(&transcribeCustomer, "customer", "c", "", "Customer ID to attribute the calls to")
	transcribeCmd.Flags().BoolVar(&transcribeValidate, "validate", false, "Only report audio quality")
}

type transcription struct {
	File    string                   `json:"file"`
	Insight *multimodal.VoiceInsight `json:"insight,omitempty"`
	Quality *speech.QualityReport    `json:"quality,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	engine := speech.NewEngine(logger, time.Now)

	clips := make([]speech.Clip, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		clips = append(clips, speech.Clip{
			ID:         path,
			CustomerID: transcribeCustomer,
			Format:     strings.TrimPrefix(filepath.Ext(path), "."),
			Data:       data,
			RecordedAt: info.ModTime(),
		})
	}

	out := make([]transcription, 0, len(clips))
	if transcribeValidate {
		for _, clip := range clips {
			report := engine.ValidateAudioQuality(clip.Data)
			out = append(out, transcription{File: clip.ID, Quality: &report})
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	ctx, cancel := signalContext()
	defer cancel()

	for _, res := range engine.BatchTranscribe(ctx, clips) {
		t := transcription{File: res.ClipID}
		if res.Err != nil {
			t.Error = res.Err.Error()
		} else {
			insight := res.Insight
			t.Insight = &insight
		}
		out = append(out, t)
	}
	return printJSON(cmd.OutOrStdout(), out)
}

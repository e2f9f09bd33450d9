package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/capture"
	"github.com/loqalabs/loqa-translate/internal/ledger"
	"github.com/loqalabs/loqa-translate/internal/preprocess"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record audio from the input device",
	Long: `Record from the configured capture device and print the resulting file.

Examples:
  loqa-translate record --duration 5 --output take.wav
  loqa-translate record --list-devices`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Resample, trim silence and normalize an audio file",
	Args:  cobra.NoArgs,
	RunE:  runPreprocess,
}

var (
	recordDuration    float64
	recordOutput      string
	recordDevice      string
	recordListDevices bool

	preprocessFile      string
	preprocessOutput    string
	preprocessKeepQuiet bool
	preprocessNoNorm    bool
)

func init() {
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(preprocessCmd)

	recordCmd.Flags().Float64Var(&recordDuration, "duration", 0, "Recording duration in seconds (defaults to audio.record_seconds)")
	recordCmd.Flags().StringVar(&recordOutput, "output", "", "Write the recording to this path instead of the session directory")
	recordCmd.Flags().StringVar(&recordDevice, "device", "", "Capture device name (defaults to audio.device)")
	recordCmd.Flags().BoolVar(&recordListDevices, "list-devices", false, "List capture devices and exit")

	preprocessCmd.Flags().StringVar(&preprocessFile, "file", "", "Input audio file path")
	preprocessCmd.Flags().StringVar(&preprocessOutput, "output", "", "Write the processed audio to this path")
	preprocessCmd.Flags().BoolVar(&preprocessKeepQuiet, "keep-silence", false, "Skip silence removal")
	preprocessCmd.Flags().BoolVar(&preprocessNoNorm, "no-normalize", false, "Skip peak normalization")
	_ = preprocessCmd.MarkFlagRequired("file")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	name := cfg.Audio.Device
	if recordDevice != "" {
		name = recordDevice
	}
	device := capture.MalgoDevice{Name: name}

	if recordListDevices {
		devices, err := device.Devices()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), devices)
	}

	seconds := recordDuration
	if seconds <= 0 {
		seconds = cfg.Audio.RecordSeconds
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The session copy is only disposable when the caller asked for a
	// destination of their own.
	l, err := ledger.New(cfg.Session.TempRoot, recordOutput != "", logger)
	if err != nil {
		return err
	}
	defer l.Close()

	src := capture.NewSource(device, l, logger)
	handle, err := src.Capture(ctx, seconds, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return err
	}
	if recordOutput != "" {
		if handle, err = copyAudio(handle, recordOutput); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), handle)
}

func runPreprocess(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	l, err := ledger.New(cfg.Session.TempRoot, preprocessOutput != "", logger)
	if err != nil {
		return err
	}
	defer l.Close()

	src := capture.NewSource(nil, l, logger)
	in, err := src.UseExisting(preprocessFile)
	if err != nil {
		return err
	}
	opts := preprocess.DefaultOptions(cfg.Audio)
	if preprocessKeepQuiet {
		opts.RemoveSilence = false
	}
	if preprocessNoNorm {
		opts.Normalize = false
	}
	out, err := preprocess.New(l, cfg.Audio, logger).Process(cmd.Context(), in, opts)
	if err != nil {
		return err
	}
	if preprocessOutput != "" {
		if out, err = copyAudio(out, preprocessOutput); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func copyAudio(src audio.Handle, dst string) (audio.Handle, error) {
	buf, err := audio.ReadFile(src.Path)
	if err != nil {
		return audio.Handle{}, err
	}
	out, err := audio.WriteFile(dst, buf)
	if err != nil {
		return audio.Handle{}, fmt.Errorf("write %s: %w", dst, err)
	}
	return out, nil
}

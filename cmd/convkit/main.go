// Package main provides the convkit CLI: a gradient-check harness for the
// convolution layer across its execution engines.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/backend/webgpu"
	"github.com/convkit-ml/convkit/internal/conv"
	"github.com/convkit-ml/convkit/internal/gradcheck"
)

const version = "v0.1.0-dev"

type gradcheckFlags struct {
	algo    string
	gpu     bool
	batch   int
	iters   int
	seed    int64
	lr      float32
	alpha   float64
	verbose bool

	inC, height, width, kernel, outC int
}

func newGradcheckCmd() *cobra.Command {
	var flags gradcheckFlags
	cmd := &cobra.Command{
		Use:   "gradcheck",
		Short: "Check analytic gradients against finite differences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGradcheck(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.algo, "algo", "auto", "engine: cpu-serial, cpu-vector, cpu-parallel, cpu-parallel-vector, gpu-base, gpu-fast, auto")
	cmd.Flags().BoolVar(&flags.gpu, "gpu", false, "attach the WebGPU device and prefer it for auto")
	cmd.Flags().IntVar(&flags.batch, "batch", 1, "active batch size")
	cmd.Flags().IntVar(&flags.iters, "iters", 5, "number of trials")
	cmd.Flags().Int64Var(&flags.seed, "seed", 34, "RNG seed")
	cmd.Flags().Float32Var(&flags.lr, "lr", 0.05, "learning rate for optimizer init")
	cmd.Flags().Float64Var(&flags.alpha, "alpha", 1e-3, "finite-difference step")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "per-call debug timing")
	cmd.Flags().IntVar(&flags.inC, "in-channels", 2, "input channels")
	cmd.Flags().IntVar(&flags.height, "height", 16, "input height")
	cmd.Flags().IntVar(&flags.width, "width", 16, "input width")
	cmd.Flags().IntVar(&flags.kernel, "kernel", 3, "square kernel size")
	cmd.Flags().IntVar(&flags.outC, "out-channels", 3, "output channels")

	return cmd
}

func runGradcheck(cmd *cobra.Command, flags gradcheckFlags) error {
	algo := conv.ParseAlgo(flags.algo)

	var logger *slog.Logger
	if flags.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg := conv.Config{
		Geom: backend.Geometry{
			MaxBatch: flags.batch,
			InC:      flags.inC,
			H:        flags.height,
			W:        flags.width,
			Kernel:   flags.kernel,
			OutC:     flags.outC,
		},
		LR:        flags.lr,
		Forward:   algo,
		Backward:  algo,
		Update:    algo,
		PreferGPU: flags.gpu,
		Logger:    logger,
	}

	var device *webgpu.Backend
	if flags.gpu {
		var err error
		device, err = webgpu.New()
		if err != nil {
			return fmt.Errorf("gpu requested: %w", err)
		}
		defer device.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "device: %s\n", device.AdapterName())
	}

	report, err := gradcheck.Run(gradcheck.Options{
		Config: cfg,
		Device: device,
		Batch:  flags.batch,
		Trials: flags.iters,
		Alpha:  flags.alpha,
		Seed:   flags.seed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tr := range report.Trials {
		fmt.Fprintf(out, "trial %d: analytic=%.6e numeric=%.6e rel_err=%.3e\n",
			tr.Index, tr.Analytic, tr.Numeric, tr.RelErr)
	}
	fmt.Fprintf(out, "max rel_err=%.3e avg rel_err=%.3e over %d trials (algo %s)\n",
		report.MaxRelErr, report.AvgRelErr, len(report.Trials), algo)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "convkit %s\n", version)
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "convkit",
		Short:         "Trainable 2-D convolution with multi-backend execution",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(newGradcheckCmd(), newVersionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

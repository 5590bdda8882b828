package main

import(
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abworrall/focus-stack/pkg/report"
	"github.com/abworrall/focus-stack/pkg/stack"
)

var(
	fOutputFilename string
	fConfigFilename string
	fVerbosity int
	fKernelSize int
	fDepth int
	fUpsample int
	fGPU bool
	fDeviceID int
	fWorkers int
	fStoreKind string
	fStorePath string
	fDebugDir string
	fReportDir string
	fJPEGQuality int
)

func main() {
	log.SetFlags(log.Ldate|log.Ltime)

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus-stack [flags] <images or dirs ...>",
		Short: "Merge differently focused photos of a scene into one sharp image",
		Long: `focus-stack aligns a set of photos taken at different focus distances
(the first, in natural filename order, is the reference), and fuses them
with a Laplacian pyramid, picking each detail from whichever photo is
sharpest there. Any .yaml files among the arguments are read as config;
command line flags override them.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		RunE:          runStack,
	}

	f := cmd.Flags()
	f.StringVarP(&fOutputFilename, "output", "o", "output.jpg", "output image (.jpg .png .tif .bmp .hdr)")
	f.StringVar(&fConfigFilename, "config", "", "YAML config file")
	f.CountVarP(&fVerbosity, "verbose", "v", "how verbose to get (repeat for more)")
	f.IntVarP(&fKernelSize, "kernel", "k", 0, "side of the sharpness window, in pixels")
	f.IntVarP(&fDepth, "pyramid-depth", "p", 0, "number of pyramid levels")
	f.IntVar(&fUpsample, "upsample", 0, "registration resolves shifts to 1/upsample pixels")
	f.BoolVar(&fGPU, "gpu", false, "run the focus kernels on a device rather than the host pool")
	f.IntVar(&fDeviceID, "device", 0, "which device to use (0 is the built-in tiled soft device)")
	f.IntVar(&fWorkers, "workers", 0, "host worker pool size (default one per CPU)")
	f.StringVar(&fStoreKind, "store", "", "archive pyramids to a store before fusing (dir or sqlite)")
	f.StringVar(&fStorePath, "store-path", "", "directory (dir store) or database file (sqlite store)")
	f.StringVar(&fDebugDir, "debug-dir", "", "dump intermediate images into this dir")
	f.StringVar(&fReportDir, "report-dir", "", "write timing and shift plots into this dir")
	f.IntVar(&fJPEGQuality, "quality", stack.DefaultJPEGQuality, "JPEG output quality")

	return cmd
}

func runStack(cmd *cobra.Command, args []string) error {
	images, configs, err := stack.ExpandPaths(args...)
	if err != nil {
		return err
	}
	if fConfigFilename != "" {
		configs = append(configs, fConfigFilename)
	}

	cfg := stack.NewConfig()
	for _, filename := range configs {
		// Later files win outright
		if cfg, err = stack.LoadConfig(filename); err != nil {
			return err
		}
	}

	// Override the config files with command line args, if given
	f := cmd.Flags()
	if f.Changed("verbose") { cfg.Verbosity = fVerbosity }
	if f.Changed("kernel") { cfg.KernelSize = fKernelSize }
	if f.Changed("pyramid-depth") { cfg.Depth = fDepth }
	if f.Changed("upsample") { cfg.UpsampleFactor = fUpsample }
	if f.Changed("gpu") {
		cfg.Backend = "cpu"
		if fGPU { cfg.Backend = "gpu" }
	}
	if f.Changed("device") { cfg.DeviceID = fDeviceID }
	if f.Changed("workers") { cfg.Workers = fWorkers }
	if f.Changed("store") { cfg.StoreKind = fStoreKind }
	if f.Changed("store-path") { cfg.StorePath = fStorePath }
	if f.Changed("debug-dir") { cfg.DebugDir = fDebugDir }

	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	s, err := stack.New(cfg, stack.WithSink(stack.SinkFunc(func(e stack.Event) {
		log.Printf("%s\n", e)
	})))
	if err != nil {
		return err
	}
	s.SetImagePaths(images)
	log.Printf("Stacking %d images\n", len(images))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("stacking failed at image %d (%s): %w", s.Current(), s.State(), err)
	}

	if err := (stack.FileSaver{JPEGQuality: fJPEGQuality}).Save(out, fOutputFilename); err != nil {
		return err
	}
	log.Printf("Output file written '%s'\n", fOutputFilename)

	frames := s.Frames()
	if cfg.Verbosity > 0 {
		log.Printf("Frames:-\n%s", report.Text(frames))
	}
	if fReportDir != "" {
		files, err := report.WritePlots(frames, fReportDir)
		if err != nil {
			return err
		}
		log.Printf("Report written: %v\n", files)
	}

	return nil
}

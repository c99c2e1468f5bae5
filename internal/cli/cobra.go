package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"uvcal/internal/config"
	"uvcal/internal/pipeline"
	"uvcal/internal/response"
	"uvcal/internal/server"
	"uvcal/internal/storage"
	"uvcal/internal/watch"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store) *cobra.Command {
	root := NewRoot(cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "uvcal",
		Short: "uvcal estimates detector relative response for ultraviolet sky positions",
		Long: `uvcal computes the average relative detector response seen by a sky position
over an observation, using the flat-field calibration product and the 1 Hz
spacecraft aspect solution.`,
	}

	rootCmd.AddCommand(newResponseCmd(root))
	rootCmd.AddCommand(newCrossvalCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newResponseCmd(root *Root) *cobra.Command {
	var (
		band       string
		ra         float64
		dec        float64
		aperture   float64
		rangeSpecs []string
		method     string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "response",
		Short: "Estimate the relative response at a sky position",
		Long: `Estimate the exposure-weighted mean relative response at a sky position over
one or more time ranges.

Examples:
  # Aperture estimate for a FUV source over one observation
  uvcal response --band FUV --ra 176.9195 --dec 0.2557 --aperture 0.01 \
      --range 766525332.995:766526576.995

  # Same query through the binned response map
  uvcal response --band FUV --ra 176.9195 --dec 0.2557 --aperture 0.01 \
      --range 766525332.995:766526576.995 --method map`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := response.ParseBand(band)
			if err != nil {
				return err
			}
			ranges, err := parseRanges(rangeSpecs)
			if err != nil {
				return err
			}

			req := response.Request{
				Band:     b,
				RA:       ra,
				Dec:      dec,
				Aperture: aperture,
				Ranges:   ranges,
			}

			root.log.Info("response query parsed",
				"band", band,
				"ra", ra,
				"dec", dec,
				"aperture", aperture,
				"ranges", len(ranges),
				"method", method,
			)

			res, err := root.estimate(cmd.Context(), pipeline.Method(method), req)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(res)
			}
			fmt.Printf("Response:   %.6f\n", res.Response)
			fmt.Printf("Exposure:   %.3f s\n", res.Exposure)
			fmt.Printf("Product:    %.3f\n", res.Product)
			fmt.Printf("Ticks:      %d (gaps %d, off-detector %d)\n", res.Ticks, res.GapTicks, res.OffTicks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&band, "band", "b", "FUV", "detector band (FUV|NUV)")
	cmd.Flags().Float64Var(&ra, "ra", 0, "right ascension, degrees")
	cmd.Flags().Float64Var(&dec, "dec", 0, "declination, degrees")
	cmd.Flags().Float64VarP(&aperture, "aperture", "a", 0.0025, "aperture radius, degrees")
	cmd.Flags().StringSliceVar(&rangeSpecs, "range", nil, "time range start:end in mission seconds, repeatable")
	cmd.Flags().StringVarP(&method, "method", "m", string(pipeline.MethodAperture), "estimation method (aperture|map)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the result as JSON")

	cmd.MarkFlagRequired("ra")
	cmd.MarkFlagRequired("dec")
	cmd.MarkFlagRequired("range")

	return cmd
}

func newCrossvalCmd(root *Root) *cobra.Command {
	var (
		band       string
		ra         float64
		dec        float64
		aperture   float64
		rangeSpecs []string
	)

	cmd := &cobra.Command{
		Use:   "crossval",
		Short: "Run the same query through both estimators and compare",
		Long: `Run one query through the aperture estimator and the response-map estimator
and report both results with their product ratio. Because the map bins the
response into finite cells while the aperture samples the flat directly, the
two agree only approximately away from uniform regions of the flat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := response.ParseBand(band)
			if err != nil {
				return err
			}
			ranges, err := parseRanges(rangeSpecs)
			if err != nil {
				return err
			}

			req := response.Request{
				Band:     b,
				RA:       ra,
				Dec:      dec,
				Aperture: aperture,
				Ranges:   ranges,
			}

			estimators, err := root.buildEstimators(b, ranges)
			if err != nil {
				return err
			}

			cmp, err := response.CrossValidate(cmd.Context(),
				estimators[pipeline.MethodAperture],
				estimators[pipeline.MethodMap],
				req)
			if err != nil {
				return err
			}

			fmt.Printf("Aperture: response %.6f  exposure %.3f s  product %.3f\n",
				cmp.Aperture.Response, cmp.Aperture.Exposure, cmp.Aperture.Product)
			fmt.Printf("Map:      response %.6f  exposure %.3f s  product %.3f\n",
				cmp.Map.Response, cmp.Map.Exposure, cmp.Map.Product)
			fmt.Printf("Ratio:    %.4f (aperture / map)\n", cmp.Ratio)
			return nil
		},
	}

	cmd.Flags().StringVarP(&band, "band", "b", "FUV", "detector band (FUV|NUV)")
	cmd.Flags().Float64Var(&ra, "ra", 0, "right ascension, degrees")
	cmd.Flags().Float64Var(&dec, "dec", 0, "declination, degrees")
	cmd.Flags().Float64VarP(&aperture, "aperture", "a", 0.0025, "aperture radius, degrees")
	cmd.Flags().StringSliceVar(&rangeSpecs, "range", nil, "time range start:end in mission seconds, repeatable")

	cmd.MarkFlagRequired("ra")
	cmd.MarkFlagRequired("dec")
	cmd.MarkFlagRequired("range")

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		port       int
		watchFiles bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calibration HTTP API",
		Long: `Start an HTTP server exposing synchronous response queries, a batch job
queue, a websocket stream of job results and Prometheus metrics.

Examples:
  # Basic server
  uvcal serve --port 8080

  # Server without calibration file monitoring
  uvcal serve --port 8080 --watch=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = root.cfg.Server.Port
			}
			return root.serve(cmd.Context(), port, watchFiles)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&watchFiles, "watch", true, "monitor calibration product files for changes")

	return cmd
}

// serve builds estimators for every configured band and runs the server until
// the context is canceled.
func (r *Root) serve(ctx context.Context, port int, watchFiles bool) error {
	estimators, err := r.serveEstimators()
	if err != nil {
		return err
	}

	pipe := pipeline.New(ctx, r.cfg.Processing.QueueWorkers, r.log, r.store, estimators)
	defer pipe.Stop()

	if watchFiles {
		watcher, err := r.startWatcher(ctx)
		if err != nil {
			r.log.Warn("calibration file monitoring unavailable", "error", err)
		} else if watcher != nil {
			defer watcher.Stop()
		}
	}

	r.log.Info("server ready",
		"port", port,
		"endpoints", []string{"/api/response", "/api/jobs", "/healthz", "/metrics", "/ws"},
	)

	srv := server.New(port, r.log, r.store, pipe, estimators)
	return srv.Start(ctx)
}

// serveEstimators loads calibration products for every configured band. The
// server loads the full aspect solution once rather than per query.
func (r *Root) serveEstimators() (map[pipeline.Method]response.Estimator, error) {
	fields, err := r.loadConfiguredFlats()
	if err != nil {
		return nil, err
	}

	table, err := r.loadFullAspect()
	if err != nil {
		return nil, err
	}

	aperture := response.NewApertureEstimator(fields, table, r.cfg.Processing.ParallelJobs, r.log)
	builder := response.NewGridBuilder(fields, table, r.cfg.Calibration.MapStep)
	mapEst := response.NewMapEstimator(builder, 0, r.log)

	return map[pipeline.Method]response.Estimator{
		pipeline.MethodAperture: aperture,
		pipeline.MethodMap:      mapEst,
	}, nil
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate uvcal configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Configuration:\n\n")
			fmt.Printf("FUV Flat Field:  %s\n", root.cfg.Calibration.FlatFUV)
			fmt.Printf("NUV Flat Field:  %s\n", root.cfg.Calibration.FlatNUV)
			fmt.Printf("Aspect Database: %s\n", root.cfg.Calibration.AspectDB)
			fmt.Printf("Plate Scale:     %g deg/pixel\n", root.cfg.Calibration.PlateScale)
			fmt.Printf("Map Step:        %g deg\n", root.cfg.Calibration.MapStep)
			fmt.Printf("Parallel Jobs:   %d\n", root.cfg.Processing.ParallelJobs)
			fmt.Printf("Queue Workers:   %d\n", root.cfg.Processing.QueueWorkers)
			fmt.Printf("Server Port:     %d\n", root.cfg.Server.Port)
			fmt.Printf("Database Path:   %s\n", root.cfg.Paths.DatabasePath)
			fmt.Printf("Log Level:       %s\n", root.cfg.Logging.Level)
			fmt.Printf("Log Format:      %s\n", root.cfg.Logging.Format)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Println("Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("uvcal v1.0.0")
		},
	}
}

// startWatcher monitors the configured calibration product files and logs
// change events so operators know a restart is needed to pick them up.
func (r *Root) startWatcher(ctx context.Context) (*watch.CalibrationWatcher, error) {
	paths := make([]string, 0, 3)
	for _, p := range []string{
		r.cfg.Calibration.FlatFUV,
		r.cfg.Calibration.FlatNUV,
		r.cfg.Calibration.AspectDB,
	} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}

	watcher, err := watch.New(paths, r.log)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				r.log.Warn("calibration product changed on disk, restart to reload",
					"path", ev.Path,
					"operation", ev.Operation,
				)
			}
		}
	}()

	return watcher, nil
}

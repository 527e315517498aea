package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/pidctl/internal/automation"
	"github.com/san-kum/pidctl/internal/config"
	"github.com/san-kum/pidctl/internal/dynamo"
	"github.com/san-kum/pidctl/internal/loop"
	"github.com/san-kum/pidctl/internal/metrics"
	"github.com/san-kum/pidctl/internal/physics"
	"github.com/san-kum/pidctl/internal/pid"
	"github.com/san-kum/pidctl/internal/storage"
)

var (
	dataDir    string
	verbose    bool
	dt         float64
	duration   float64
	setpoint   float64
	integrator string
	kp         float64
	ki         float64
	kd         float64
	limit      float64
	initState  []float64
	configFile string
	preset     string
	gainSets   []string
	trials     int
	perturb    float64
	seed       int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pidctl",
		Short:         "PID controller tuning lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pidctl", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every control cycle")

	runCmd := &cobra.Command{
		Use:   "run [plant]",
		Short: "run the controller against a simulated plant",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoop,
	}
	addLoopFlags(runCmd)
	runCmd.Flags().Float64Var(&kp, "kp", 0, "proportional gain")
	runCmd.Flags().Float64Var(&ki, "ki", 0, "integral gain")
	runCmd.Flags().Float64Var(&kd, "kd", 0, "derivative gain")
	runCmd.Flags().Float64Var(&limit, "limit", 0, "integral anti-windup bound (unbounded when unset)")

	compareCmd := &cobra.Command{
		Use:   "compare [plant]",
		Short: "compare gain sets on the same plant",
		Args:  cobra.ExactArgs(1),
		RunE:  compareGains,
	}
	addLoopFlags(compareCmd)
	compareCmd.Flags().StringArrayVar(&gainSets, "gains", nil, "gain set kp,ki,kd[,limit] (repeatable)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot error and output of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trace to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [plant]",
		Short: "list available presets for a plant",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of loops from yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [plant]",
		Short: "check a tuning against perturbed initial states",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	addLoopFlags(monteCarloCmd)
	monteCarloCmd.Flags().Float64Var(&kp, "kp", 0, "proportional gain")
	monteCarloCmd.Flags().Float64Var(&ki, "ki", 0, "integral gain")
	monteCarloCmd.Flags().Float64Var(&kd, "kd", 0, "derivative gain")
	monteCarloCmd.Flags().Float64Var(&limit, "limit", 0, "integral anti-windup bound (unbounded when unset)")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 1.0, "max absolute perturbation of each initial state value")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")

	rootCmd.AddCommand(runCmd, compareCmd, listCmd, plotCmd, exportJSONCmd, presetsCmd, scenarioCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func addLoopFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "control period in seconds")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "run duration in seconds")
	cmd.Flags().Float64Var(&setpoint, "setpoint", 1.0, "target value of the measured state")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "plant integrator (euler, rk4)")
	cmd.Flags().Float64SliceVar(&initState, "init", nil, "initial plant state")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

// resolveConfig layers defaults, preset, config file and explicit flags, in
// that order of increasing precedence.
func resolveConfig(cmd *cobra.Command, plant string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(plant, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(plant))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Plant = plant

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("setpoint") {
		cfg.Setpoint = setpoint
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("init") {
		cfg.InitState = initState
	}
	if flags.Lookup("kp") != nil {
		if flags.Changed("kp") {
			cfg.Gains.Kp = kp
		}
		if flags.Changed("ki") {
			cfg.Gains.Ki = ki
		}
		if flags.Changed("kd") {
			cfg.Gains.Kd = kd
		}
		if flags.Changed("limit") {
			l := limit
			cfg.Gains.IntegralLimit = &l
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func specFor(cfg *config.Config, g config.GainsConfig) loop.Spec {
	return loop.Spec{
		Plant:         cfg.Plant,
		Integrator:    cfg.Integrator,
		Gains:         pid.Gains{Kp: g.Kp, Ki: g.Ki, Kd: g.Kd},
		IntegralLimit: g.IntegralLimit,
		PlantParams:   cfg.PlantParams,
	}
}

func loopConfig(cfg *config.Config) loop.Config {
	return loop.Config{Dt: cfg.Dt, Duration: cfg.Duration, Setpoint: cfg.Setpoint}
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	r, err := loop.Build(specFor(cfg, cfg.Gains), loop.WithMetrics(metrics.Defaults(cfg.Band)...))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(titleStyle.Render(fmt.Sprintf("running %s loop...", cfg.Plant)))
	start := time.Now()

	tr, err := r.Run(ctx, dynamo.State(cfg.GetInitState()), loopConfig(cfg))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(storage.RunMetadata{
		Plant:      cfg.Plant,
		Integrator: cfg.Integrator,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Setpoint:   cfg.Setpoint,
		Gains: storage.GainsMetadata{
			Kp:            cfg.Gains.Kp,
			Ki:            cfg.Gains.Ki,
			Kd:            cfg.Gains.Kd,
			IntegralLimit: cfg.Gains.IntegralLimit,
		},
	}, tr)
	if err != nil {
		return err
	}

	fmt.Println(field("completed in", elapsed))
	fmt.Println(field("run id", runID))
	fmt.Println(field("cycles", tr.Steps()))
	fmt.Println(field("final value", tr.Final[0]))
	if n := len(tr.Energy); n > 0 {
		fmt.Println(field("final energy", tr.Energy[n-1]))
	}
	fmt.Println()
	fmt.Println(titleStyle.Render("metrics"))
	for _, name := range sortedKeys(tr.Metrics) {
		fmt.Println("  " + field(name, tr.Metrics[name]))
	}
	return nil
}

func compareGains(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if len(gainSets) == 0 {
		return fmt.Errorf("at least one --gains set is required")
	}

	specs := make([]loop.Spec, 0, len(gainSets))
	for _, raw := range gainSets {
		g, err := parseGains(raw)
		if err != nil {
			return err
		}
		specs = append(specs, specFor(cfg, g))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	traces, err := loop.Sweep(ctx, specs, dynamo.State(cfg.GetInitState()), loopConfig(cfg), func() []loop.Option {
		return []loop.Option{loop.WithMetrics(metrics.Defaults(cfg.Band)...)}
	})
	if err != nil {
		return err
	}

	names := sortedKeys(traces[0].Metrics)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "GAINS\t%s\n", strings.ToUpper(strings.Join(names, "\t")))
	for i, tr := range traces {
		row := []string{gainSets[i]}
		for _, name := range names {
			row = append(row, fmt.Sprintf("%.4f", tr.Metrics[name]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// parseGains reads "kp,ki,kd" with an optional fourth integral limit.
func parseGains(raw string) (config.GainsConfig, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return config.GainsConfig{}, fmt.Errorf("gain set %q: want kp,ki,kd[,limit]", raw)
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return config.GainsConfig{}, fmt.Errorf("gain set %q: %w", raw, err)
		}
		vals[i] = v
	}

	g := config.GainsConfig{Kp: vals[0], Ki: vals[1], Kd: vals[2]}
	if len(vals) == 4 {
		if vals[3] < 0 {
			return config.GainsConfig{}, fmt.Errorf("gain set %q: integral limit must not be negative", raw)
		}
		g.IntegralLimit = &vals[3]
	}
	return g, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLANT\tTIME\tDURATION\tDT\tKP\tKI\tKD\tIAE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%g\t%g\t%g\t%.4f\n",
			run.ID,
			run.Plant,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Gains.Kp,
			run.Gains.Ki,
			run.Gains.Kd,
			run.Metrics["iae"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if tr.Steps() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Println(field("run", meta.ID))
	fmt.Println(field("plant", meta.Plant))
	fmt.Println(field("gains", fmt.Sprintf("kp=%g ki=%g kd=%g", meta.Gains.Kp, meta.Gains.Ki, meta.Gains.Kd)))
	fmt.Println(field("samples", tr.Steps()))
	fmt.Println()

	type plot struct {
		caption string
		data    []float64
	}
	series := []plot{
		{"error", tr.Errors},
		{"controller output", tr.Outputs},
	}
	if len(tr.Energy) > 0 {
		series = append(series, plot{"plant energy", tr.Energy})
	}
	for _, s := range series {
		graph := asciigraph.Plot(s.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

type exportData struct {
	Meta    *storage.RunMetadata `json:"meta"`
	Times   []float64            `json:"times"`
	States  [][]float64          `json:"states"`
	Errors  []float64            `json:"errors"`
	Outputs []float64            `json:"outputs"`
	Terms   []pid.Terms          `json:"terms"`
	Energy  []float64            `json:"energy,omitempty"`
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}

	data := exportData{
		Meta:    meta,
		Times:   tr.Times,
		States:  make([][]float64, len(tr.States)),
		Errors:  tr.Errors,
		Outputs: tr.Outputs,
		Terms:   tr.Terms,
		Energy:  tr.Energy,
	}
	for i, s := range tr.States {
		data.States[i] = s
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func listPresets(cmd *cobra.Command, args []string) error {
	plants := physics.Names()
	if len(args) == 1 {
		plants = args
	}

	for _, plant := range plants {
		presets := config.ListPresets(plant)
		if len(presets) == 0 {
			fmt.Printf("no presets for plant: %s\n", plant)
			continue
		}
		fmt.Println(titleStyle.Render("presets for " + plant + ":"))
		for _, name := range presets {
			p := config.GetPreset(plant, name)
			fmt.Printf("  %-14s kp=%g ki=%g kd=%g setpoint=%g\n", name, p.Gains.Kp, p.Gains.Ki, p.Gains.Kd, p.Setpoint)
		}
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if sc.Name != "" {
		fmt.Println(titleStyle.Render("scenario " + sc.Name))
	}
	results, err := automation.RunScenario(ctx, sc, slog.Default())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN ID\tFINAL\tIAE\tOVERSHOOT")
	for i, res := range results {
		cfg := res.Config
		runID, err := st.Save(storage.RunMetadata{
			Plant:      cfg.Plant,
			Integrator: cfg.Integrator,
			Dt:         cfg.Dt,
			Duration:   cfg.Duration,
			Setpoint:   cfg.Setpoint,
			Gains: storage.GainsMetadata{
				Kp:            cfg.Gains.Kp,
				Ki:            cfg.Gains.Ki,
				Kd:            cfg.Gains.Kd,
				IntegralLimit: cfg.Gains.IntegralLimit,
			},
		}, res.Trace)
		if err != nil {
			return err
		}

		name := res.Step.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.4f\n", name, runID, res.Trace.Final[0],
			res.Trace.Metrics["iae"], res.Trace.Metrics["overshoot"])
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Run:          *cfg,
		Perturbation: perturb,
		NumTrials:    trials,
		Seed:         seed,
	}, slog.Default())
	if err != nil {
		return err
	}

	sum := automation.MonteCarloStats(results)
	fmt.Println(field("trials", sum.Trials))
	fmt.Println(field("settled", sum.Settled))
	fmt.Println(field("settle rate", fmt.Sprintf("%.1f%%", sum.SettleRate*100)))
	fmt.Println(field("mean iae", sum.MeanIAE))
	if sum.Unsettled > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("unsettled: %d", sum.Unsettled)))
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fmtValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', 6, 64)
	default:
		return fmt.Sprint(x)
	}
}

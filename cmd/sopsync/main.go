package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/sopsync"
	util_log "github.com/ValerySidorin/sopsync/pkg/util/log"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configFile string
	mode       string
	phase      string
)

var rootCmd = &cobra.Command{
	Use:           "sopsync",
	Short:         "Synchronize effective controlled documents from Vault into the knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the phase scheduled for today",
	Long: `Runs the phase given by --phase, else by $` + sopsync.PhaseEnv + `, else by the weekday:
retrieve on Monday and Thursday, download on Tuesday and Friday, generate on
Wednesday and Saturday. Nothing runs on Sunday.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := sopsync.ResolvePhase(phase, os.Getenv(sopsync.PhaseEnv), time.Now())
		if err != nil {
			return err
		}
		if p == "" {
			level.Info(bootLogger).Log("msg", "no phase scheduled today", "day", time.Now().Weekday())
			return nil
		}
		return runPhase(cmd, p, nil)
	},
}

func phaseCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhase(cmd, name, nil)
		},
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <document-number>...",
	Short: "Export documents by number into the ingestion folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhase(cmd, sopsync.Fetch, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("sopsync version %s\n", version)
	},
}

var bootLogger = log.With(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), "ts", log.DefaultTimestampUTC)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to the YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Execution mode overriding the configuration: Incremental or Load.")
	runCmd.Flags().StringVar(&phase, "phase", "", "Phase to run instead of the scheduled one.")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(phaseCmd(sopsync.Retrieve, "Reconcile Vault documents with the sync state and submit exports"))
	rootCmd.AddCommand(phaseCmd(sopsync.Download, "Publish the results of pending export jobs"))
	rootCmd.AddCommand(phaseCmd(sopsync.Generate, "Generate evaluation questions for published documents"))
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(versionCmd)
}

func runPhase(cmd *cobra.Command, p string, numbers []string) error {
	cfg, err := sopsync.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Mode = mode
	}

	app, err := sopsync.New(cfg, util_log.New(cfg.Log))
	if err != nil {
		return err
	}
	app.Numbers = numbers

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, p)
}

func main() {
	util_log.CheckFatal(bootLogger, "running sopsync", rootCmd.Execute())
}

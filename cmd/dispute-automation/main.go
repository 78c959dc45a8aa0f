package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"supplier_dispute_backend/internal/disputes"
	"supplier_dispute_backend/internal/email"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/internal/notification"
	"supplier_dispute_backend/internal/scheduler"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/validator"

	"github.com/spf13/cobra"
)

// errUnsuccessful makes the process exit 1 after the JSON output was printed.
var errUnsuccessful = errors.New("run finished unsuccessfully")

var (
	flagCheck       bool
	flagVerifyAudit bool
	flagVerbose     bool
	flagEnqueue     bool
)

var rootCmd = &cobra.Command{
	Use:   "dispute-automation [client-reference]",
	Short: "Investigate and resolve supplier disputes from the tracking sheet",
	Long: `Scans the dispute tracking sheet for rows carrying a supplier dispute note,
investigates each booking against the profile service and the log warehouse,
and writes the resolution back to the sheet.

Without arguments every matching row is processed. With a client reference only
that row is processed. The run report is printed as JSON on stdout; the process
exits 1 when any record failed or the run aborted. When REDIS_URL is set the run
takes the scheduler's run lock and exits 1 if another run already holds it.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&flagCheck, "check", false, "ping the sheet, profile service, warehouse and audit store, then exit")
	rootCmd.Flags().BoolVar(&flagVerifyAudit, "verify-audit", false, "verify the audit hash chain, then exit")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&flagEnqueue, "enqueue", false, "queue the run on the scheduler instead of running it here")
	rootCmd.MarkFlagsMutuallyExclusive("check", "verify-audit", "enqueue")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errUnsuccessful) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewWithOptions(cfg.Env, flagVerbose, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	var ref string
	if len(args) == 1 {
		ref = args[0]
	}

	if flagEnqueue {
		return enqueue(ctx, cfg, ref, out)
	}

	bus := events.NewInMemoryBus(log)
	notification.New(email.NewSender(cfg), cfg, log).RegisterHandlers(bus)

	module, err := disputes.NewModule(ctx, cfg, bus, validator.New(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := module.Close(); err != nil {
			log.Warn("failed to close dispute module", "error", err)
		}
	}()

	switch {
	case flagCheck:
		results := module.Orchestrator().Check(ctx)
		if err := writeJSON(out, results); err != nil {
			return err
		}
		if !disputes.AllOK(results) {
			return errUnsuccessful
		}
		return nil
	case flagVerifyAudit:
		return verifyAudit(ctx, module, out)
	}

	processor, closeLock, err := runProcessor(cfg, module.Orchestrator(), log)
	if err != nil {
		return err
	}
	defer closeLock()

	var report *disputes.RunReport
	var runErr error
	if ref != "" {
		report, runErr = processor.ProcessOne(ctx, ref)
	} else {
		report, runErr = processor.ProcessAll(ctx)
	}
	bus.Wait()

	if errors.Is(runErr, scheduler.ErrRunInProgress) {
		return runErr
	}

	if report != nil {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		log.Error("dispute run failed", "error", runErr)
		return errUnsuccessful
	}
	if report.HasFailures() {
		return errUnsuccessful
	}
	return nil
}

// runProcessor shares the scheduler's run lock when Redis is configured, so a
// manual run never overlaps a scheduled one.
func runProcessor(cfg *config.Config, orch *disputes.Orchestrator, log *logger.Logger) (scheduler.RunProcessor, func(), error) {
	if cfg.GetRedisURL() == "" {
		return orch, func() {}, nil
	}
	client, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	lock := scheduler.NewRunLock(client, "", cfg.GetRunLockTTL())
	return scheduler.NewLockedProcessor(orch, lock, log), func() { _ = client.Close() }, nil
}

type auditVerification struct {
	OK       bool   `json:"ok"`
	Entries  int    `json:"entries"`
	Dangling int    `json:"dangling"`
	Error    string `json:"error,omitempty"`
}

func verifyAudit(ctx context.Context, module *disputes.Module, out io.Writer) error {
	var res auditVerification

	n, err := module.Audit().Verify(ctx)
	res.Entries = n
	if err != nil {
		res.Error = err.Error()
	}
	dangling, err := module.Audit().Dangling(ctx)
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	res.Dangling = len(dangling)
	res.OK = res.Error == ""

	if err := writeJSON(out, res); err != nil {
		return err
	}
	if !res.OK {
		return errUnsuccessful
	}
	return nil
}

func enqueue(ctx context.Context, cfg config.SchedulerConfig, ref string, out io.Writer) error {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var taskID string
	if ref != "" {
		taskID, err = client.EnqueueReference(ctx, ref)
	} else {
		taskID, err = client.EnqueueBatch(ctx)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{"taskId": taskID, "clientReference": ref})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

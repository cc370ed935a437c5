package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and manage the dead-letter store",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered mutations",
	RunE:  runDLQList,
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay <mutation-id>",
	Short: "Move a dead-lettered mutation back into the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runDLQReplay,
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge <mutation-id>",
	Short: "Permanently delete a dead-lettered mutation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDLQPurge,
}

func init() {
	dlqCmd.AddCommand(dlqListCmd, dlqReplayCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}

func runDLQList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	failed, err := repo.ListFailedMutations()
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Println("dead-letter store is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tRETRIES\tFAILED\tLAST ERROR")
	for _, f := range failed {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			uuid.Short(f.ID.String()),
			string(f.Resource)+":"+string(f.Type),
			f.RetryCount,
			humanize.Time(f.FailedAtTime()),
			truncate(f.LastError, 48),
		)
	}
	w.Flush()

	fmt.Printf("\n%d dead-lettered mutations\n", len(failed))
	return nil
}

func runDLQReplay(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("invalid mutation id %q", id)
	}

	cfg := loadConfig()
	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := repo.RequeueFailedMutation(models.UUID(id)); err != nil {
		return fmt.Errorf("failed to replay %s: %w", uuid.Short(id), err)
	}
	fmt.Printf("requeued %s; it will apply on the next sync pass\n", uuid.Short(id))
	return nil
}

func runDLQPurge(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("invalid mutation id %q", id)
	}

	cfg := loadConfig()
	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := repo.PurgeFailedMutation(models.UUID(id)); err != nil {
		return fmt.Errorf("failed to purge %s: %w", uuid.Short(id), err)
	}
	fmt.Printf("purged %s\n", uuid.Short(id))
	return nil
}

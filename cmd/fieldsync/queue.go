package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the pending mutation queue",
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	mutations, err := repo.ListPendingMutations()
	if err != nil {
		return err
	}
	photos, err := repo.CountUnsyncedPhotos()
	if err != nil {
		return err
	}

	if len(mutations) == 0 {
		fmt.Println("queue is empty")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tRETRIES\tSIZE\tAGE\tLAST ERROR")
		for _, m := range mutations {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				uuid.Short(m.ID.String()),
				m.Key(),
				m.RetryCount,
				humanize.Bytes(uint64(len(m.Payload))),
				humanize.Time(m.CreatedAtTime()),
				truncate(m.LastError, 48),
			)
		}
		w.Flush()
	}

	fmt.Printf("\n%d pending mutations, %d unsynced photos\n", len(mutations), photos)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

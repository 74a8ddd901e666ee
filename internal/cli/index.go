package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/snapshot"
)

func newReindexCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [id...]",
		Short: "Rebuild postings for the given documents, or the whole corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()
			report, err := e.coord.Reindex(cmd.Context(), args)
			cmd.Printf("requested %d, indexed %d, removed %d, failed %d in %s\n",
				report.Requested, report.Indexed, report.Removed, report.Failed,
				report.Elapsed.Round(time.Millisecond))
			return err
		},
	}
}

func newInspectCommand(o *options) *cobra.Command {
	var term string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the on-disk snapshot header, or the postings of one term",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Indexer.DataDir, snapshot.FileName)
			r, err := snapshot.OpenReader(path)
			if snapshot.IsNotExist(err) {
				return fmt.Errorf("no snapshot at %s", path)
			}
			if err != nil {
				return err
			}
			defer r.Close()

			if term != "" {
				postings, err := r.Search(term)
				if err != nil {
					return err
				}
				if len(postings) == 0 {
					cmd.Printf("term %q not in snapshot\n", term)
					return nil
				}
				for _, p := range postings {
					cmd.Printf("%s\t%s\tfreq=%d\tlen=%d\tpositions=%v\n", p.DocID, p.Zone, p.Frequency, p.DocLength, p.Positions)
				}
				return nil
			}

			h := r.Header()
			cmd.Printf("path:       %s\n", path)
			cmd.Printf("version:    %d\n", h.Version)
			cmd.Printf("generation: %d\n", h.Generation)
			cmd.Printf("terms:      %d\n", r.Terms())
			cmd.Printf("documents:  %d\n", r.DocCount())
			cmd.Printf("created:    %s\n", time.Unix(h.CreatedAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "print postings for this index term")
	return cmd
}

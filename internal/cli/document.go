package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
)

func newPutCommand(o *options) *cobra.Command {
	var doc corpus.Document
	cmd := &cobra.Command{
		Use:   "put [id]",
		Short: "Insert or replace a document and index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc.ID = args[0]
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.docs.Put(cmd.Context(), &doc); err != nil {
				return err
			}
			cmd.Printf("stored %s (generation %d)\n", doc.ID, e.coord.Generation())
			return nil
		},
	}
	cmd.Flags().StringVar(&doc.Title, "title", "", "document title")
	cmd.Flags().StringVar(&doc.Body, "body", "", "document body")
	cmd.Flags().StringVar(&doc.Category, "category", "", "category")
	cmd.Flags().StringVar(&doc.Source, "source", "", "source")
	cmd.Flags().StringVar(&doc.Status, "status", corpus.StatusActive, "active, inactive or archived")
	return cmd
}

func newLoadCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load [file]",
		Short: "Bulk load documents from a JSON lines file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var (
				errs   *multierror.Error
				stored int
				line   int
			)
			sc := bufio.NewScanner(in)
			sc.Buffer(make([]byte, 64*1024), 16<<20)
			for sc.Scan() {
				line++
				text := strings.TrimSpace(sc.Text())
				if text == "" {
					continue
				}
				var doc corpus.Document
				if err := json.Unmarshal([]byte(text), &doc); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
					continue
				}
				if err := e.docs.Put(cmd.Context(), &doc); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
					continue
				}
				stored++
			}
			if err := sc.Err(); err != nil {
				errs = multierror.Append(errs, err)
			}
			cmd.Printf("loaded %d documents (generation %d)\n", stored, e.coord.Generation())
			return errs.ErrorOrNil()
		},
	}
}

func newGetCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Print a stored document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), o, false)
			if err != nil {
				return err
			}
			defer e.Close()
			doc, err := e.docs.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
}

func newDeleteCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a document and drop it from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.docs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %s (generation %d)\n", args[0], e.coord.Generation())
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

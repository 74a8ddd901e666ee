package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher"
)

func newSearchCommand(o *options) *cobra.Command {
	var (
		req    searcher.Request
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()
			svc, err := searcher.New(e.store, e.coord, nil, searcher.ConfigFrom(e.cfg))
			if err != nil {
				return err
			}
			res, err := svc.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			if len(res.Results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			cmd.Printf("%d of %d results:\n", len(res.Results), res.TotalCount)
			for i, r := range res.Results {
				cmd.Printf("  [%d] %s  rank=%.3f relevance=%.3f zones=%s\n",
					req.Offset+i+1, r.DocumentID, r.RankScore, r.RelevanceScore, strings.Join(r.MatchedZones, ","))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&req.Limit, "limit", "n", 0, "maximum number of results")
	f.IntVar(&req.Offset, "offset", 0, "results to skip")
	f.StringVar(&req.Filters.Category, "category", "", "only documents in this category")
	f.StringVar(&req.Filters.Source, "source", "", "only documents from this source")
	f.StringVar(&req.Filters.Status, "status", "", "only documents with this status")
	f.StringVar(&req.Profile, "profile", "", "language profile for the query")
	f.Float64Var(&req.MinRelevance, "min-relevance", 0, "drop results below this relevance")
	f.BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func newSuggestCommand(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest [partial]",
		Short: "Complete the last word of a partial query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), o, true)
			if err != nil {
				return err
			}
			defer e.Close()
			svc, err := searcher.New(e.store, e.coord, nil, searcher.ConfigFrom(e.cfg))
			if err != nil {
				return err
			}
			out, err := svc.Suggest(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			for _, s := range out {
				cmd.Println(s)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of suggestions")
	return cmd
}

func newAnalyzeCommand(o *options) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Show the terms and positions the analyzer produces for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.Analyzer.Profile
			}
			a, err := analyzer.NewForProfile(profile, analyzer.Options{
				MaxInputLength: cfg.Analyzer.MaxInputLength,
				StripMarkup:    cfg.Analyzer.StripMarkup,
			})
			if err != nil {
				return err
			}
			tokens, err := a.Analyze(strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, t := range tokens {
				cmd.Printf("%d\t%s\n", t.Position, t.Term)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "language profile (default from config)")
	return cmd
}

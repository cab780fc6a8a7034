package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/featurelens/internal/adapter/provider/neuronpedia"
	"github.com/heartmarshall/featurelens/internal/app"
	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/metrics"
	"github.com/heartmarshall/featurelens/internal/tokenizer"
)

const maxTermsShown = 5

type tokenView struct {
	Text     string `json:"text"`
	Position int    `json:"position"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

type explanationView struct {
	Index          int        `json:"index"`
	Description    string     `json:"description"`
	HasDescription bool       `json:"hasDescription"`
	SourceID       *string    `json:"sourceId,omitempty"`
	EmbedURL       string     `json:"embedUrl,omitempty"`
	PositiveTerms  []termView `json:"positiveTerms"`
	NegativeTerms  []termView `json:"negativeTerms"`
	FrequencyBars  int        `json:"frequencyBars"`
	LogitsBars     int        `json:"logitsBars"`
}

type termView struct {
	Word  string  `json:"word"`
	Value float64 `json:"value"`
}

func toTermViews(terms []domain.Term) []termView {
	out := make([]termView, len(terms))
	for i, t := range terms {
		out[i] = termView{Word: t.Word, Value: t.Value}
	}
	return out
}

type explainView struct {
	Sentence     string            `json:"sentence"`
	Tokens       []tokenView       `json:"tokens"`
	Token        string            `json:"token"`
	Explanations []explanationView `json:"explanations"`
	Selected     *explanationView  `json:"selected,omitempty"`
}

func toTokenViews(tokens []domain.Token) []tokenView {
	out := make([]tokenView, len(tokens))
	for i, t := range tokens {
		out[i] = tokenView{Text: t.Text, Position: t.Position, Start: t.Start, End: t.End}
	}
	return out
}

func newTokenizeCmd() *cobra.Command {
	var (
		form   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tokenize <text>...",
		Short: "Split a sentence into word and punctuation tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, ok := tokenizer.ParseForm(form)
			if !ok {
				return fmt.Errorf("unknown unicode form %q", form)
			}
			tokens := tokenizer.New(opts...).Tokenize(strings.Join(args, " "))

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, toTokenViews(tokens))
			}
			for _, t := range tokens {
				fmt.Fprintf(out, "%d\t%d-%d\t%s\n", t.Position, t.Start, t.End, t.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&form, "form", "none", "Unicode normalization before splitting (none, nfc, nfkc, nfd, nfkd)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newEmbedURLCmd() *cobra.Command {
	var (
		base   string
		model  string
		height int
	)

	cmd := &cobra.Command{
		Use:   "embed-url <model/layer/index | layer/index>",
		Short: "Print the embeddable dashboard URL of a feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			u, err := neuronpedia.EmbedURLFor(base, model, domain.FeatureExplanation{SourceID: &source}, height)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "https://neuronpedia.org", "dashboard base URL")
	cmd.Flags().StringVar(&model, "model", "gemma-2-2b", "model id used when the source has no model segment")
	cmd.Flags().IntVar(&height, "height", neuronpedia.DefaultEmbedHeight, "dashboard height in pixels")
	return cmd
}

func newExplainCmd(root *rootOptions) *cobra.Command {
	var (
		token   string
		feature int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "explain <sentence> --token <word> [--feature N]",
		Short: "Look up the feature explanations of one token of a sentence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg.Log)

			journal, err := app.OpenJournal(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			rec := metrics.NewNoop()
			svc := app.NewLookupService(cfg, logger, journal, rec)
			factory, err := app.NewSessionFactory(cfg, logger, svc.Fetch, rec)
			if err != nil {
				return err
			}
			embed := app.EmbedURL(cfg)

			s := factory()
			sentence := strings.Join(args, " ")
			tokens := s.SetSentence(sentence)

			exps, err := s.SelectToken(ctx, token)
			if err != nil {
				return err
			}

			view := explainView{
				Sentence:     sentence,
				Tokens:       toTokenViews(tokens),
				Token:        token,
				Explanations: make([]explanationView, len(exps)),
			}
			for i, f := range exps {
				view.Explanations[i] = toExplanationView(i, f, embed)
			}

			if cmd.Flags().Changed("feature") {
				f, err := s.SelectFeature(feature)
				if err != nil {
					return err
				}
				sel := toExplanationView(feature, f, embed)
				view.Selected = &sel
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, view)
			}
			printExplanations(out, view)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token of the sentence to explain")
	cmd.Flags().IntVar(&feature, "feature", 0, "select the explanation at this index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func toExplanationView(i int, f domain.FeatureExplanation, embed func(domain.FeatureExplanation) (string, error)) explanationView {
	v := explanationView{
		Index:          i,
		Description:    f.Description,
		HasDescription: f.HasDescription(),
		SourceID:       f.SourceID,
		PositiveTerms:  toTermViews(f.PositiveTerms),
		NegativeTerms:  toTermViews(f.NegativeTerms),
		FrequencyBars:  f.FrequencyHistogram.Len(),
		LogitsBars:     f.LogitsHistogram.Len(),
	}
	if f.SourceID != nil {
		if u, err := embed(f); err == nil {
			v.EmbedURL = u
		}
	}
	return v
}

func printExplanations(w io.Writer, v explainView) {
	if len(v.Explanations) == 0 {
		fmt.Fprintf(w, "No explanations found for %q.\n", v.Token)
		return
	}

	fmt.Fprintf(w, "%d explanations for %q:\n", len(v.Explanations), v.Token)
	for _, e := range v.Explanations {
		fmt.Fprintf(w, "  [%d] %s\n", e.Index, e.Description)
	}

	if v.Selected == nil {
		return
	}

	e := v.Selected
	fmt.Fprintf(w, "\nSelected [%d] %s\n", e.Index, e.Description)
	if e.SourceID != nil {
		fmt.Fprintf(w, "  source:     %s\n", *e.SourceID)
	}
	if e.EmbedURL != "" {
		fmt.Fprintf(w, "  dashboard:  %s\n", e.EmbedURL)
	}
	fmt.Fprintf(w, "  positive:   %s\n", formatTerms(e.PositiveTerms))
	fmt.Fprintf(w, "  negative:   %s\n", formatTerms(e.NegativeTerms))
	fmt.Fprintf(w, "  histograms: %d frequency bars, %d logit bars\n", e.FrequencyBars, e.LogitsBars)
}

func formatTerms(terms []termView) string {
	if len(terms) == 0 {
		return "-"
	}
	n := min(len(terms), maxTermsShown)
	parts := make([]string, n)
	for i, t := range terms[:n] {
		parts[i] = fmt.Sprintf("%s (%.2f)", t.Word, t.Value)
	}
	s := strings.Join(parts, ", ")
	if len(terms) > n {
		s += fmt.Sprintf(", +%d more", len(terms)-n)
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

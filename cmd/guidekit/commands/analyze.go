package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nik-kale/guidekit/internal/cli"
	"github.com/nik-kale/guidekit/internal/experiment"
)

// resultVariant is one variant's recorded counts in a results document.
type resultVariant struct {
	ID           string `yaml:"id"`
	IsControl    bool   `yaml:"isControl"`
	Participants int    `yaml:"participants"`
	Conversions  int    `yaml:"conversions"`
}

// resultsSpec is the document shape accepted by the analyze command.
type resultsSpec struct {
	ExperimentID string          `yaml:"experimentId"`
	Confidence   float64         `yaml:"confidence"`
	Variants     []resultVariant `yaml:"variants"`
}

func validateResults(res resultsSpec) error {
	if res.ExperimentID == "" {
		return fmt.Errorf("results document has no experimentId")
	}
	control := controlVariant(res)
	if control == nil {
		return fmt.Errorf("results %s: no control variant", res.ExperimentID)
	}
	if control.Participants <= 0 {
		return fmt.Errorf("results %s: control has no participants", res.ExperimentID)
	}
	return nil
}

func controlVariant(res resultsSpec) *resultVariant {
	for i := range res.Variants {
		if res.Variants[i].IsControl {
			return &res.Variants[i]
		}
	}
	return nil
}

// variantAnalysis is one row of analyze output.
type variantAnalysis struct {
	ID           string  `json:"id" yaml:"id"`
	IsControl    bool    `json:"isControl" yaml:"isControl"`
	Participants int     `json:"participants" yaml:"participants"`
	Conversions  int     `json:"conversions" yaml:"conversions"`
	Rate         float64 `json:"rate" yaml:"rate"`
	Lift         float64 `json:"lift,omitempty" yaml:"lift,omitempty"`
	Z            float64 `json:"z,omitempty" yaml:"z,omitempty"`
	PValue       float64 `json:"pValue,omitempty" yaml:"pValue,omitempty"`
	Significant  bool    `json:"significant" yaml:"significant"`
}

type analysisOutput struct {
	ExperimentID string            `json:"experimentId" yaml:"experimentId"`
	Confidence   float64           `json:"confidence" yaml:"confidence"`
	Variants     []variantAnalysis `json:"variants" yaml:"variants"`
}

var analyzeFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run significance analysis on recorded counts",
	Long: `Run a two-proportion z-test (control vs each variant) on counts
recorded in a results document.

A results document looks like:

  kind: results
  spec:
    experimentId: checkout-cta
    confidence: 0.95
    variants:
      - {id: control, isControl: true, participants: 1000, conversions: 100}
      - {id: bold-cta, participants: 1000, conversions: 130}

Examples:
  guidekit analyze results.yaml
  guidekit analyze results.yaml --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(analyzeFormat)
		if err != nil {
			return err
		}

		docs, err := loadDocuments(args[0])
		if err != nil {
			return err
		}

		ran := 0
		for _, doc := range docs {
			if doc.Kind != "results" {
				continue
			}
			var res resultsSpec
			if err := doc.Spec.Decode(&res); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := analyzeResults(res, format); err != nil {
				return err
			}
			ran++
		}
		if ran == 0 {
			return fmt.Errorf("%s: no results documents found", args[0])
		}
		return nil
	},
}

func analyzeResults(res resultsSpec, format cli.OutputFormat) error {
	if err := validateResults(res); err != nil {
		return err
	}
	control := controlVariant(res)

	confidence := res.Confidence
	if confidence == 0 {
		confidence = experiment.DefaultConfidence
	}
	alpha := 1 - confidence
	controlRate := float64(control.Conversions) / float64(control.Participants)

	out := analysisOutput{ExperimentID: res.ExperimentID, Confidence: confidence}
	for _, v := range res.Variants {
		row := variantAnalysis{
			ID:           v.ID,
			IsControl:    v.IsControl,
			Participants: v.Participants,
			Conversions:  v.Conversions,
		}
		if v.Participants > 0 {
			row.Rate = float64(v.Conversions) / float64(v.Participants)
		}
		if !v.IsControl {
			row.Z, row.PValue = experiment.TwoProportionZ(
				control.Conversions, control.Participants, v.Conversions, v.Participants)
			if controlRate > 0 {
				row.Lift = (row.Rate - controlRate) / controlRate * 100
			}
			row.Significant = row.PValue < alpha
		}
		out.Variants = append(out.Variants, row)
	}

	if quiet {
		return nil
	}
	return cli.Print(os.Stdout, out, format, func() error {
		fmt.Printf("experiment %s: confidence %.0f%%\n", out.ExperimentID, out.Confidence*100)
		table := cli.NewTable(os.Stdout,
			"Variant", "Participants", "Conversions", "Rate", "Lift", "Z", "P-Value", "Significant")
		for _, row := range out.Variants {
			if row.IsControl {
				table.Append(row.ID+" (control)",
					fmt.Sprintf("%d", row.Participants),
					fmt.Sprintf("%d", row.Conversions),
					fmt.Sprintf("%.2f%%", row.Rate*100),
					"-", "-", "-", "-")
				continue
			}
			table.Append(row.ID,
				fmt.Sprintf("%d", row.Participants),
				fmt.Sprintf("%d", row.Conversions),
				fmt.Sprintf("%.2f%%", row.Rate*100),
				fmt.Sprintf("%+.1f%%", row.Lift),
				fmt.Sprintf("%.4f", row.Z),
				fmt.Sprintf("%.4f", row.PValue),
				fmt.Sprintf("%t", row.Significant),
			)
		}
		return table.Render()
	})
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table", "Output format (table, json, yaml)")
}

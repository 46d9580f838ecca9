package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nik-kale/guidekit/internal/cli"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/identity"
)

var (
	simulateUsers  int
	simulateSalt   string
	simulateFormat string
)

// simulationOutput is one experiment's simulated allocation.
type simulationOutput struct {
	ExperimentID string           `json:"experimentId" yaml:"experimentId"`
	Users        int              `json:"users" yaml:"users"`
	Salt         string           `json:"salt" yaml:"salt"`
	Variants     []variantOutcome `json:"variants" yaml:"variants"`
}

type variantOutcome struct {
	ID        string  `json:"id" yaml:"id"`
	IsControl bool    `json:"isControl" yaml:"isControl"`
	Weight    float64 `json:"weight" yaml:"weight"`
	Assigned  int     `json:"assigned" yaml:"assigned"`
	Share     float64 `json:"share" yaml:"share"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <file>",
	Short: "Simulate variant allocation for an experiment document",
	Long: `Run N synthetic users through each experiment in the file and print
the resulting variant distribution. Targeting rules are stripped for the
simulation so the output reflects allocation weights only.

Examples:
  guidekit simulate experiment.yaml
  guidekit simulate experiment.yaml --users 50000 --salt prod-salt
  guidekit simulate experiment.yaml --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(simulateFormat)
		if err != nil {
			return err
		}

		docs, err := loadDocuments(args[0])
		if err != nil {
			return err
		}

		ran := 0
		for _, doc := range docs {
			if doc.Kind != "experiment" {
				continue
			}
			var exp experiment.Experiment
			if err := doc.Spec.Decode(&exp); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := simulateExperiment(exp, format); err != nil {
				return err
			}
			ran++
		}
		if ran == 0 {
			return fmt.Errorf("%s: no experiment documents found", args[0])
		}
		return nil
	},
}

func simulateExperiment(exp experiment.Experiment, format cli.OutputFormat) error {
	// Allocation only; targeting is exercised by validate and the server.
	exp.Targeting = nil

	eng := experiment.NewEngine(zerolog.Nop(), simulateSalt)
	ctx := context.Background()
	if err := eng.Create(ctx, exp); err != nil {
		return fmt.Errorf("experiment %s: %w", exp.ID, err)
	}
	if err := eng.Start(exp.ID); err != nil {
		return fmt.Errorf("experiment %s: %w", exp.ID, err)
	}

	counts := make(map[string]int, len(exp.Variants))
	for i := 0; i < simulateUsers; i++ {
		id := identity.Identity{UserID: fmt.Sprintf("user-%06d", i)}
		a, err := eng.AssignVariant(ctx, exp.ID, id, nil)
		if err != nil {
			return fmt.Errorf("experiment %s: %w", exp.ID, err)
		}
		if a != nil {
			counts[a.VariantID]++
		}
	}

	out := simulationOutput{ExperimentID: exp.ID, Users: simulateUsers, Salt: simulateSalt}
	for _, v := range exp.Variants {
		n := counts[v.ID]
		out.Variants = append(out.Variants, variantOutcome{
			ID:        v.ID,
			IsControl: v.IsControl,
			Weight:    v.Weight,
			Assigned:  n,
			Share:     float64(n) / float64(simulateUsers) * 100,
		})
	}

	if quiet {
		return nil
	}
	return cli.Print(os.Stdout, out, format, func() error {
		fmt.Printf("experiment %s: %d users, salt %q\n", out.ExperimentID, out.Users, out.Salt)
		table := cli.NewTable(os.Stdout, "Variant", "Control", "Weight", "Assigned", "Share")
		for _, v := range out.Variants {
			table.Append(
				v.ID,
				fmt.Sprintf("%t", v.IsControl),
				fmt.Sprintf("%.1f%%", v.Weight),
				fmt.Sprintf("%d", v.Assigned),
				fmt.Sprintf("%.2f%%", v.Share),
			)
		}
		return table.Render()
	})
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVar(&simulateUsers, "users", 10000, "Number of synthetic users")
	simulateCmd.Flags().StringVar(&simulateSalt, "salt", "simulate", "Bucketing salt")
	simulateCmd.Flags().StringVar(&simulateFormat, "format", "table", "Output format (table, json, yaml)")
}

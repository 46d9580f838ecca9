package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nik-kale/guidekit/internal/cli"
	"github.com/nik-kale/guidekit/internal/client"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
)

var (
	applyServer string
	applyAPIKey string
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <file>...",
	Short: "Push definition documents to a running server",
	Long: `Validate definition documents and push them to a guidekit server.

The server address and admin API key come from --server/--api-key or the
GUIDEKIT_SERVER and GUIDEKIT_API_KEY environment variables. With
--dry-run, documents are validated and listed without being pushed.

Examples:
  guidekit apply segments.yaml flows.yaml --server http://localhost:8080 --api-key admin-123
  GUIDEKIT_SERVER=http://localhost:8080 GUIDEKIT_API_KEY=admin-123 guidekit apply all.yaml
  guidekit apply all.yaml --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var docs []document
		for _, path := range args {
			loaded, err := loadDocuments(path)
			if err != nil {
				return err
			}
			docs = append(docs, loaded...)
		}
		if len(docs) == 0 {
			return fmt.Errorf("no documents found")
		}

		// Validate everything before pushing anything.
		var failed int
		for _, doc := range docs {
			id, warnings, err := validateDocument(doc)
			if err != nil {
				failed++
				fmt.Printf("FAIL  %s %s: %v\n", doc.Kind, id, err)
				continue
			}
			for _, w := range warnings {
				fmt.Printf("WARN  %s %s: %s\n", doc.Kind, id, w)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed validation, nothing applied", failed)
		}

		if applyDryRun {
			fmt.Printf("Dry run: %d document(s) validated, nothing applied\n", len(docs))
			return nil
		}

		server, err := cli.ResolveServer(applyServer, applyAPIKey)
		if err != nil {
			return err
		}
		c := client.New(server.BaseURL, server.APIKey)
		ctx := cmd.Context()

		for _, doc := range docs {
			var id string
			switch doc.Kind {
			case "segment":
				var s segment.Segment
				if err := doc.Spec.Decode(&s); err != nil {
					return err
				}
				id, err = s.ID, c.DefineSegment(ctx, s)
			case "experiment":
				var e experiment.Experiment
				if err := doc.Spec.Decode(&e); err != nil {
					return err
				}
				id, err = e.ID, c.CreateExperiment(ctx, e)
			case "flow":
				var f flow.Flow
				if err := doc.Spec.Decode(&f); err != nil {
					return err
				}
				id = f.ID
				_, err = c.DefineFlow(ctx, f)
			case "checklist":
				var cl flow.Checklist
				if err := doc.Spec.Decode(&cl); err != nil {
					return err
				}
				id, err = cl.ID, c.DefineChecklist(ctx, cl)
			case "results":
				// Results documents are local analysis inputs.
				continue
			default:
				return fmt.Errorf("unknown document kind %q", doc.Kind)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", doc.Kind, id, err)
			}
			if !quiet {
				fmt.Printf("APPLIED  %s %s\n", doc.Kind, id)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVar(&applyServer, "server", "", "Server base URL")
	applyCmd.Flags().StringVar(&applyAPIKey, "api-key", "", "Admin API key")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate and list without pushing")
}

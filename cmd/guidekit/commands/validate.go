package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate definition documents",
	Long: `Validate segment, experiment, and flow definition documents.

Each file may contain multiple YAML documents. Validation errors are
reported per document; warnings do not fail the command.

Examples:
  guidekit validate experiment.yaml
  guidekit validate segments.yaml flows.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, path := range args {
			docs, err := loadDocuments(path)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				id, warnings, err := validateDocument(doc)
				if err != nil {
					failed++
					fmt.Printf("FAIL  %s %s: %v\n", doc.Kind, id, err)
					continue
				}
				if !quiet {
					fmt.Printf("OK    %s %s\n", doc.Kind, id)
				}
				for _, w := range warnings {
					fmt.Printf("WARN  %s %s: %s\n", doc.Kind, id, w)
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed validation", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/shopframes/internal/frame"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <flow> <resource-id>",
		Short: "Print the first Frame document of a flow",
		Long: `Render the document a Frame client sees before its first interaction.

Text output is the HTML document; JSON output is the document's fields.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.Open(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			flow, ok := a.Flow(args[0])
			if !ok {
				return fmt.Errorf("unknown flow %q", args[0])
			}
			doc, err := flow.Start(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			return frame.Render(cmd.OutOrStdout(), doc)
		},
	}
}

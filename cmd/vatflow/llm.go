package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
)

func llmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Language model gateway commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show how the model gateway is configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeQuietly()

			st := a.gateway.Status()

			mode := "stub (no transport, placeholder responses)"
			switch {
			case st.DemoMode:
				mode = "demo (deterministic offline responses)"
			case st.TransportAvailable:
				mode = "live"
			}

			names := make([]string, 0, len(st.Models))
			for name := range st.Models {
				names = append(names, name)
			}
			sort.Strings(names)

			var b strings.Builder
			fmt.Fprintf(&b, "Mode:        %s\n", mode)
			fmt.Fprintf(&b, "API key set: %t\n", st.Configured)
			for _, name := range names {
				fmt.Fprintf(&b, "Model %-10s %s\n", name+":", st.Models[name])
			}
			fmt.Fprintf(&b, "Prompts:     %s\n", strings.Join(a.templates.Names(), ", "))
			fmt.Fprintf(&b, "Cost log:    %s", a.settings.Logging.Dir)

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.RobotIcon+" LLM status", b.String()))
			return nil
		},
	})

	return cmd
}

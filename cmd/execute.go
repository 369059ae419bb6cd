package cmd

import (
	"github.com/spf13/cobra"

	"github.com/strand-cloud/strand/cmd/launch"
	"github.com/strand-cloud/strand/cmd/organize"
	"github.com/strand-cloud/strand/cmd/reconcile"
	"github.com/strand-cloud/strand/cmd/watch"
)

var cmds = []*cobra.Command{
	organize.Cmd,
	launch.Cmd,
	reconcile.Cmd,
	watch.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use: "strand",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}

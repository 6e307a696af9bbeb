package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/farmbridge/core/topics"
)

var topicsCmd = &cobra.Command{
	Use:   "topics DEVICE",
	Short: "Print the topics of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set := topics.For(args[0])
		for _, t := range set.All() {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}

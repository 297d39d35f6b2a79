package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the agent CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agent version %s\n", version)
		fmt.Println("An autonomous multi-wallet paper trading agent")
		fmt.Println("https://github.com/rustyeddy/agent")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

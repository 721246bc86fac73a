package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the stockleague CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stockleague version %s\n", version)
		fmt.Println("A fantasy stock-trading league engine with a transactional ledger")
		fmt.Println("https://github.com/rustyeddy/stockleague")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	clearMemory bool
	clearDisk   bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the image cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached images",
	Long:  "Remove cached images. Without flags both tiers are cleared.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, release, err := state.openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		switch {
		case clearMemory && !clearDisk:
			client.ClearMemoryCache()
		case clearDisk && !clearMemory:
			client.ClearDiskCache()
		default:
			client.ClearCaches()
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearMemory, "memory", false, "clear only the memory tier")
	cacheClearCmd.Flags().BoolVar(&clearDisk, "disk", false, "clear only the disk tier")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

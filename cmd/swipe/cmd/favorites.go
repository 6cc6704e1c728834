package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorited images",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client, release, err := state.openClient(ctx)
		if err != nil {
			return err
		}
		defer release()

		favs, err := client.Favorites(ctx)
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No favorites yet.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tADDED\tURL")
		for _, f := range favs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.CreatedAt.Local().Format(time.DateTime), f.URL)
		}
		return tw.Flush()
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, release, err := state.openClient(ctx)
		if err != nil {
			return err
		}
		defer release()
		return client.RemoveFavorite(ctx, args[0])
	},
}

var favoritesExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write favorites to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, release, err := state.openClient(ctx)
		if err != nil {
			return err
		}
		defer release()

		if err := client.ExportFavorites(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported favorites to %s\n", args[0])
		return nil
	},
}

var favoritesSaveCmd = &cobra.Command{
	Use:   "save <id> <file>",
	Short: "Save a favorite's image to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, release, err := state.openClient(ctx)
		if err != nil {
			return err
		}
		defer release()

		if err := client.SaveImage(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesListCmd, favoritesRemoveCmd, favoritesExportCmd, favoritesSaveCmd)
	rootCmd.AddCommand(favoritesCmd)
}

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/swipe"
)

const browseHelp = "y = favorite, n = skip, r = reload, s = stats, q = quit"

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Judge images one at a time",
	Long: "Show the current image and read a decision from stdin.\n\n" + browseHelp,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client, release, err := state.openClient(ctx)
		if err != nil {
			return err
		}
		defer release()
		return browse(ctx, client, cmd.InOrStdin(), cmd.OutOrStdout(), state.cfg.Feed.SizeHint)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// browse runs the interactive loop until q, end of input or cancellation.
func browse(ctx context.Context, client *swipe.Client, in io.Reader, out io.Writer, sizeHint int) error {
	if err := client.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(out, "warning: %v\n", err)
	}
	fmt.Fprintln(out, browseHelp)

	scanner := bufio.NewScanner(in)
	for {
		showCurrent(ctx, client, out, sizeHint)
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		var err error
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			_, err = client.Decide(ctx, true)
		case "n", "no":
			_, err = client.Decide(ctx, false)
		case "r", "reload":
			err = client.Reload(ctx)
		case "s", "stats":
			printStats(out, client)
		case "q", "quit":
			return nil
		default:
			fmt.Fprintln(out, browseHelp)
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, swipe.ErrEmpty):
			fmt.Fprintln(out, "nothing to judge, press r to reload")
		default:
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func showCurrent(ctx context.Context, client *swipe.Client, out io.Writer, sizeHint int) {
	cur, ok := client.Current()
	if !ok {
		snap := client.Snapshot()
		if snap.Err != nil {
			fmt.Fprintf(out, "[%s] no images: %v\n", snap.State, snap.Err)
			return
		}
		fmt.Fprintf(out, "[%s] no images\n", snap.State)
		return
	}
	img, err := client.Image(ctx, cur.URL, sizeHint)
	if err != nil {
		fmt.Fprintf(out, "%s %s (unavailable: %v)\n", cur.ID, cur.URL, err)
		return
	}
	b := img.Bounds()
	fmt.Fprintf(out, "%s %s (%dx%d)\n", cur.ID, cur.URL, b.Dx(), b.Dy())
}

func printStats(out io.Writer, client *swipe.Client) {
	st := client.CacheStats()
	snap := client.Snapshot()
	fmt.Fprintf(out, "buffer: %d/%d %s\n", len(snap.Items), snap.Target, snap.State)
	fmt.Fprintf(out, "cache: %s memory hits, %s disk hits, %s fetches, %s coalesced, %s failures\n",
		humanize.Comma(st.MemoryHits), humanize.Comma(st.DiskHits), humanize.Comma(st.Fetches),
		humanize.Comma(st.Coalesced), humanize.Comma(st.Failures))
}

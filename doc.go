// Package swipe streams a feed of remote images for accept/reject browsing.
//
// A [Client] combines a lookahead buffer of unseen candidates with a tiered
// image cache. Candidates come from a discovery endpoint and are filtered
// against a decision store so a judged image never reappears. Images are
// resolved through an in-memory tier, a disk tier and the network, and
// concurrent requests for the same image share a single fetch.
//
// # Quick Start
//
//	c, err := swipe.NewClient(
//	    swipe.WithCacheDir("/var/cache/swipe"),
//	    swipe.WithStateDir("/var/lib/swipe"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	cur, _ := c.Current()
//	img, err := c.Image(ctx, cur.URL, 1024)
//	...
//	_, err = c.Decide(ctx, true) // favorite and move on
//
// # Caching
//
// The memory tier is bounded by decoded pixel cost and entry count. The disk
// tier stores re-encoded images under a byte budget and evicts the least
// recently touched files first. Each size hint is cached as its own variant.
//
// # Prefetching
//
// Whenever the buffer changes, the client warms every buffered image from
// head to tail, one at a time, cancelling the previous sweep. Prefetch
// failures are logged and otherwise ignored.
package swipe

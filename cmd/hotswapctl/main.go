// Command hotswapctl is the companion CLI to hotswapd: it pushes class
// bytes to a running daemon over the same JSON-RPC push-mode protocol the
// daemon's command source consumes, and queries whether a daemon is
// reachable.
//
// Connects outbound over a unix socket using the same jsonrpc2
// NewStream/NewConn construction the daemon's command source uses for
// its inbound connections.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/flywheeldev/hotswap/pkg/watch"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socketPath string

	root := &cobra.Command{
		Use:   "hotswapctl",
		Short: "Push class bytes to, and query, a running hotswapd",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/hotswapd.sock", "hotswapd's unix socket")

	root.AddCommand(newPushCmd(&socketPath), newStatusCmd(&socketPath))
	return root
}

func newPushCmd(socketPath *string) *cobra.Command {
	var (
		loader string
		class  string
		file   string
		batch  []string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push new class bytes for a loader, as one push or an ordered batch",
		Long: "Push new class bytes for a loader.\n\n" +
			"A single push uses --class/--file. An ordered batch uses repeated\n" +
			"--push class=path entries; everything pushed in one invocation is\n" +
			"sent over one connection and closed with a commit marker, so the\n" +
			"daemon's scheduler coalesces the whole run into one unit instead of\n" +
			"waiting out its debounce window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := resolvePushItems(class, file, batch)
			if err != nil {
				return err
			}

			conn, err := net.DialTimeout("unix", *socketPath, 5*time.Second)
			if err != nil {
				return fmt.Errorf("hotswapctl: connecting to %s: %w", *socketPath, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			sess := watch.NewPushSession(conn)
			defer sess.Close()

			for _, item := range items {
				bytes, err := os.ReadFile(item.file)
				if err != nil {
					return fmt.Errorf("hotswapctl: reading %s: %w", item.file, err)
				}

				result, err := sess.Push(ctx, watch.PushClassParams{
					Loader: loader,
					Class:  item.class,
					Bytes:  bytes,
					Source: item.file,
				})
				if err != nil {
					return fmt.Errorf("hotswapctl: push %s: %w", item.class, err)
				}
				if result.Status != watch.StatusOK {
					return fmt.Errorf("hotswapctl: push %s %s: %s", item.class, result.Status, result.ErrorKind)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%d bytes) to loader %s\n", item.class, len(bytes), loader)
			}

			if _, err := sess.Commit(ctx); err != nil {
				return fmt.Errorf("hotswapctl: commit: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&loader, "loader", "default", "loader name to push into")
	cmd.Flags().StringVar(&class, "class", "", "dotted class name for a single push")
	cmd.Flags().StringVar(&file, "file", "", "path to the new class source for a single push")
	cmd.Flags().StringArrayVar(&batch, "push", nil, "class=path entry; repeatable to push an ordered batch")

	return cmd
}

type pushItem struct {
	class string
	file  string
}

// resolvePushItems merges the singular --class/--file flags with any
// --push class=path entries into one ordered list. At least one of the
// two styles must be supplied.
func resolvePushItems(class, file string, batch []string) ([]pushItem, error) {
	var items []pushItem
	if class != "" || file != "" {
		if class == "" || file == "" {
			return nil, fmt.Errorf("hotswapctl: --class and --file must be given together")
		}
		items = append(items, pushItem{class: class, file: file})
	}

	for _, entry := range batch {
		c, f, ok := strings.Cut(entry, "=")
		if !ok || c == "" || f == "" {
			return nil, fmt.Errorf("hotswapctl: --push entry %q must be class=path", entry)
		}
		items = append(items, pushItem{class: c, file: f})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("hotswapctl: nothing to push, supply --class/--file or --push")
	}
	return items, nil
}

func newStatusCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether a hotswapd is listening on the socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.DialTimeout("unix", *socketPath, 2*time.Second)
			if err != nil {
				return fmt.Errorf("hotswapctl: %s is unreachable: %w", *socketPath, err)
			}
			conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "hotswapd is listening on %s\n", *socketPath)
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lettabot/internal/media"
)

func compressCmd() *cobra.Command {
	var (
		limit      int64
		lastResort bool
	)
	cmd := &cobra.Command{
		Use:   "compress <input> [output]",
		Short: "Shrink an image below a byte limit the way the relay does",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			return runCompress(cmd.Context(), args[0], out, limit, lastResort)
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 5*1024*1024, "target size in bytes")
	cmd.Flags().BoolVar(&lastResort, "last-resort", false, "use the fixed last-resort settings")
	return cmd
}

func runCompress(ctx context.Context, in, out string, limit int64, lastResort bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}

	c := media.NewCompressor()
	var res *media.Result
	if lastResort {
		res, err = c.LastResort(ctx, data, limit)
	} else {
		res, err = c.CompressToLimit(ctx, data, limit)
	}
	if err != nil {
		return err
	}

	if out == "" {
		base := strings.TrimSuffix(in, filepath.Ext(in))
		out = base + ".min" + media.ExtensionFor(res.MediaType)
	}
	if err := os.WriteFile(out, res.Data, 0644); err != nil {
		return err
	}

	fmt.Printf("%s: %d → %d bytes (%s, width %d, quality %d, %d attempts)\n",
		out, len(data), len(res.Data), res.MediaType, res.Width, res.Quality, res.Attempts)
	return nil
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"animstore/internal/codec"
	"animstore/internal/config"
	"animstore/internal/fileutil"
	"animstore/internal/workspace"
)

// loadArchive opens a workspace and loads the archive named by arg.
func loadArchive(cmd *cobra.Command, ctx *commandContext, arg string) (*workspace.Workspace, func(), error) {
	source, err := config.ExpandPath(arg)
	if err != nil {
		return nil, nil, err
	}
	ws, closeFn, err := ctx.openWorkspace()
	if err != nil {
		return nil, nil, err
	}
	result, err := ws.Load(cmd.Context(), source)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	printLoadProblems(cmd.ErrOrStderr(), result)
	return ws, closeFn, nil
}

func newSampleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sample <archive.zip> <object> <property> <time>...",
		Short: "Sample a track at one or more times",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			times := make([]float64, 0, len(args)-3)
			for _, raw := range args[3:] {
				t, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return fmt.Errorf("invalid time %q: %w", raw, err)
				}
				times = append(times, t)
			}

			ws, closeFn, err := loadArchive(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			tr, ok := ws.Set().Track(args[1], args[2])
			if !ok {
				return fmt.Errorf("no track %s.%s in %s", args[1], args[2], args[0])
			}
			rows := make([][]string, 0, len(times))
			for _, t := range times {
				v, ok := tr.Sample(t)
				if !ok {
					return fmt.Errorf("track %s.%s has no keyframes", args[1], args[2])
				}
				rows = append(rows, []string{
					formatSeconds(t),
					strconv.FormatFloat(v[0], 'g', 6, 64),
					strconv.FormatFloat(v[1], 'g', 6, 64),
					strconv.FormatFloat(v[2], 'g', 6, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "X", "Y", "Z"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newPrecomputeCommand(ctx *commandContext) *cobra.Command {
	var frame int
	var object string
	var property string

	cmd := &cobra.Command{
		Use:   "precompute <archive.zip>",
		Short: "Build the dense frame cache for an archive and report its size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeFn, err := loadArchive(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			start := time.Now()
			if _, err := ws.Precompute(cmd.Context()); err != nil {
				return err
			}
			elapsed := time.Since(start)

			cache := ws.Cache()
			tracks := ws.Set().Len()
			bufferBytes := int64(cache.TotalFrames()) * 3 * 8 * int64(tracks)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Frames:   %d at %d fps\n", cache.TotalFrames(), cache.FrameRate())
			fmt.Fprintf(out, "Tracks:   %d\n", tracks)
			fmt.Fprintf(out, "Memory:   %s\n", formatBytes(bufferBytes))
			fmt.Fprintf(out, "Elapsed:  %s\n", elapsed.Round(time.Microsecond))

			if object == "" && property == "" {
				return nil
			}
			v, ok := cache.Frame(object, property, frame)
			if !ok {
				return fmt.Errorf("frame %d of %s.%s is not in the cache", frame, object, property)
			}
			fmt.Fprintf(out, "Frame %d of %s.%s: %g %g %g\n", frame, object, property, v[0], v[1], v[2])
			return nil
		},
	}

	cmd.Flags().IntVar(&frame, "frame", 0, "Frame index to print")
	cmd.Flags().StringVar(&object, "object", "", "Object id of the track to print")
	cmd.Flags().StringVar(&property, "property", "", "Property of the track to print")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var compressed bool
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <archive.zip>",
		Short: "Export the animation track document of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}

			ws, closeFn, err := loadArchive(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			var payload any = ws.Set().ToDocument()
			if compressed {
				cfg, _ := ctx.ensureConfig()
				c := codec.New(codec.WithPrecision(cfg.Codec.TimeDecimals, cfg.Codec.ValueDecimals))
				payload = c.Compress(ws.Set().ToDocument())
			}

			encode := encodeJSON
			if format == "yaml" {
				encode = encodeYAML
			}
			if outputPath == "" {
				return encode(cmd.OutOrStdout(), payload)
			}
			target, err := config.ExpandPath(outputPath)
			if err != nil {
				return err
			}
			err = fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
				return encode(w, payload)
			})
			if err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tracks to %s\n", ws.Set().Len(), target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().BoolVar(&compressed, "compressed", false, "Export the compressed envelope instead of the long form")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

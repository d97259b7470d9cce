package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"animstore/internal/config"
	"animstore/internal/fileutil"
	"animstore/internal/keyframe"
	"animstore/internal/project"
	"animstore/internal/workspace"
)

func newPackCommand(ctx *commandContext) *cobra.Command {
	var backup bool

	cmd := &cobra.Command{
		Use:   "pack <project.json> <archive.zip>",
		Short: "Pack a JSON project document into an archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			target, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}

			f, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("open project: %w", err)
			}
			doc, err := project.Decode(f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}

			ws, closeFn, err := ctx.openWorkspace(workspace.WithBackup(backup))
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			problems, err := ws.Replace(doc)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				fmt.Fprintf(out, "%d track problem(s) in %s:\n", len(problems), source)
				printTrackProblems(out, problems)
			}

			result, err := ws.Save(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Packed %s to %s (%s, %d side files, %d tracks, %d keyframes)\n",
				source, result.Path, formatBytes(result.Bytes), result.SideFiles, result.Tracks, result.Keyframes)
			if result.Backup != "" {
				fmt.Fprintf(out, "Previous archive kept at %s\n", result.Backup)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&backup, "backup", false, "Keep a verified copy of an existing archive as <archive>.bak")
	return cmd
}

func newUnpackCommand(ctx *commandContext) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "unpack <archive.zip> <project.json>",
		Short: "Unpack an archive into a single JSON project document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			target, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}

			ws, closeFn, err := ctx.openWorkspace()
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := ws.Load(cmd.Context(), source)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printLoadProblems(out, result)
			if strict && result.Problems() > 0 {
				return fmt.Errorf("unpack %s: %d unresolved problem(s)", source, result.Problems())
			}

			doc := ws.Document().Clone()
			if ws.Set().Len() > 0 {
				if err := doc.SetAnimation(ws.Set(), nil); err != nil {
					return err
				}
			}
			err = fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
				return encodeJSON(w, doc)
			})
			if err != nil {
				return fmt.Errorf("write project: %w", err)
			}
			fmt.Fprintf(out, "Unpacked %s to %s (%d side files merged)\n", source, target, len(result.Report.Merged))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any reference, side file, or track could not be reconciled")
	return cmd
}

type trackSummary struct {
	Object         string   `json:"object"`
	Property       string   `json:"property"`
	Keyframes      int      `json:"keyframes"`
	Start          float64  `json:"start"`
	End            float64  `json:"end"`
	Interpolations []string `json:"interpolations"`
}

type inspectReport struct {
	Archive   string         `json:"archive"`
	Bytes     int64          `json:"bytes"`
	MaxTime   float64        `json:"maxTime"`
	FrameRate int            `json:"frameRate"`
	SideFiles []string       `json:"sideFiles"`
	Tracks    []trackSummary `json:"tracks"`
	Problems  []string       `json:"problems,omitempty"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <archive.zip>",
		Short: "Show the tracks, side files, and problems of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			ws, closeFn, err := ctx.openWorkspace()
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := ws.Load(cmd.Context(), source)
			if err != nil {
				return err
			}
			report := buildInspectReport(ws, result)
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			renderInspect(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildInspectReport(ws *workspace.Workspace, result *workspace.LoadResult) inspectReport {
	set := ws.Set()
	report := inspectReport{
		Archive:   result.Path,
		Bytes:     result.Bytes,
		MaxTime:   set.MaxTime(),
		FrameRate: set.FrameRate(),
		SideFiles: append([]string{}, result.Report.Merged...),
		Tracks:    make([]trackSummary, 0, set.Len()),
	}
	sort.Strings(report.SideFiles)

	for _, key := range set.Keys() {
		tr, _ := set.Track(key.ObjectID, key.Property)
		summary := trackSummary{Object: key.ObjectID, Property: key.Property, Keyframes: tr.Len()}
		summary.Start, summary.End, _ = tr.Span()
		seen := map[keyframe.Interpolation]bool{}
		for _, k := range tr.Keyframes() {
			if !seen[k.Interpolation] {
				seen[k.Interpolation] = true
				summary.Interpolations = append(summary.Interpolations, k.Interpolation.String())
			}
		}
		report.Tracks = append(report.Tracks, summary)
	}

	for _, ref := range result.Report.UnmatchedReferences {
		report.Problems = append(report.Problems, ref.Error())
	}
	for _, name := range result.Report.UnmatchedFiles {
		report.Problems = append(report.Problems, "unreferenced side file "+name)
	}
	for _, problem := range result.TrackProblems {
		report.Problems = append(report.Problems, problem.Error())
	}
	return report
}

func renderInspect(out io.Writer, report inspectReport) {
	fmt.Fprintf(out, "Archive:    %s (%s)\n", report.Archive, formatBytes(report.Bytes))
	fmt.Fprintf(out, "Duration:   %s at %d fps\n", formatSeconds(report.MaxTime), report.FrameRate)
	fmt.Fprintf(out, "Side files: %d\n", len(report.SideFiles))
	for _, name := range report.SideFiles {
		fmt.Fprintf(out, "  - %s\n", name)
	}

	if len(report.Tracks) == 0 {
		fmt.Fprintln(out, "No animation tracks")
	} else {
		rows := make([][]string, 0, len(report.Tracks))
		for _, tr := range report.Tracks {
			labels := make([]string, 0, len(tr.Interpolations))
			for _, name := range tr.Interpolations {
				labels = append(labels, title(name))
			}
			rows = append(rows, []string{
				tr.Object,
				tr.Property,
				strconv.Itoa(tr.Keyframes),
				formatSeconds(tr.Start),
				formatSeconds(tr.End),
				strings.Join(labels, ", "),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Object", "Property", "Keys", "Start", "End", "Interpolation"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		))
	}

	if len(report.Problems) > 0 {
		fmt.Fprintf(out, "Problems (%d):\n", len(report.Problems))
		for _, p := range report.Problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
}

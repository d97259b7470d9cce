package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"animstore/internal/packager"
	"animstore/internal/trackset"
	"animstore/internal/workspace"
)

var titleCaser = cases.Title(language.English)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	return encodeJSON(cmd.OutOrStdout(), v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64) + "s"
}

func title(s string) string {
	return titleCaser.String(s)
}

// printLoadProblems lists every unreconciled reference, file, or track.
func printLoadProblems(out io.Writer, result *workspace.LoadResult) {
	if result == nil || result.Problems() == 0 {
		return
	}
	fmt.Fprintf(out, "%d problem(s) while loading %s:\n", result.Problems(), result.Path)
	if result.Report != nil {
		for _, ref := range result.Report.UnmatchedReferences {
			fmt.Fprintf(out, "  - %v\n", ref)
		}
		for _, name := range result.Report.UnmatchedFiles {
			fmt.Fprintf(out, "  - side file %s: %v\n", name, packager.ErrUnmatchedFileReference)
		}
	}
	printTrackProblems(out, result.TrackProblems)
}

func printTrackProblems(out io.Writer, problems []trackset.TrackError) {
	for _, problem := range problems {
		fmt.Fprintf(out, "  - %v\n", problem)
	}
}

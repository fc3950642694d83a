// Command bms is a CLI for the memory service API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	author    string
	tags      []string
	alias     string
	position  int
	limit     int
	minScore  float64

	rootCmd = &cobra.Command{
		Use:   "bms",
		Short: "Content-addressed memory store client",
		Long: `bms talks to a running memory service. States are stored as
append-only delta chains under content-derived coordinates and can be
recalled at any historical position.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("BMS_SERVER", "http://localhost:8080"), "base URL of the memory service")

	storeCmd.Flags().StringVar(&author, "author", "", "author recorded on the delta")
	storeCmd.Flags().StringSliceVar(&tags, "tag", nil, "tags recorded on the delta (repeatable)")
	storeCmd.Flags().StringVar(&alias, "alias", "", "alias for a newly opened lineage")

	recallCmd.Flags().IntVar(&position, "position", 0, "position to recall (0 = head)")

	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of coordinates to list")

	searchCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of hits")
	searchCmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum cosine similarity")
	searchCmd.Flags().StringVar(&author, "author", "", "only match lineages last written by this author")

	rootCmd.AddCommand(storeCmd, recallCmd, verifyCmd, snapshotCmd, searchCmd, listCmd, statsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

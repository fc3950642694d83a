package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store [coordinate] <state.json | ->",
	Short: "Store a state; opens a new lineage when no coordinate is given",
	Long: `Store reads a JSON state from a file (or stdin with "-") and commits
it. With a coordinate argument the state is appended to that lineage;
without one a new lineage is opened at a content-derived coordinate.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordinate := ""
		statePath := args[0]
		if len(args) == 2 {
			coordinate = args[0]
			statePath = args[1]
		}

		state, err := readState(statePath)
		if err != nil {
			return err
		}

		body := map[string]interface{}{
			"state": json.RawMessage(state),
		}
		if coordinate != "" {
			body["coordinate"] = coordinate
		}
		if author != "" {
			body["author"] = author
		}
		if len(tags) > 0 {
			body["tags"] = tags
		}
		if alias != "" {
			body["alias"] = alias
		}

		data, err := newAPIClient(serverURL).post("/api/v1/memories", body)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <coordinate>",
	Short: "Recall the state of a lineage at a position (default: head)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if position > 0 {
			query.Set("position", strconv.Itoa(position))
		}
		data, err := newAPIClient(serverURL).get("/api/v1/memories/"+url.PathEscape(args[0]), query)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <coordinate>",
	Short: "Verify the hash chain of a lineage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newAPIClient(serverURL).get("/api/v1/memories/"+url.PathEscape(args[0])+"/verify", nil)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <coordinate>",
	Short: "Force a snapshot at the lineage head",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newAPIClient(serverURL).post("/api/v1/memories/"+url.PathEscape(args[0])+"/snapshot", struct{}{})
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories by semantic similarity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"query": args[0],
		}
		if limit > 0 {
			body["limit"] = limit
		}
		if minScore != 0 {
			body["min_score"] = minScore
		}
		if author != "" {
			body["author"] = author
		}
		data, err := newAPIClient(serverURL).post("/api/v1/search", body)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored coordinates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if limit > 0 {
			query.Set("limit", strconv.Itoa(limit))
		}
		data, err := newAPIClient(serverURL).get("/api/v1/memories", query)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newAPIClient(serverURL).get("/api/v1/stats", nil)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

// readState loads the JSON state from a file, or stdin for "-"
func readState(path string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("state is not valid JSON")
	}
	return raw, nil
}

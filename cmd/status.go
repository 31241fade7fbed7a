package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/livedesk/internal/console"
	"github.com/xiaot623/livedesk/internal/render"
)

var (
	statusAddr    string
	statusTail    int
	statusNotices bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of a running console",
	Long: `Fetch the state from a running "livedesk serve" and print connection
status, online visitors, the conversation list and the focused transcript.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := statusAddr
		if base == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			base = fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
		}
		base = strings.TrimRight(base, "/")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		var snap console.Snapshot
		if err := getJSON(ctx, base+"/v1/state", &snap); err != nil {
			return fmt.Errorf("failed to fetch state: %w", err)
		}

		out := cmd.OutOrStdout()
		render.Snapshot(out, snap, render.Options{Tail: statusTail})

		if statusNotices {
			var resp struct {
				Notices []console.Notice `json:"notices"`
			}
			if err := getJSON(ctx, base+"/v1/notices", &resp); err != nil {
				return fmt.Errorf("failed to fetch notices: %w", err)
			}
			fmt.Fprintln(out)
			render.Notices(out, resp.Notices)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Local API base URL (default from config)")
	statusCmd.Flags().IntVarP(&statusTail, "tail", "n", 10, "Transcript messages to show")
	statusCmd.Flags().BoolVar(&statusNotices, "notices", false, "Also print recent notices")
	rootCmd.AddCommand(statusCmd)
}

func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

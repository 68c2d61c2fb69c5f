package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/poller"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(pollCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Shows the state of the portal session (operators only).",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var status banner.SessionStatus
		err := call(cmd.Context(), client, request{
			method: http.MethodGet,
			path:   "/v1/session",
		}, &status)
		if err != nil {
			log.Fatal(err)
		}

		lastRefresh := "never"
		if !status.LastRefresh.IsZero() {
			lastRefresh = status.LastRefresh.Local().Format(time.DateTime)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Last refresh", lastRefresh},
			{"Stale", status.Stale},
			{"Last refresh ok", status.LastRefreshOk},
			{"Refreshes", status.Refreshes},
			{"Failed refreshes", status.FailedRefreshes},
			{"Cookies", status.Cookies},
			{"Synchronizer token", status.HasSynchronizerToken},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Forces a portal session refresh (operators only).",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var res struct {
			Refreshed bool `json:"refreshed"`
		}
		err := call(cmd.Context(), client, request{
			method: http.MethodPost,
			path:   "/v1/session/refresh",
		}, &res)
		if err != nil {
			log.Fatal(err)
		}
		if !res.Refreshed {
			fmt.Println("refresh failed, check the daemon logs")
			os.Exit(1)
		}
		fmt.Println("session refreshed")
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Runs a poll pass immediately (operators only).",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var report poller.TickReport
		err := call(cmd.Context(), client, request{
			method: http.MethodPost,
			path:   "/v1/poll",
		}, &report)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Checked", "Found", "Not found", "Failed", "Notified", "Notify failed", "Duration"})
		t.AppendRow(table.Row{
			report.Checked,
			report.Found,
			report.NotFound,
			report.Failed,
			report.Notified,
			report.NotifyFailed,
			(time.Duration(report.Duration) * time.Millisecond).String(),
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
		if report.PersistFailed {
			fmt.Println("warning: state could not be saved after the pass")
		}
	},
}

package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/seatwatch"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	watchesCmd.AddCommand(watchesListCmd)
	watchesCmd.AddCommand(watchesAddCmd)
	watchesCmd.AddCommand(watchesRemoveCmd)
	watchesCmd.AddCommand(watchesUnsubscribeCmd)
	rootCmd.AddCommand(watchesCmd)
	rootCmd.AddCommand(setDestinationCmd)
}

func tenantPath(tenant string, parts ...string) string {
	_, err := strconv.ParseInt(tenant, 10, 64)
	if err != nil {
		log.Fatalf("tenant must be an integer id, got %q", tenant)
	}
	segments := []string{"/v1/tenants", url.PathEscape(tenant)}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func formatSeats(seats *int) string {
	if seats == nil {
		return "-"
	}
	return strconv.Itoa(*seats)
}

func renderStatus(w io.Writer, status seatwatch.TenantStatus) {
	destination := status.Destination
	if destination == "" {
		destination = "(none)"
	}
	fmt.Fprintf(w, "tenant %d, destination %s\n", status.Tenant, destination)
	renderWatches(w, status.Watches)
}

func renderWatches(w io.Writer, entries []registry.WatchEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Section", "Course", "Term", "Last seats", "Subscribers"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Section,
			fmt.Sprintf("%s %s", entry.Course.Subject, entry.Course.CourseNumber),
			fmt.Sprintf("%s %d", entry.Course.Term, entry.Course.Year),
			formatSeats(entry.LastSeats),
			strings.Join(entry.Subscribers, ", "),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var watchesCmd = &cobra.Command{
	Use:   "watches",
	Short: "Manage the sections a tenant is watching.",
}

var watchesListCmd = &cobra.Command{
	Use:   "list <tenant>",
	Short: "Lists the watched sections of a tenant.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var status seatwatch.TenantStatus
		err := call(cmd.Context(), client, request{
			method: http.MethodGet,
			path:   tenantPath(args[0], "watches"),
		}, &status)
		if err != nil {
			log.Fatal(err)
		}
		renderStatus(os.Stdout, status)
	},
}

var watchesAddCmd = &cobra.Command{
	Use:   "add <tenant> <section> <subject> <course number> <year> <term>",
	Short: "Subscribes the actor to a section, the watch is created if it does not exist.",
	Args:  cobra.ExactArgs(6),
	Run: func(cmd *cobra.Command, args []string) {
		year, err := strconv.Atoi(args[4])
		if err != nil {
			log.Fatalf("year must be a number, got %q", args[4])
		}

		var entry registry.WatchEntry
		err = call(cmd.Context(), client, request{
			method: http.MethodPost,
			path:   tenantPath(args[0], "watches"),
			body: map[string]any{
				"section":       args[1],
				"subject":       args[2],
				"course_number": args[3],
				"year":          year,
				"term":          args[5],
			},
		}, &entry)
		if err != nil {
			log.Fatal(err)
		}
		renderWatches(os.Stdout, []registry.WatchEntry{entry})
	},
}

var watchesRemoveCmd = &cobra.Command{
	Use:   "remove <tenant> <section>",
	Short: "Stops watching a section for every subscriber.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var entry registry.WatchEntry
		err := call(cmd.Context(), client, request{
			method: http.MethodDelete,
			path:   tenantPath(args[0], "watches", args[1]),
		}, &entry)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("removed %s (%s)\n", entry.Section, entry.Course)
	},
}

var watchesUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <tenant> <section> [subscriber]",
	Short: "Removes a subscriber from a section, defaults to the actor.",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		subscriber := actorId
		if len(args) == 3 {
			subscriber = args[2]
		}

		var entry registry.WatchEntry
		err := call(cmd.Context(), client, request{
			method: http.MethodDelete,
			path:   tenantPath(args[0], "watches", args[1], "subscribers", subscriber),
		}, &entry)
		if err != nil {
			log.Fatal(err)
		}
		renderWatches(os.Stdout, []registry.WatchEntry{entry})
	},
}

var setDestinationCmd = &cobra.Command{
	Use:   "set-destination <tenant> <destination>",
	Short: "Sets where seat notifications for a tenant are delivered.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var status seatwatch.TenantStatus
		err := call(cmd.Context(), client, request{
			method: http.MethodPut,
			path:   tenantPath(args[0], "destination"),
			body:   map[string]string{"destination": args[1]},
		}, &status)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("notifications for tenant %d go to %s\n", status.Tenant, status.Destination)
	},
}

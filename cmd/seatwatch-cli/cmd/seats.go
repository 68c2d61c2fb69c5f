package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"seatwatch-backend/internal/banner"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(seatsCmd)
	rootCmd.AddCommand(sectionsCmd)
}

func courseQuery(args []string) map[string]string {
	return map[string]string{
		"subject": args[0],
		"course":  args[1],
		"year":    args[2],
		"term":    args[3],
	}
}

func formatFlexInt(n banner.FlexInt) string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprint(n.Value)
}

var seatsCmd = &cobra.Command{
	Use:   "seats <subject> <course number> <year> <term> <section>",
	Short: "Looks up the open seats of one section.",
	Args:  cobra.ExactArgs(5),
	Run: func(cmd *cobra.Command, args []string) {
		query := courseQuery(args)
		query["section"] = args[4]

		var res struct {
			Section string `json:"section"`
			Status  string `json:"status"`
			Seats   *int   `json:"seats"`
		}
		err := call(cmd.Context(), client, request{
			method: http.MethodGet,
			path:   "/v1/seats",
			query:  query,
		}, &res)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("section %s: %s open seat(s)\n", res.Section, formatSeats(res.Seats))
	},
}

var sectionsCmd = &cobra.Command{
	Use:   "sections <subject> <course number> <year> <term>",
	Short: "Lists every section of a course with its enrollment.",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		var records []banner.SearchRecord
		err := call(cmd.Context(), client, request{
			method: http.MethodGet,
			path:   "/v1/sections",
			query:  courseQuery(args),
		}, &records)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"CRN", "Seq", "Title", "Enrolled", "Capacity", "Seats", "Waitlist"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.CourseReferenceNumber,
				r.SequenceNumber,
				r.CourseTitle,
				formatFlexInt(r.Enrollment),
				formatFlexInt(r.MaximumEnrollment),
				formatFlexInt(r.SeatsAvailable),
				formatFlexInt(r.WaitAvailable),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

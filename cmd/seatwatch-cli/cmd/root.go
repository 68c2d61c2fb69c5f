package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"seatwatch-backend/internal/api"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	BaseUrl     string
	AccessToken string
)

var (
	actorId    string
	actorRoles []string
)

var client *resty.Client

var rootCmd = &cobra.Command{
	Use:   "seatwatch-cli",
	Short: "seatwatch-cli drives a running seatwatch daemon through its command api.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client.SetHeader("X-Actor-Id", actorId)
		client.SetHeader("X-Actor-Roles", strings.Join(actorRoles, ","))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actorId, "actor", "cli", "actor id the commands are issued as")
	rootCmd.PersistentFlags().StringSliceVar(&actorRoles, "roles", nil, "tenant roles of the actor (owner, admin)")
}

func newClient(baseUrl, token string) *resty.Client {
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(baseUrl, "/"))
	c.SetTimeout(2 * time.Minute)
	if token != "" {
		c.SetAuthToken(token)
	}
	return c
}

func Execute() {
	client = newClient(BaseUrl, AccessToken)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *api.ErrorBody  `json:"error"`
}

type request struct {
	method string
	path   string
	query  map[string]string
	body   any
}

// call sends req and decodes the data field of the response envelope
// into out, out may be nil.
func call(ctx context.Context, c *resty.Client, req request, out any) error {
	r := c.R().SetContext(ctx)
	if req.query != nil {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}
	res, err := r.Execute(req.method, req.path)
	if err != nil {
		return err
	}

	var env envelope
	err = json.Unmarshal(res.Body(), &env)
	if err != nil {
		return fmt.Errorf("%s %s: unexpected response (%s)", req.method, req.path, res.Status())
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	if res.IsError() {
		return fmt.Errorf("%s %s: %s", req.method, req.path, res.Status())
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

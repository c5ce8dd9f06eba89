package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func (c *cli) releaseCmd() *cobra.Command {
	var ticket string
	var force bool
	cmd := &cobra.Command{
		Use:   "release PROJECT ENVIRONMENT APP=VERSION...",
		Short: "Record versions of a project and its components to an environment",
		Long: `Record versions of a project and its components to an environment.

Entries are recorded in the order given. Recording stops at the first
entry the server rejects; earlier entries stay recorded.`,
		Example: `  deploydash release dd test dd=1.0.0 dd-fe=1.0.2 --ticket jira://DD-42
  deploydash release dd test dd-fe=1.0.1 --force`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := parseTargets(args[2:])
			if err != nil {
				return err
			}
			input := apiclient.ReleaseInput{
				Project:     args[0],
				Environment: args[1],
				Versions:    versions,
				Ticket:      ticket,
				Force:       force,
			}
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				result, err := api.Release(ctx, input)
				if err != nil {
					var apiErr apiclient.APIError
					if errors.As(err, &apiErr) && len(apiErr.Committed) > 0 {
						fmt.Fprintln(c.out, "recorded before the failure:")
						if terr := deploymentTable(c.out, apiErr.Committed); terr != nil {
							return terr
						}
					}
					return err
				}
				fmt.Fprintf(c.out, "release %s\n", result.ReleaseID)
				return deploymentTable(c.out, result.Deployments)
			})
		},
	}
	cmd.Flags().StringVarP(&ticket, "ticket", "t", "", "ticket reference, e.g. jira://DD-42")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "record redeploys and rollbacks")
	return cmd
}

func deploymentTable(w io.Writer, deployments []apiclient.Deployment) error {
	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		rows = append(rows, []string{d.AppKey, d.Version, d.Environment, stamp(d.DeployedAt), orDash(d.Ticket)})
	}
	return table(w, []string{"APP", "VERSION", "ENVIRONMENT", "DEPLOYED", "TICKET"}, rows)
}

func parseTargets(args []string) ([]apiclient.AppVersion, error) {
	out := make([]apiclient.AppVersion, 0, len(args))
	for _, arg := range args {
		key, ver, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		ver = strings.TrimSpace(ver)
		if !ok || key == "" || ver == "" {
			return nil, fmt.Errorf("invalid entry %q: expected APP=VERSION", arg)
		}
		out = append(out, apiclient.AppVersion{AppKey: key, Version: ver})
	}
	return out, nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func (c *cli) deploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "Inspect the deployment ledger",
	}
	cmd.AddCommand(c.deploymentsListCmd(), c.deploymentsDeleteCmd())
	return cmd
}

func (c *cli) deploymentsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				deployments, err := api.ListDeployments(ctx)
				if err != nil {
					return err
				}
				if limit > 0 && limit < len(deployments) {
					deployments = deployments[:limit]
				}
				rows := make([][]string, 0, len(deployments))
				for _, d := range deployments {
					rows = append(rows, []string{
						d.AppKey, d.Version, d.Environment, stamp(d.DeployedAt), orDash(d.Ticket), orDash(d.ReleaseID),
					})
				}
				return table(c.out, []string{"APP", "VERSION", "ENVIRONMENT", "DEPLOYED", "TICKET", "RELEASE"}, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of deployments to show")
	return cmd
}

func (c *cli) deploymentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete APP ENVIRONMENT VERSION",
		Short: "Remove the record of a version deployed to an environment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				if err := api.DeleteDeployment(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "deployment deleted: %s %s in %s\n", args[0], args[2], args[1])
				return nil
			})
		},
	}
}

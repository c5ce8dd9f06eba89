package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func (c *cli) versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Describe or remove versions of an app",
	}
	cmd.AddCommand(c.versionsUpdateCmd(), c.versionsDeleteCmd())
	return cmd
}

func (c *cli) versionsUpdateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "update APP VERSION",
		Short: "Set the description of a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				if err := api.UpdateVersion(ctx, args[0], args[1], description); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "version updated: %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func (c *cli) versionsDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete APP VERSION",
		Short: "Remove a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				if err := api.DeleteVersion(ctx, args[0], args[1], force); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "version deleted: %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "also remove the deployments of the version")
	return cmd
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func (c *cli) envsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "envs",
		Aliases: []string{"environments"},
		Short:   "Manage the environments of a project",
	}
	cmd.AddCommand(c.envsListCmd(), c.envsCreateCmd(), c.envsRenameCmd(), c.envsDeleteCmd())
	return cmd
}

func (c *cli) envsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list APP",
		Short: "List the environments shared by the project of APP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				envs, err := api.ListEnvironments(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(envs))
				for _, env := range envs {
					rows = append(rows, []string{env.Name, stamp(env.CreatedAt)})
				}
				return table(c.out, []string{"NAME", "CREATED"}, rows)
			})
		},
	}
}

func (c *cli) envsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create PROJECT NAME",
		Short: "Add an environment to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				env, err := api.CreateEnvironment(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "environment created: %s/%s\n", args[0], env.Name)
				return nil
			})
		},
	}
}

func (c *cli) envsRenameCmd() *cobra.Command {
	var moveTo string
	cmd := &cobra.Command{
		Use:   "rename PROJECT NAME NEW_NAME",
		Short: "Rename an environment, optionally moving it to another project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				input := apiclient.EnvironmentInput{Name: args[2], AppKey: moveTo}
				env, err := api.UpdateEnvironment(ctx, args[0], args[1], input)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "environment updated: %s\n", env.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&moveTo, "move-to", "", "key of the project to move the environment to")
	return cmd
}

func (c *cli) envsDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete PROJECT NAME",
		Short: "Remove an environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				if err := api.DeleteEnvironment(ctx, args[0], args[1], force); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "environment deleted: %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "also remove the deployments recorded to it")
	return cmd
}

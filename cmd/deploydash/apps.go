package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func (c *cli) appsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage projects and their components",
	}
	cmd.AddCommand(
		c.appsListCmd(),
		c.appsOverviewCmd(),
		c.appsShowCmd(),
		c.appsCreateCmd(),
		c.appsUpdateCmd(),
		c.appsDeleteCmd(),
	)
	return cmd
}

func (c *cli) appsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				apps, err := api.ListApps(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(apps))
				for _, app := range apps {
					rows = append(rows, []string{
						app.Key,
						app.Name,
						fmt.Sprint(len(app.Components)),
						fmt.Sprint(len(app.Environments)),
					})
				}
				return table(c.out, []string{"KEY", "NAME", "COMPONENTS", "ENVIRONMENTS"}, rows)
			})
		},
	}
}

func (c *cli) appsOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show the latest release of every live project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				overviews, err := api.Overview(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(overviews))
				for _, o := range overviews {
					row := []string{o.Key, "-", "-", "-", "-"}
					if o.Latest != nil {
						row[1] = o.Latest.Environment
						row[2] = o.Latest.AppKey + "@" + o.Latest.Version
						row[3] = stamp(o.Latest.DeployedAt)
						row[4] = orDash(o.Latest.Ticket)
					}
					rows = append(rows, row)
				}
				return table(c.out, []string{"PROJECT", "ENVIRONMENT", "LATEST", "DEPLOYED", "TICKET"}, rows)
			})
		},
	}
}

func (c *cli) appsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Print the detail of an app as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				app, err := api.GetApp(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c.out, app)
			})
		},
	}
}

func (c *cli) appsCreateCmd() *cobra.Command {
	var name, parent string
	cmd := &cobra.Command{
		Use:   "create KEY",
		Short: "Register a project, or a component with --parent",
		Example: `  deploydash apps create dd --name "Deployment Dashboard"
  deploydash apps create dd-fe --name Frontend --parent dd`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				app, err := api.CreateApp(ctx, apiclient.AppInput{Key: args[0], Name: name, Parent: parent})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "app created: %s (%s)\n", app.Key, app.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the key)")
	cmd.Flags().StringVar(&parent, "parent", "", "key of the parent app")
	return cmd
}

func (c *cli) appsUpdateCmd() *cobra.Command {
	var key, name, parent string
	cmd := &cobra.Command{
		Use:   "update KEY",
		Short: "Rename, rekey or move an app",
		Long: `Rename, rekey or move an app.

Omitting --parent detaches the app and turns it into a project.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("key") && !cmd.Flags().Changed("name") && !cmd.Flags().Changed("parent") {
				return errors.New("nothing to update: pass --key, --name or --parent")
			}
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				app, err := api.UpdateApp(ctx, args[0], apiclient.AppInput{Key: key, Name: name, Parent: parent})
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "app updated: %s (%s)\n", app.Key, app.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "new key")
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&parent, "parent", "", "key of the new parent app")
	return cmd
}

func (c *cli) appsDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Archive an app, or delete it with its components using --force",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, api *apiclient.Client) error {
				if err := api.DeleteApp(ctx, args[0], force); err != nil {
					return err
				}
				if force {
					fmt.Fprintf(c.out, "app deleted: %s\n", args[0])
				} else {
					fmt.Fprintf(c.out, "app archived: %s\n", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete instead of archiving; refused while deployments exist")
	return cmd
}

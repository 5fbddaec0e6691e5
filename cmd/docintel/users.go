package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/storage"
)

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email string
	var admin bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			u := &storage.User{Username: args[0], Email: email, Role: storage.RoleUser}
			if admin {
				u.Role = storage.RoleAdmin
			}
			if err := a.Store.CreateUser(cmd.Context(), u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			success.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", u.Role, u.Username)
			fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", u.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&email, "email", "", "contact address")
	add.Flags().BoolVar(&admin, "admin", false, "allow reading every document")

	cmd.AddCommand(add)
	return cmd
}

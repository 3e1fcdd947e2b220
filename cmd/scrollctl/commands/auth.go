package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayush/scrollable/internal/models"
)

func newRegisterCommand(s *session) *cobra.Command {
	var req models.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := s.client()
			res, err := c.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := s.saveToken(res.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", res.User.Username, res.User.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password")
	cmd.Flags().StringVar(&req.ProfilePicture, "picture", "", "profile picture URL")
	return cmd
}

func newLoginCommand(s *session) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := s.client()
			res, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := s.saveToken(res.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", res.User.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func newLogoutCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := s.client().Logout(cmd.Context())
			if cerr := s.clearToken(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newMeCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := s.client().Me(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", u.ID)
			fmt.Fprintf(out, "username: %s\n", u.Username)
			fmt.Fprintf(out, "email:    %s\n", u.Email)
			if u.ProfilePicture != "" {
				fmt.Fprintf(out, "picture:  %s\n", u.ProfilePicture)
			}
			return nil
		},
	}
}

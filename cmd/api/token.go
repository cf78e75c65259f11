package main

import (
	"fmt"
	"strings"
	"time"

	"memoir-platform/internal/auth"
	"memoir-platform/internal/config"
	"memoir-platform/internal/rbac"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject  string
		role     string
		ttl      time.Duration
		operator bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service token for the internal API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q (want %s)", role, strings.Join(rbac.Roles, ", "))
			}
			m, err := auth.NewManager(config.LoadAuth())
			if err != nil {
				return err
			}
			var tok string
			if operator {
				tok, err = m.IssueAccess(time.Now(), subject, role)
			} else {
				tok, err = m.IssueService(time.Now(), subject, role, ttl)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "calling system, e.g. checkout")
	cmd.Flags().StringVar(&role, "role", rbac.RolePayments, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_SERVICE_TTL)")
	cmd.Flags().BoolVar(&operator, "operator", false, "mint a short-lived access token for a person (JWT_ACCESS_TTL)")
	cmd.MarkFlagsMutuallyExclusive("operator", "ttl")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

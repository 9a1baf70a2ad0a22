package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lalith-99/chatlog/internal/auth"
)

func runAdminToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadBase()
	if err != nil {
		return err
	}
	token, err := auth.GenerateToken(tokenSubject, cfg.AdminJWTSecret, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

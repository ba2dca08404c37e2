package main

import (
	"fmt"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user, signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if user == "" {
				return errors.New("--user is required")
			}

			token, err := issueToken(cmd, user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("user", "", "user ID placed in the sub claim")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func issueToken(cmd *cobra.Command, user string, ttl time.Duration) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	token, err := verifier.Generate(user, ttl)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return token, nil
}

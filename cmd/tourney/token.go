package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/database"
	"github.com/alex65536/tourney/internal/util/style"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var (
	tokenCreateCmd = &cobra.Command{
		Use:   "create",
		Args:  cobra.ExactArgs(0),
		Short: "Issue a new API token",
	}
	tokenListCmd = &cobra.Command{
		Use:   "list",
		Args:  cobra.ExactArgs(0),
		Short: "List API tokens",
	}
	tokenRevokeCmd = &cobra.Command{
		Use:   "revoke token-id",
		Args:  cobra.ExactArgs(1),
		Short: "Revoke an API token",
	}
)

func withTokens(optsPath string, f func(ctx context.Context, mgr *apitoken.Manager) error) error {
	opts, err := loadOptions(optsPath, "", "")
	if err != nil {
		return err
	}
	log := newLogger(opts.Debug)
	db, err := database.New(log.With(slog.String("component", "db")), opts.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	mgr := apitoken.NewManager(log, db, opts.App.Tokens)
	defer mgr.Close()
	return f(context.Background(), mgr)
}

func init() {
	optsPath := tokenCmd.PersistentFlags().StringP(
		"options", "o", "",
		"options file (only the db section is used)")

	name := tokenCreateCmd.Flags().StringP(
		"name", "n", "",
		"token name, e.g. the bridge it belongs to")
	perms := tokenCreateCmd.Flags().StringP(
		"perm", "p", "view",
		"comma-separated permissions: view, manage, adjudicate, bridge, admin")
	if err := tokenCreateCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	tokenCreateCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		p, err := apitoken.ParsePerms(*perms)
		if err != nil {
			return fmt.Errorf("parse perms: %w", err)
		}
		return withTokens(*optsPath, func(ctx context.Context, mgr *apitoken.Manager) error {
			tok, err := mgr.Issue(ctx, *name, p)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%v token %v with perms %v.\n",
				style.WithSE("Issued", style.Bold, style.Green), tok.ID, tok.Perms.String())
			fmt.Fprintf(os.Stderr, "The value below is shown only once.\n")
			fmt.Println(tok.Value)
			return nil
		})
	}

	tokenListCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		return withTokens(*optsPath, func(ctx context.Context, mgr *apitoken.Manager) error {
			toks, err := mgr.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\n",
				style.WithS("ID", style.Bold),
				style.WithS("NAME", style.Bold),
				style.WithS("PERMS", style.Bold),
				style.WithS("CREATED", style.Bold),
			)
			for _, tok := range toks {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", tok.ID, tok.Name, tok.Perms.String(), tok.CreatedAt.String())
			}
			return w.Flush()
		})
	}

	tokenRevokeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withTokens(*optsPath, func(ctx context.Context, mgr *apitoken.Manager) error {
			return mgr.Revoke(ctx, args[0])
		})
	}

	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd)
}

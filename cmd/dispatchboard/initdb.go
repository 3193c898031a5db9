package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/devrev/dispatchboard/internal/config"
	"github.com/devrev/dispatchboard/internal/store"
	"github.com/spf13/cobra"
)

var printSchema bool

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the masters and requests tables if they do not exist",
	RunE:  initdb,
}

func init() {
	initdbCmd.Flags().BoolVar(&printSchema, "print", false, "print the schema instead of applying it")
	rootCmd.AddCommand(initdbCmd)
}

func initdb(cmd *cobra.Command, args []string) error {
	if printSchema {
		_, err := fmt.Fprint(cmd.OutOrStdout(), store.SchemaSQL())
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Database.Driver != config.DriverPostgres {
		return errors.New("initdb requires database.driver postgres")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout+cfg.Server.RequestTimeout)
	defer cancel()

	boardStore, err := store.NewPostgresBoardStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer boardStore.Close()

	return boardStore.EnsureSchema(ctx)
}

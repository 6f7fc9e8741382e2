package main

import (
	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movieweb/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		applied, err := st.Migrate(ctx, db.Migrations)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			cmd.Println("schema is up to date")
			return nil
		}
		for _, v := range applied {
			cmd.Printf("applied %s\n", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dev-Umb/wife-generate-game/internal/agent"
	"github.com/Dev-Umb/wife-generate-game/internal/config"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved stories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved stories, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := newStoreEnv(cmd.Context())
				if err != nil {
					return err
				}
				defer env.Close()

				infos, err := env.store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved stories.")
					return nil
				}
				for _, info := range infos {
					ended := ""
					if info.Ended {
						ended = "  ended"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s affection %4d  %3d msgs  %s%s\n",
						info.ID, info.PersonaName, info.Affection, info.Messages,
						info.UpdatedAt.Local().Format("2006-01-02 15:04"), ended)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved story",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := newStoreEnv(cmd.Context())
				if err != nil {
					return err
				}
				defer env.Close()

				if err := env.store.Delete(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, session.ErrNotFound) {
						return fmt.Errorf("no saved session %q", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate <file.json>",
			Short: "Import saves exported from the browser version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := newStoreEnv(cmd.Context())
				if err != nil {
					return err
				}
				defer env.Close()

				if _, err := os.Stat(args[0]); err != nil {
					return fmt.Errorf("legacy file: %w", err)
				}
				n, err := session.LoadLegacyAndMigrate(cmd.Context(), env.store, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s)\n", n)
				return nil
			},
		},
		newJournalCmd(),
	)
	return cmd
}

func newJournalCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "journal <id>",
		Short: "Show the turn journal of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			if cfg.JournalDir == "" {
				return errors.New("journals are disabled; set journal_dir in " + config.DefaultPath(cfgFile, "config.yaml"))
			}
			events, err := agent.ReadJournal(agent.JournalPath(cfg.JournalDir, args[0]), last)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), agent.FormatJournal(events, "Journal "+args[0]))
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 50, "show the last N events (0 = all)")
	return cmd
}

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/session"
	"github.com/noah-isme/judging-portal/internal/store"
)

func newKeyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "key <phrase>",
		GroupID: "sync",
		Short:   "Print the store key an access phrase maps to",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := store.DeriveKey(args[0])
			if key == "" {
				return errors.New("phrase has no letters or digits")
			}
			if a.asJSON {
				return a.printJSON(map[string]string{"phrase": args[0], "key": key})
			}
			a.printf("%s\n", key)
			return nil
		},
	}
}

func newHashCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "hash-password <password>",
		GroupID: "event",
		Short:   "Hash a password for the event file",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			hashed, err := session.HashSecret(args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", hashed)
			return nil
		},
	}
}

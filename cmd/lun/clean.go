package main

import (
	"os"

	"github.com/spf13/cobra"

	"lun/internal/cachestore"
	"lun/internal/logging"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "remove all cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := configPath
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = wd
		}
		logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.InfoLevel})
		store, err := cachestore.Open(root+"/.lun/cache", logger)
		if err != nil {
			return err
		}
		return store.Clear()
	},
}

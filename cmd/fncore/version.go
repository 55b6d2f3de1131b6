package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at release time; left as "dev" for local builds.
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fncore version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("fncore " + version)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func exportMetricsCmd() *cobra.Command {
	var addr string
	var format string

	cmd := &cobra.Command{
		Use:   "export-metrics",
		Short: "Fetch the metrics export from a running fncore serve instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := addr + "/export"
			if format != "" {
				url += "?format=" + format
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("get %s: %w", url, err)
			}
			defer resp.Body.Close()

			out, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of a running fncore serve instance")
	cmd.Flags().StringVar(&format, "format", "", "prometheus (default), openmetrics, or json")
	return cmd
}

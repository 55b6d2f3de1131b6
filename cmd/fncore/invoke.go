package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func invokeCmd() *cobra.Command {
	var (
		addr      string
		code      string
		codeFile  string
		timeoutMs int64
	)

	cmd := &cobra.Command{
		Use:   "invoke <function-id>",
		Short: "Invoke a function against a running fncore serve instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			functionID := args[0]

			source := code
			if codeFile != "" {
				data, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("read code file: %w", err)
				}
				source = string(data)
			}

			body, err := json.Marshal(map[string]any{
				"functionId": functionID,
				"code":       source,
				"timeoutMs":  timeoutMs,
			})
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 60 * time.Second}
			resp, err := client.Post(addr+"/execute", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("post /execute: %w", err)
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
	cmd.Flags().StringVar(&code, "code", "export default { fetch() { return { status: 200, body: 'ok' } } }", "function source to invoke")
	cmd.Flags().StringVar(&codeFile, "code-file", "", "path to a file containing the function source (overrides --code)")
	cmd.Flags().Int64Var(&timeoutMs, "timeout-ms", 0, "per-invocation timeout override in milliseconds")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/pkg/errors"
)

func newStreamCommand(rt *runtime) *cobra.Command {
	var (
		data   string
		async  bool
		single bool
	)

	cmd := &cobra.Command{
		Use:   "stream <path>",
		Short: "POST a JSON payload and print each streamed JSON value on its own line",
		Example: `  modelfarm stream /v1beta2/completion --data '{"model":"text-bison","parameters":{"prompts":["hi"]}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if data != "" {
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(data), &raw); err != nil {
					return errors.ErrConfiguration("--data is not valid JSON").WithCause(err)
				}
				payload = raw
			}

			client, identity, err := rt.client(cmd.Context())
			if err != nil {
				return err
			}
			defer identity.Close()

			out := cmd.OutOrStdout()
			if single {
				var value json.RawMessage
				if err := client.Post(cmd.Context(), args[0], payload, &value); err != nil {
					return err
				}
				return printValue(out, value)
			}
			if async {
				for r := range client.StreamAsync(cmd.Context(), args[0], payload) {
					if r.Err != nil {
						return r.Err
					}
					if err := printValue(out, r.Value); err != nil {
						return err
					}
				}
				return nil
			}
			for value, err := range client.Stream(cmd.Context(), args[0], payload) {
				if err != nil {
					return err
				}
				if err := printValue(out, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request payload")
	cmd.Flags().BoolVar(&async, "async", false, "decode in a background goroutine")
	cmd.Flags().BoolVar(&single, "no-stream", false, "expect a single JSON response")
	return cmd
}

func printValue(w io.Writer, value json.RawMessage) error {
	_, err := fmt.Fprintln(w, string(value))
	return err
}

// Package display renders command output: JSON for machines, pterm tables
// for people.
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// JSONEnv forces JSON output when set to a non-empty value.
const JSONEnv = "PWCMETA_JSON"

// ShouldOutputJSON reports whether cmd should print JSON: an explicit local
// --json flag wins, then the global --json flag, then JSONEnv.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv(JSONEnv) != ""
	}

	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("json")
		return v
	}

	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return os.Getenv(JSONEnv) != ""
}

// OutputJSON writes v to w using MarshalJSON.
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

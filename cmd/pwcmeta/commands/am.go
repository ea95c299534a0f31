package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/display"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Short("am", "Show and validate pwcmeta configuration"),
	Long: `am - Show and validate pwcmeta configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/pwcmeta/config.toml)
3. User config (~/.pwcmeta/am.toml)
4. Project config (./am.toml, searched upwards)
5. .env file in the working directory
6. Environment variables (PWCMETA_* prefix; GITHUB_TOKEN, GITLAB_TOKEN)

--config replaces steps 2-4 with a single file.

Examples:
  pwcmeta am show                   # Show current configuration
  pwcmeta am show --format json     # Show configuration in JSON format
  pwcmeta am get extract.workers    # Get specific config value
  pwcmeta am validate               # Check files for unknown keys and ranges`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. Provider tokens are masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., extract.workers, location.metadata)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Strictly decode every active configuration file and range-check the effective configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out, err := formatConfig(cfg.Redacted(), configFormat)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func formatConfig(cfg am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := display.MarshalJSON(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# pwcmeta configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# pwcmeta configuration\n" + string(data), nil

	default:
		return "", errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value, err := am.Get(key)
	if errors.IsNotFoundError(err) {
		return errors.WithHint(errors.Mark(err, errors.ErrInvalidRequest),
			"run 'pwcmeta am show' to list the available keys")
	}
	if err != nil {
		return err
	}
	if strings.HasSuffix(key, ".token") {
		if s, ok := value.(string); ok && s != "" {
			value = am.MaskToken(s)
		}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
	return err
}

// activeFiles returns the configuration files that exist.
func activeFiles() []string {
	var files []string
	for _, p := range am.ConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	var errs error
	for _, path := range activeFiles() {
		if err := am.ValidateFile(path); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if errs != nil {
		return errs
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(w, "  [DEFAULT]  built-in defaults")
	for _, p := range am.ConfigPaths() {
		state := "missing"
		if _, err := os.Stat(p); err == nil {
			state = "loaded"
		}
		fmt.Fprintf(w, "  [FILE]     %s (%s)\n", p, state)
	}
	if _, err := os.Stat(".env"); err == nil {
		fmt.Fprintln(w, "  [DOTENV]   .env (loaded)")
	}
	fmt.Fprintln(w, "  [ENV]      PWCMETA_* environment variables")

	var set []string
	for _, kv := range os.Environ() {
		name := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(name, "PWCMETA_") || name == "GITHUB_TOKEN" || name == "GITLAB_TOKEN" {
			set = append(set, name)
		}
	}
	if len(set) > 0 {
		fmt.Fprintf(w, "             set: %s\n", strings.Join(set, ", "))
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the settings file",
	Long: `Reads and writes ~/.lectern/config.toml (or $LECTERN_CONFIG_DIR/config.toml).
Keys use dotted names such as retrieval.confidence_threshold or llm.model.
LECTERN_* environment variables still take precedence over the file.`,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configStore == nil {
			return fmt.Errorf("config %w", errNotConfigured)
		}
		fmt.Fprintln(cmd.OutOrStdout(), configStore.Path())
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key set in the settings file",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set one setting",
	Long: `Sets key to value. Values that look like true/false, integers, floats or
[a, b] lists are stored with that type; anything else is a string.
The change is rolled back if the resulting settings are invalid.

Examples:
  lectern config set retrieval.confidence_threshold 0.4
  lectern config set index.backend pgvector
  lectern config set ingest.retry.embedding.backoff_ms "[200, 1000, 5000]"`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove one setting so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

func init() {
	configListCmd.Flags().BoolVar(&configJSON, "json", false, "output settings as JSON")
	configCmd.AddCommand(configPathCmd, configListCmd, configGetCmd, configSetCmd, configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}

// IsConfigCommand reports whether args select the config command or one of
// its subcommands.
func IsConfigCommand(args []string) bool {
	cmd, _, err := rootCmd.Find(args)
	if err != nil {
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return fmt.Errorf("config %w", errNotConfigured)
	}
	keys := configStore.Keys()

	if configJSON {
		values := make(map[string]any, len(keys))
		for _, k := range keys {
			values[k], _ = configStore.Get(k)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	}

	if len(keys) == 0 {
		cmd.Printf("No settings in %s\n", configStore.Path())
		return nil
	}
	for _, k := range keys {
		v, _ := configStore.Get(k)
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, v)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return fmt.Errorf("config %w", errNotConfigured)
	}
	v, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("%s is not set", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return fmt.Errorf("config %w", errNotConfigured)
	}
	key := args[0]
	previous, had := configStore.Get(key)

	if err := configStore.Set(key, parseConfigValue(args[1])); err != nil {
		return err
	}
	if err := checkConfig(); err != nil {
		if had {
			_ = configStore.Set(key, previous)
		} else {
			_ = configStore.Unset(key)
		}
		return err
	}
	cmd.Printf("Set %s\n", key)
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return fmt.Errorf("config %w", errNotConfigured)
	}
	key := args[0]
	previous, had := configStore.Get(key)
	if !had {
		cmd.Printf("%s is not set\n", key)
		return nil
	}

	if err := configStore.Unset(key); err != nil {
		return err
	}
	if err := checkConfig(); err != nil {
		_ = configStore.Set(key, previous)
		return err
	}
	cmd.Printf("Unset %s\n", key)
	return nil
}

func checkConfig() error {
	if validateConfig == nil {
		return nil
	}
	if err := validateConfig(configStore); err != nil {
		return fmt.Errorf("invalid settings, change reverted: %w", err)
	}
	return nil
}

// parseConfigValue converts a command-line value to the TOML type it looks like:
// bool, integer, float, a comma separated list, or a plain string.
func parseConfigValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return []any{}
		}
		items := strings.Split(inner, ",")
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, parseConfigValue(strings.Trim(strings.TrimSpace(item), `"`)))
		}
		return list
	}
	return raw
}

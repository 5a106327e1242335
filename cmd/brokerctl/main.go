package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "brokerctl",
	Short: "Secret broker CLI",
	Long:  "A CLI for managing dynamic secrets through the secret broker.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(secretCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(bootstrapCmd())
}

// parseDataArgs turns key=value CLI arguments into a payload map.
func parseDataArgs(args []string) (map[string]any, error) {
	data := map[string]any{}
	for _, kv := range args {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid key=value pair: %s", kv)
		}
		data[parts[0]] = parts[1]
	}
	return data, nil
}

// --- secret ---

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "secret", Short: "Manage dynamic secrets"}

	createCmd := &cobra.Command{
		Use:   "create [key=value ...]",
		Short: "Create a new secret",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secretType, _ := cmd.Flags().GetString("type")
			name, _ := cmd.Flags().GetString("name")
			owner, _ := cmd.Flags().GetString("owner")
			consumers, _ := cmd.Flags().GetStringSlice("consumer")
			metaPairs, _ := cmd.Flags().GetStringSlice("meta")

			data, err := parseDataArgs(args)
			if err != nil {
				printError(err.Error())
				return nil
			}
			custom := map[string]string{}
			for _, kv := range metaPairs {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					printError("invalid --meta pair: " + kv)
					return nil
				}
				custom[parts[0]] = parts[1]
			}

			client := newClient()
			result, err := client.post("/v1/secrets/create", map[string]any{
				"name":            name,
				"type":            secretType,
				"owner":           owner,
				"data":            data,
				"consumers":       consumers,
				"custom_metadata": custom,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if warnings, ok := result["warnings"].([]any); ok {
				for _, w := range warnings {
					fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
				}
			}
			if meta, ok := result["metadata"].(map[string]any); ok {
				printResult(meta)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().String("type", "", "Secret type (required)")
	createCmd.Flags().String("name", "", "Human-readable secret name")
	createCmd.Flags().String("owner", "", "Owning team or service (required)")
	createCmd.Flags().StringSlice("consumer", nil, "Consumer service (repeatable)")
	createCmd.Flags().StringSlice("meta", nil, "Custom metadata key=value (repeatable)")
	createCmd.MarkFlagRequired("type")  //nolint:errcheck
	createCmd.MarkFlagRequired("owner") //nolint:errcheck

	getCmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Read a secret's payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/secrets/" + args[0] + "/" + args[1])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if data, ok := result["data"].(map[string]any); ok {
				printResult(data)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List all secrets of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/secrets/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if secrets, ok := result["secrets"].([]any); ok && outputFormat == "table" {
				printMetadataList(secrets)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	rotateCmd := &cobra.Command{
		Use:   "rotate <type> <id> [key=value ...]",
		Short: "Rotate a secret (write a new version)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseDataArgs(args[2:])
			if err != nil {
				printError(err.Error())
				return nil
			}
			client := newClient()
			result, err := client.post("/v1/secrets/"+args[0]+"/"+args[1]+"/rotate", data)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if msg, ok := result["message"].(string); ok {
				printSuccess("Success! " + msg)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if _, err := client.delete("/v1/secrets/" + args[0] + "/" + args[1]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Secret deleted.")
			return nil
		},
	}

	cmd.AddCommand(createCmd, getCmd, listCmd, rotateCmd, deleteCmd)
	return cmd
}

// --- types ---

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered secret types",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/secrets/types")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if types, ok := result["types"].(map[string]any); ok {
				printResult(types)
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- service ---

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "service", Short: "Consumer service commands"}

	secretsCmd := &cobra.Command{
		Use:   "secrets <consumer>",
		Short: "List the secrets a consumer service can access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/secrets/service/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if secrets, ok := result["secrets"].([]any); ok && outputFormat == "table" {
				printMetadataList(secrets)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(secretsCmd)
	return cmd
}

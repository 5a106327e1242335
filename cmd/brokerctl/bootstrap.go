package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/org/secretbroker/internal/storage"
	"github.com/org/secretbroker/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a catalog seed: the type definitions and
// consumer registrations to install before the broker starts serving.
type seedFile struct {
	Types     map[string]seedType     `yaml:"types"`
	Consumers map[string]seedConsumer `yaml:"consumers"`
}

type seedType struct {
	Name           string   `yaml:"name"`
	Format         string   `yaml:"format"`
	Fields         []string `yaml:"fields"`
	RotationPeriod string   `yaml:"rotation_period"`
}

type seedConsumer struct {
	Description string   `yaml:"description"`
	SecretTypes []string `yaml:"secret_types"`
}

var knownRotationIntervals = map[string]bool{
	"30d": true, "90d": true, "180d": true, "365d": true,
}

func bootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap <seed-file>",
		Short: "Seed the catalog with secret types and consumer registrations",
		Long: "Reads a YAML seed file and writes its type definitions and consumer\n" +
			"registrations directly into the catalog. Run once before starting the broker.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			var seed seedFile
			if err := yaml.Unmarshal(data, &seed); err != nil {
				printError("parsing seed file: " + err.Error())
				return nil
			}
			if err := validateSeed(seed); err != nil {
				printError(err.Error())
				return nil
			}

			consulAddr := cfg.ConsulAddr
			if v := os.Getenv("CONSUL_HTTP_ADDR"); v != "" {
				consulAddr = v
			}
			catalog, err := storage.NewConsulCatalog(consulAddr)
			if err != nil {
				printError(err.Error())
				return nil
			}

			if err := applySeed(cmd.Context(), catalog, seed); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess(fmt.Sprintf("Success! Seeded %d types and %d consumers.",
				len(seed.Types), len(seed.Consumers)))
			return nil
		},
	}
	return cmd
}

func validateSeed(seed seedFile) error {
	for id, t := range seed.Types {
		if !models.WireFormat(t.Format).Valid() {
			return fmt.Errorf("type %s: unsupported format %q", id, t.Format)
		}
		if len(t.Fields) == 0 {
			return fmt.Errorf("type %s: at least one required field is needed", id)
		}
		if !knownRotationIntervals[t.RotationPeriod] {
			fmt.Fprintf(os.Stderr, "Warning: type %s has unknown rotation_period %q, secrets will default to 90d\n",
				id, t.RotationPeriod)
		}
	}
	for id, c := range seed.Consumers {
		for _, typeID := range c.SecretTypes {
			if _, ok := seed.Types[typeID]; !ok {
				fmt.Fprintf(os.Stderr, "Warning: consumer %s references type %q not in this seed\n", id, typeID)
			}
		}
	}
	return nil
}

func applySeed(ctx context.Context, catalog storage.Catalog, seed seedFile) error {
	for id, t := range seed.Types {
		raw, err := json.Marshal(models.SecretType{
			DisplayName:      t.Name,
			WireFormat:       models.WireFormat(t.Format),
			RequiredFields:   t.Fields,
			RotationInterval: t.RotationPeriod,
		})
		if err != nil {
			return fmt.Errorf("marshaling type %s: %w", id, err)
		}
		if err := catalog.Put(ctx, storage.TypeKey(id), raw); err != nil {
			return fmt.Errorf("writing type %s: %w", id, err)
		}
	}

	for id, c := range seed.Consumers {
		raw, err := json.Marshal(models.ConsumerRegistration{
			Description: c.Description,
			SecretTypes: c.SecretTypes,
		})
		if err != nil {
			return fmt.Errorf("marshaling consumer %s: %w", id, err)
		}
		if err := catalog.Put(ctx, storage.RegistrationKey(id), raw); err != nil {
			return fmt.Errorf("writing consumer %s: %w", id, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/client"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/config"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/generator"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/reconciler"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the stored configuration to the broker",
	Long: `Ask the running manager to render the stored document, materialize
credentials, copy them to the secure directory and restart the broker.

Examples:
  # Apply on the local manager
  mosquitto-manager apply

  # Apply on a remote manager
  mosquitto-manager apply --manager 10.0.0.5:3000 --username admin --password secret`,
	RunE: runApply,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Send SIGHUP to the broker without regenerating anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := managerClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Reload(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("✓ Reload signal sent")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import configuration into the stored document",
}

var importConfCmd = &cobra.Command{
	Use:   "conf FILE",
	Short: "Merge listeners and global settings from a mosquitto.conf",
	Long: `Parse a hand-written mosquitto.conf and replace the broker settings of
the stored document with it. Users, access profiles and administrators are
kept. The document is not applied unless --apply is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], (*client.Client).ImportConf)
	},
}

var importBackupCmd = &cobra.Command{
	Use:   "backup FILE",
	Short: "Replace the stored document with an exported backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], (*client.Client).ImportBackup)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored document as a backup file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := managerClient(cmd)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			return c.ExportBackup(cmd.Context(), os.Stdout)
		}
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		if err := c.ExportBackup(cmd.Context(), f); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Backup written to %s\n", out)
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render broker configuration without applying it",
	Long: `Render mosquitto.conf and the per-profile ACL files for a document and
print them, or write them into a directory with --out. The document comes
from a backup file (--file) or from the running manager. Nothing is synced
and the broker is not signalled.`,
	RunE: runGenerate,
}

func init() {
	for _, cmd := range []*cobra.Command{applyCmd, reloadCmd, importCmd, exportCmd, generateCmd} {
		addManagerFlags(cmd)
		rootCmd.AddCommand(cmd)
	}

	importCmd.PersistentFlags().Bool("apply", false, "Apply the document after importing it")
	importCmd.AddCommand(importConfCmd)
	importCmd.AddCommand(importBackupCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	generateCmd.Flags().StringP("file", "f", "", "Render this backup file instead of the stored document")
	generateCmd.Flags().String("out", "", "Write artifacts into this directory instead of stdout")
}

func addManagerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("manager", "", "Manager API address (default: derived from api.listen)")
	cmd.PersistentFlags().String("username", "", "Dashboard username (default: $"+config.EnvWebUsername+")")
	cmd.PersistentFlags().String("password", "", "Dashboard password (default: $"+config.EnvWebPassword+")")
}

// managerClient builds an API client from the flags, falling back to the
// local configuration
func managerClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newManagerClient(cmd, cfg), nil
}

func newManagerClient(cmd *cobra.Command, cfg *config.Config) *client.Client {
	addr, _ := cmd.Flags().GetString("manager")
	if addr == "" {
		addr = localAddress(cfg.API.Listen)
	}
	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		username = cfg.Bootstrap.Username
	}
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = cfg.Bootstrap.Password
	}
	return client.NewClient(addr, username, password)
}

// localAddress turns a listen address such as ":3000" into one a client
// can dial
func localAddress(listen string) string {
	if listen == "" {
		return client.DefaultAddress
	}
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}
	if strings.HasPrefix(listen, "0.0.0.0:") {
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return listen
}

func runApply(cmd *cobra.Command, args []string) error {
	c, err := managerClient(cmd)
	if err != nil {
		return err
	}

	fmt.Println("Applying configuration...")
	result, err := c.Apply(cmd.Context())
	printResult(result)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}
	fmt.Println("✓ Configuration applied")
	return nil
}

func printResult(result *reconciler.Result) {
	if result == nil {
		return
	}
	for _, step := range result.Steps {
		mark := "✓"
		if step.Error != "" {
			mark = "✗"
		}
		fmt.Printf("  %s %-24s %s\n", mark, step.Name, step.Duration.Round(time.Millisecond))
		if step.Error != "" {
			fmt.Printf("      %s\n", step.Error)
		}
	}
	if result.Migrated {
		fmt.Println("  ! Document was migrated to the current layout")
	}
	for _, user := range result.CredentialFailures {
		fmt.Printf("  ! Credential not written for %s\n", user)
	}
	for _, f := range result.SyncFailures {
		fmt.Printf("  ! %s %s: %s\n", f.Op, f.Path, f.Err)
	}
}

func runImport(cmd *cobra.Command, file string, do func(*client.Client, context.Context, []byte) (*types.Document, error)) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	c, err := managerClient(cmd)
	if err != nil {
		return err
	}
	doc, err := do(c, cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("✓ Imported %s (%d listeners, %d users, %d profiles)\n",
		filepath.Base(file), len(doc.Listeners), len(doc.Users), len(doc.AccessProfiles))

	if apply, _ := cmd.Flags().GetBool("apply"); !apply {
		fmt.Println("Review the document, then run 'mosquitto-manager apply'.")
		return nil
	}
	return runApply(cmd, nil)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var doc *types.Document
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		doc, err = readDocument(file)
	} else {
		doc, err = newManagerClient(cmd, cfg).GetState(cmd.Context())
	}
	if err != nil {
		return err
	}

	paths := generator.Paths{
		PasswordFile:    filepath.Join(cfg.SecureDir, security.PasswordFileName),
		ACLDir:          filepath.Join(cfg.SecureDir, security.ACLDirName),
		InternalAddress: cfg.Internal.Address,
		InternalPort:    cfg.Internal.Port,
	}
	mainConfig := generator.MainConfig(doc, paths)
	acls := generator.AccessControlFiles(doc)

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return printArtifacts(os.Stdout, mainConfig, acls)
	}

	if err := os.MkdirAll(filepath.Join(out, security.ACLDirName), 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := os.WriteFile(filepath.Join(out, reconciler.MainConfigFile), []byte(mainConfig), 0644); err != nil {
		return err
	}
	for _, acl := range acls {
		if err := os.WriteFile(filepath.Join(out, security.ACLDirName, acl.Name), []byte(acl.Content), 0600); err != nil {
			return err
		}
	}
	fmt.Printf("✓ Wrote %s and %d ACL files to %s\n", reconciler.MainConfigFile, len(acls), out)
	return nil
}

func printArtifacts(w io.Writer, mainConfig string, acls []generator.ACLFile) error {
	if _, err := fmt.Fprintf(w, "### %s\n%s", reconciler.MainConfigFile, mainConfig); err != nil {
		return err
	}
	for _, acl := range acls {
		if _, err := fmt.Fprintf(w, "\n### %s/%s\n%s", security.ACLDirName, acl.Name, acl.Content); err != nil {
			return err
		}
	}
	return nil
}

// readDocument loads and validates a backup file
func readDocument(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedDocument, err)
	}
	if err := types.Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/seantiz/modloader/internal/store"
)

var (
	bundleCmd = &cobra.Command{
		Use:   "bundle",
		Short: "Manage stored module bundles",
		Long: `Bundles are named sets of module bodies kept in the database. The
server can preload them at startup or on POST /v1/bundles/{name}.`,
	}

	bundleAddCmd = &cobra.Command{
		Use:   "add <name> <dir>",
		Short: "Store every .js file below dir as a bundle",
		Args:  cobra.ExactArgs(2),
		RunE:  addBundle,
	}

	bundleListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored bundles",
		Args:    cobra.NoArgs,
		RunE:    listBundles,
	}

	bundleRemoveCmd = &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored bundle",
		Args:    cobra.ExactArgs(1),
		RunE:    removeBundle,
	}
)

func init() {
	bundleCmd.AddCommand(bundleAddCmd)
	bundleCmd.AddCommand(bundleListCmd)
	bundleCmd.AddCommand(bundleRemoveCmd)
}

func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg := loadConfig(cmd)
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// readBundle collects the modules below dir keyed by their slash-separated
// path relative to dir. Hidden directories are skipped.
func readBundle(name, dir string) (*store.Bundle, error) {
	b := &store.Bundle{Name: name, Modules: make(map[string]string)}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".js" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b.Modules[filepath.ToSlash(rel)] = string(src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	if len(b.Modules) == 0 {
		return nil, fmt.Errorf("no .js files below %s", dir)
	}
	return b, nil
}

func addBundle(cmd *cobra.Command, args []string) error {
	b, err := readBundle(args[0], args[1])
	if err != nil {
		return err
	}
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PutBundle(cmd.Context(), b); err != nil {
		return err
	}
	var size uint64
	for _, src := range b.Modules {
		size += uint64(len(src))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored bundle %s: %d modules, %s\n", b.Name, len(b.Modules), humanize.Bytes(size))
	return nil
}

func listBundles(cmd *cobra.Command, _ []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	bundles, err := db.ListBundles(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODULES\tSIZE\tSTORED\tCREATED")
	for _, b := range bundles {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", b.Name, b.Modules,
			humanize.Bytes(uint64(b.RawBytes)), humanize.Bytes(uint64(b.StoredBytes)),
			humanize.RelTime(b.CreatedAt, time.Now(), "ago", "from now"))
	}
	return tw.Flush()
}

func removeBundle(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.DeleteBundle(cmd.Context(), args[0])
}

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/bijoufs/bijou/internal/bjconfig"
	"github.com/bijoufs/bijou/internal/content"
	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/mountadapter"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/spf13/cobra"
)

var (
	mountAllowOther bool
	mountReadOnly   bool
	mountForeground bool
	mountClustered  bool
)

var mountCmd = &cobra.Command{
	Use:   "mount [data-dir] [mountpoint]",
	Short: "Mount a Bijou database as a FUSE filesystem",
	Long: `Mount opens a data directory's keystore and metadata store, runs
orphan collection, and attaches the engine to mountpoint via FUSE.

Example:
  bijou mount ./vault /mnt/vault --allow-other`,

	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)

	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "allow users other than the mount owner to access the filesystem")
	mountCmd.Flags().BoolVar(&mountReadOnly, "read-only", false, "reject every mutating operation")
	mountCmd.Flags().BoolVar(&mountForeground, "foreground", false, "run in the foreground instead of daemonizing")
	mountCmd.Flags().BoolVar(&mountClustered, "clustered", false, "store raw blobs in fixed-count clusters instead of one file per inode")
}

func runMount(dataDir, mountpoint string) error {
	cfg, err := bjconfig.Load()
	if err != nil {
		return err
	}

	passphrase, err := promptPassphrase("Passphrase: ")
	if err != nil {
		return err
	}

	hier, err := keys.Open(dataDir, passphrase)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	meta, err := metastore.OpenBolt(filepath.Join(dataDir, "meta.db"))
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer meta.Close()

	raw, err := buildRawStore(dataDir, meta, cfg, hier)
	if err != nil {
		return fmt.Errorf("open raw store: %w", err)
	}

	engine := fsengine.New(dataDir, hier, meta, raw)
	if err := engine.EnsureRoot(); err != nil {
		return fmt.Errorf("bootstrap root: %w", err)
	}
	collected, err := engine.CollectOrphans()
	if err != nil {
		return fmt.Errorf("collect orphans: %w", err)
	}
	if GetVerbose() && collected > 0 {
		fmt.Printf("collected %d orphaned inode(s) from a prior session\n", collected)
	}

	server, err := mountadapter.Mount(mountpoint, engine, mountadapter.MountOptions{
		AllowOther: mountAllowOther || cfg.AllowOther,
		ReadOnly:   mountReadOnly,
		Debug:      GetVerbose(),
	})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	fmt.Printf("Mounted %s at %s\n", dataDir, mountpoint)
	if mountForeground {
		server.Wait()
		return nil
	}
	go server.Wait()
	return nil
}

func buildRawStore(dataDir string, meta metastore.Store, cfg *bjconfig.Config, hier *keys.Hierarchy) (rawstore.Store, error) {
	base, err := rawstore.NewLocalDir(filepath.Join(dataDir, "blobs"))
	if err != nil {
		return nil, err
	}
	if !mountClustered {
		return rawstore.Compose(base)
	}
	recordSize, err := content.RecordSizeFor(hier.Superblock.DefaultCipher, hier.Superblock.DefaultBlockSize)
	if err != nil {
		return nil, fmt.Errorf("compute record size: %w", err)
	}
	clustered, err := rawstore.NewClustered(base, cfg.ClusterSize, recordSize)
	if err != nil {
		return nil, err
	}
	tracked := rawstore.NewTracking(clustered, meta)
	return rawstore.Compose(tracked)
}

package cmd

import (
	"fmt"

	"github.com/bijoufs/bijou/internal/bjconfig"
	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/spf13/cobra"
)

var (
	createCipher         string
	createBlockSize      uint32
	createNameEncryption bool
)

var createCmd = &cobra.Command{
	Use:   "create [data-dir]",
	Short: "Initialize a new Bijou database",
	Long: `Create allocates a fresh data directory: a keystore protected by
a passphrase, and an encrypted superblock recording the database's
default cipher, block size, and filename-encryption setting.

Example:
  bijou create ./vault --cipher xchacha20poly1305 --name-encryption`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0])
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createCipher, "cipher", "aes256gcm", "content cipher (aes256gcm, xchacha20poly1305)")
	createCmd.Flags().Uint32Var(&createBlockSize, "block-size", 0, "content block size in bytes (default from config)")
	createCmd.Flags().BoolVar(&createNameEncryption, "name-encryption", false, "encrypt directory entry names")
}

func cipherFromFlag(name string) (types.CipherID, error) {
	switch name {
	case "aes256gcm":
		return types.CipherAES256GCM, nil
	case "xchacha20poly1305":
		return types.CipherXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown cipher %q", name)
	}
}

func runCreate(dataDir string) error {
	cfg, err := bjconfig.Load()
	if err != nil {
		return err
	}
	cipher, err := cipherFromFlag(createCipher)
	if err != nil {
		return err
	}
	if !createCmd.Flags().Changed("cipher") {
		cipher = types.CipherID(cfg.DefaultCipher)
	}
	blockSize := createBlockSize
	if blockSize == 0 {
		blockSize = cfg.DefaultBlockSize
	}

	passphrase, err := promptNewPassphrase()
	if err != nil {
		return err
	}

	if _, err := keys.Create(dataDir, passphrase, cipher, blockSize, createNameEncryption); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	fmt.Printf("Initialized Bijou database at %s\n", dataDir)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/bijoufs/bijou/internal/bjconfig"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Config prints the settings bijou would use for create/mount,
after merging ./bijou-config.yaml, $HOME/.bijou, /etc/bijou and
BIJOU_-prefixed environment variables with the built-in defaults.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig() error {
	cfg, err := bjconfig.Load()
	if err != nil {
		return err
	}
	fmt.Printf("default_block_size: %d\n", cfg.DefaultBlockSize)
	fmt.Printf("default_cipher:     %d\n", cfg.DefaultCipher)
	fmt.Printf("cluster_size:       %d\n", cfg.ClusterSize)
	fmt.Printf("entry_timeout_ms:   %d\n", cfg.EntryTimeoutMillis)
	fmt.Printf("attr_timeout_ms:    %d\n", cfg.AttrTimeoutMillis)
	fmt.Printf("allow_other:        %v\n", cfg.AllowOther)
	return nil
}

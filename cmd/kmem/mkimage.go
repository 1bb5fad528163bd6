package main

import (
	"fmt"

	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/disk"
	"github.com/spf13/cobra"
)

func mkimageCmd() *cobra.Command {
	var blocks uint32

	cmd := &cobra.Command{
		Use:   "mkimage PATH",
		Short: "Create a zeroed disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := disk.New(args[0], blocks)
			if err != nil {
				return err
			}
			n := d.Blocks()
			if err := d.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v blocks of %v bytes\n", args[0], n, constant.BlockSize)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&blocks, "blocks", constant.DeviceBlocks, "image size in blocks")
	return cmd
}

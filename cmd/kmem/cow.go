package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cow",
		Short: "Walk a page through the copy-on-write round trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cr, err := open(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a := cr.Pages()

			pa, err := a.Alloc()
			if err != nil {
				return err
			}
			copy(a.Bytes(pa), "parent")
			fmt.Fprintf(out, "alloc        %#x refs=%v\n", uint64(pa), a.RefCount(pa))
			a.Ref(pa)
			fmt.Fprintf(out, "fork         %#x refs=%v\n", uint64(pa), a.RefCount(pa))

			child, err := a.CopyOnWrite(pa)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "child write  %#x -> %#x refs=%v/%v content=%q\n",
				uint64(pa), uint64(child), a.RefCount(pa), a.RefCount(child), a.Bytes(child)[:6])
			parent, err := a.CopyOnWrite(pa)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "parent write %#x -> %#x refs=%v\n", uint64(pa), uint64(parent), a.RefCount(parent))

			a.Free(child)
			a.Free(parent)
			fmt.Fprintf(out, "free         %v/%v pages free\n", a.NumFree(), a.NumPages())
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/infinivision/kmem/core"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var envFile string

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "kmem: %v\n", r)
			atexit.Exit(2)
		}
	}()
	if err := rootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kmem",
		Short:         "Exercise the kernel block cache and page allocator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file with KMEM_* settings")
	cmd.AddCommand(mkimageCmd(), stressCmd(), cowCmd())
	return cmd
}

func loadConfig() (core.Config, error) {
	var files []string

	if envFile != "" {
		files = append(files, envFile)
	}
	return core.LoadEnv(core.DefaultConfig(), files...)
}

// open starts a core that is flushed and closed on any exit path.
func open(cfg core.Config) (core.Core, error) {
	cr, err := core.Open(cfg)
	if err != nil {
		return nil, err
	}
	atexit.Register(func() {
		if err := cr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "kmem: close: %v\n", err)
		}
	})
	return cr, nil
}

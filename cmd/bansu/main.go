package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	cobra.EnableCommandSorting = false
	cmd := &cobra.Command{
		Use:   "bansu",
		Short: "bansu job execution service",
	}
	cmd.Flags().SortFlags = false

	cmd.AddCommand(serveCmd())

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

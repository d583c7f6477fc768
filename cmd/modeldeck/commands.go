// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	jsonOutput    bool
	compactOutput bool
	quietOutput   bool
	searchFlag    string
	filterFlag    string
	sortFlag      string
	assumeYes     bool

	rootCmd = &cobra.Command{
		Use:   "modeldeck",
		Short: "A terminal viewer for locally installed Ollama models",
		Long: `Modeldeck annotates your local Ollama inventory: capability tags,
age buckets, duplicate and uncensored-variant detection, starred
favorites, usage counters, and a reviewed deletion queue.`,
	}

	// --- Inventory ---
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed models with annotations",
		Run:   runList, // Defined in cmd_models.go
	}

	browseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Browse the inventory interactively",
		Run:   runBrowse, // Defined in tui.go
	}

	infoCmd = &cobra.Command{
		Use:   "info [model]",
		Short: "Show detail for one model (ollama show plus annotations)",
		Args:  cobra.ExactArgs(1),
		Run:   runInfo, // Defined in cmd_models.go
	}

	storageCmd = &cobra.Command{
		Use:   "storage",
		Short: "Summarize model disk usage and device capacity",
		Run:   runStorage, // Defined in cmd_models.go
	}

	// --- Flags / Queue ---
	starCmd = &cobra.Command{
		Use:   "star [model]",
		Short: "Toggle the starred flag on a model",
		Args:  cobra.ExactArgs(1),
		Run:   runStar, // Defined in cmd_models.go
	}

	queueCmd = &cobra.Command{
		Use:   "queue [model]",
		Short: "Toggle a model in the deletion queue",
		Args:  cobra.ExactArgs(1),
		Run:   runQueue, // Defined in cmd_models.go
	}

	deleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Review and execute the deletion queue",
		Run:   runDelete, // Defined in cmd_models.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&compactOutput, "compact", false, "Compact JSON output (no indentation)")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false, "Suppress output, exit code only")

	listCmd.Flags().StringVar(&searchFlag, "search", "", "Substring match against name or capability")
	listCmd.Flags().StringVar(&filterFlag, "filter", "", "all|recent|moderate|old|starred|liberated|queued|duplicates|variants")
	listCmd.Flags().StringVar(&sortFlag, "sort", "", "name|size|modified")

	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(starCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(deleteCmd)
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragsync",
		Usage: "Keep a document corpus indexed and answer questions about it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "ragsync.yaml",
				EnvVars: []string{"RAGSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Bring the index up to date with the configured sources",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only report what would change",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Sync whenever files under the source roots change",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "initial",
						Usage: "Sync once before watching",
						Value: true,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the index",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags:     append(askFlags(), &cli.BoolFlag{Name: "json", Usage: "Print every event as a JSON line"}),
			},
			{
				Name:   "chat",
				Usage:  "Answer questions read from standard input, one per line, with conversation memory",
				Action: chatCommand,
				Flags:  askFlags(),
			},
			{
				Name:      "batch",
				Usage:     "Answer several questions concurrently",
				ArgsUsage: "[question...]",
				Action:    batchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read questions from a file, one per line",
					},
				},
			},
			{
				Name:      "retrieve",
				Usage:     "Show the retrieval candidates for a query",
				ArgsUsage: "<query>",
				Action:    retrieveCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "category",
						Aliases: []string{"k"},
						Usage:   "Restrict retrieval to a category (repeatable)",
					},
				},
			},
			{
				Name:   "categories",
				Usage:  "List indexed categories and their chunk counts",
				Action: categoriesCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every indexed chunk with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each request",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
				},
			},
			{
				Name:  "memory",
				Usage: "Inspect and transfer saved conversation memory",
				Subcommands: []*cli.Command{
					{
						Name:      "export",
						Usage:     "Write the memory file to another file, applying the budget",
						ArgsUsage: "<destination>",
						Action:    memoryExportCommand,
						Flags:     []cli.Flag{memoryFileFlag()},
					},
					{
						Name:      "import",
						Usage:     "Replace the memory file with the turns of an exported file",
						ArgsUsage: "<source>",
						Action:    memoryImportCommand,
						Flags:     []cli.Flag{memoryFileFlag()},
					},
					{
						Name:   "stats",
						Usage:  "Show memory usage",
						Action: memoryStatsCommand,
						Flags:  []cli.Flag{memoryFileFlag()},
					},
					{
						Name:      "search",
						Usage:     "Find turns containing a keyword",
						ArgsUsage: "<keyword>",
						Action:    memorySearchCommand,
						Flags: []cli.Flag{
							memoryFileFlag(),
							&cli.IntFlag{Name: "limit", Usage: "Maximum number of matches", Value: 10},
						},
					},
				},
			},
			{
				Name:  "prompts",
				Usage: "Show the prompt templates in use",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List template names",
						Action: promptsListCommand,
					},
					{
						Name:      "show",
						Usage:     "Print a template",
						ArgsUsage: "<name>",
						Action:    promptsShowCommand,
					},
				},
			},
		},
	}
}

func askFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "category",
			Aliases: []string{"k"},
			Usage:   "Restrict retrieval to a category (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "no-memory",
			Usage: "Neither use nor record conversation memory",
		},
		memoryFileFlag(),
	}
}

func memoryFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "memory-file",
		Aliases: []string{"m"},
		Usage:   "File conversation memory is loaded from and saved to",
		Value:   defaultMemoryFile(),
		EnvVars: []string{"RAGSYNC_MEMORY_FILE"},
	}
}

// Command pipelinectl loads a pipeline script and runs it against an
// input string, printing the final value or a formatted engine error.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deanebarker/textpipeline/pipeline"
)

func main() {
	var (
		scriptPath string
		configPath string
		input      string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Run a text-filter pipeline script",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.StandardLogger()
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			registry := pipeline.DefaultRegistry()
			if configPath != "" {
				if err := registry.LoadGlobalConfig(configPath); err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
			}

			file, err := os.Open(scriptPath)
			if err != nil {
				return fmt.Errorf("opening script: %w", err)
			}
			defer file.Close()

			commands, err := parseScript(file)
			if err != nil {
				return fmt.Errorf("parsing script: %w", err)
			}

			p := pipeline.NewPipeline(registry, pipeline.ExecutionOptions{Logger: logger})
			for _, c := range commands {
				p.AddCommand(c)
			}

			result, err := p.Execute(input)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	root.Flags().StringVar(&scriptPath, "script", "", "path to a pipeline script file")
	root.Flags().StringVar(&configPath, "config", "", "path to an optional TOML global-variable config")
	root.Flags().StringVar(&input, "input", "", "the string to pass as the pipeline's initial input")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	_ = root.MarkFlagRequired("script")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

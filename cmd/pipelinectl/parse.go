package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/deanebarker/textpipeline/pipeline"
)

// parseScript reads a minimal rendition of the grammar spec §6 describes:
//
//	category.name arg1 arg2 => outVar <= inVar +> #label
//
// This lives in the CLI, not the pipeline package, because the surface
// syntax is explicitly an external collaborator the core engine never
// constrains beyond the fields it reads off PipelineCommand.
func parseScript(r io.Reader) ([]*pipeline.PipelineCommand, error) {
	var commands []*pipeline.PipelineCommand
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return commands, nil
}

func parseLine(line string) (*pipeline.PipelineCommand, error) {
	fields := strings.Fields(line)
	cmd := pipeline.NewPipelineCommand(fields[0])
	cmd.OriginalText = line

	posIndex := 0
	for i := 1; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "=>" && i+1 < len(fields):
			cmd.OutputVariable = fields[i+1]
			i++
		case tok == "<=" && i+1 < len(fields):
			cmd.InputVariable = fields[i+1]
			i++
		case tok == "+>":
			cmd.AppendToOutput = true
		case strings.HasPrefix(tok, "#") && len(tok) > 1:
			cmd.Label = tok[1:]
		default:
			cmd.SetPositionalArg(posIndex, tok)
			posIndex++
		}
	}
	return cmd, nil
}

// forge imports 3D scenes into GPU-ready scene files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "import":
		err = cmdImport(args, stdout, stderr)
	case "info":
		err = cmdInfo(args, stdout, stderr)
	case "watch":
		err = cmdWatch(args, stdout, stderr)
	case "shader":
		err = cmdShader(args, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `forge - 3D asset import pipeline

Usage:
  forge <command> [options]

Commands:
  import <file> [-o out.fscene] [-trace trace.json]   Import a glTF, GLB or RSM file
  info <file.fscene>                                  Show scene file contents
  watch <file> [-o out.fscene]                        Re-import whenever the file or its dependencies change
  shader <file.wgsl> [-profile p] [-D K=V ...]        Compile a WGSL shader and print its reflection

Common options:
  -config <path>     Config file (.yaml or .toml)
  -debug             Enable debug logging
  -workers <n|auto>  Worker count
  -archive <file>    GRF archive to resolve assets from (repeatable)

Examples:
  forge import scene.gltf -o scene.fscene
  forge import -archive data.grf model/prontera/house.rsm
  forge watch -o level.fscene level.glb
  forge shader -D SHADOWS=1 lit.wgsl`)
}

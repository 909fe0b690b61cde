// vmgen CLI - compiles erased IR declaration batches to VM bytecode
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/vmgen/manifest"
)

// options holds the command-line settings that are not manifest overrides.
type options struct {
	output string
	remote string
}

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (1 = info, 2 = debug and traces)")
	jobs := flag.Int("jobs", 0, "Bodies compiled in parallel (0 = GOMAXPROCS)")
	trace := flag.String("trace", "", "Comma-separated trace classes (compiler.code_gen, compiler.optimize_bytecode)")
	verify := flag.Bool("verify", false, "Verify the stack discipline of every procedure")
	cachePath := flag.String("cache", "", "Procedure cache database (default: in memory)")
	port := flag.Int("port", 0, "Compile service port (used with serve)")
	output := flag.String("o", "", "Write installed procedures to this file")
	remote := flag.String("remote", "", "Send batches to the compile service at this URL")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vmgen [options] [batch.cbor...]\n")
		fmt.Fprintf(os.Stderr, "       vmgen [options] dis procs.cbor\n")
		fmt.Fprintf(os.Stderr, "       vmgen [options] serve\n\n")
		fmt.Fprintf(os.Stderr, "Compiles declaration batches in order, each against the table left by\n")
		fmt.Fprintf(os.Stderr, "the previous one, and prints a listing of every procedure. Without\n")
		fmt.Fprintf(os.Stderr, "arguments the batches under [source].dirs in vmgen.toml are compiled.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  vmgen -verify a.cbor b.cbor            # Compile two batches\n")
		fmt.Fprintf(os.Stderr, "  vmgen -o procs.cbor a.cbor             # Save the installed code\n")
		fmt.Fprintf(os.Stderr, "  vmgen -v 2 -trace compiler.code_gen a.cbor\n")
		fmt.Fprintf(os.Stderr, "  vmgen dis procs.cbor                   # Disassemble saved code\n")
		fmt.Fprintf(os.Stderr, "  vmgen serve -port 9000                 # Start the compile service\n")
		fmt.Fprintf(os.Stderr, "  vmgen -remote http://localhost:8970 a.cbor\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
		if err := m.ApplyEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags given explicitly win over vmgen.toml and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "jobs":
			m.Compiler.Jobs = *jobs
		case "trace":
			m.Compiler.Trace = splitList(*trace)
		case "verify":
			m.Compiler.Verify = *verify
		case "cache":
			m.Cache.Path = *cachePath
		case "port":
			m.Server.Port = *port
		}
	})

	opts := options{output: *output, remote: *remote}
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "dis":
			if len(args) != 2 {
				fmt.Fprintln(os.Stderr, "Usage: vmgen dis procs.cbor")
				os.Exit(1)
			}
			if err := runDisassemble(os.Stdout, m, args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "serve":
			if err := runServe(m); err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	files := args
	if len(files) == 0 {
		files, err = m.BatchFiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			flag.Usage()
			os.Exit(1)
		}
	}

	if opts.remote != "" {
		err = runRemote(os.Stdout, opts.remote, files)
	} else {
		err = runCompile(os.Stdout, m, files, opts.output)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

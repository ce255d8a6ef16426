package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	evmjit "github.com/evmjit/evmjit"
	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/types"
)

// abidump prints the runtime ABI of the configured target and the IR of an
// entry function that only sets up runtime access.
func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	publish := flag.Bool("publish", false, "store the descriptor in the configured abi store")
	showIR := flag.Bool("ir", true, "print the entry function IR")
	flag.Parse()

	if err := run(os.Stdout, *configPath, *publish, *showIR); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(out io.Writer, configPath string, publish, showIR bool) error {
	config := types.DefaultJITConfig()
	if configPath != "" {
		var err error
		config, err = types.LoadJITConfig(configPath)
		if err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	j, err := evmjit.NewJIT(config, logger)
	if err != nil {
		return fmt.Errorf("could not create jit: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			logger.Error().Err(err).Msg("could not close abi store")
		}
	}()

	d, err := j.Descriptor()
	if err != nil {
		return fmt.Errorf("could not build abi descriptor: %w", err)
	}
	cs, err := d.Checksum()
	if err != nil {
		return fmt.Errorf("could not hash abi descriptor: %w", err)
	}

	fmt.Fprintf(out, "runtime abi v%d, %d-byte pointers, checksum %s\n\n", d.Version, d.PointerSize, cs)
	printStructs(out, d)

	if showIR {
		ir, err := j.CompileUnit(evmjit.Unit{Name: config.Target.MainFunction})
		if err != nil {
			return fmt.Errorf("could not compile entry function: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, ir)
	}

	if publish {
		if _, err := j.PublishABI(); err != nil {
			return fmt.Errorf("could not publish abi: %w", err)
		}
	}
	return nil
}

func printStructs(out io.Writer, d *abi.Descriptor) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range []abi.Struct{d.Runtime, d.RuntimeData, d.Memory} {
		fmt.Fprintf(w, "%%%s\tsize %d\talign %d\t\n", s.Name, s.Size, s.Align)
		for _, f := range s.Fields {
			fmt.Fprintf(w, "  %d\t%s\t+%d\t%d bytes\n", f.Index, f.Name, f.Offset, f.Size)
		}
	}
	w.Flush()
}

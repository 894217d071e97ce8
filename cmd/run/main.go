package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/nebulark/wasm-substrate/engine"
	"github.com/nebulark/wasm-substrate/runtime"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to contract wasm file")
		funcName    = flag.String("func", "", "Function to call (optional)")
		argList     = flag.String("args", "", "Call arguments, comma-separated integers (0x prefix for hex)")
		initHeap    = flag.Bool("init-heap", false, "Lay out the arena before calling (for modules without a start function)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		stats       = flag.Bool("stats", false, "Print arena statistics after the call")
		memPages    = flag.Uint("mem", 0, "Memory limit in 64KiB pages (0 = no limit)")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive heap inspector (no wasm needed)")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(logger)
			defer logger.Sync()
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		pages := *memPages
		if pages == 0 {
			pages = 2
		}
		// The arena starts one page in, so one page leaves no room.
		if pages < 2 {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs at least 2 memory pages")
			os.Exit(1)
		}
		if err := runInteractive(uint32(pages)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args i,j,...] [-init-heap] [-stats]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -i [-mem pages]  (interactive heap inspector)")
		os.Exit(1)
	}

	if err := run(*wasmFile, *funcName, *argList, uint32(*memPages), *initHeap, *list, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, argList string, memPages uint32, initHeap, listOnly, showStats bool) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := runtime.NewWithConfig(ctx, &runtime.Config{MemoryLimitPages: memPages})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, err := rt.LoadModule(ctx, data)
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}
	defer mod.Close(ctx)

	exports := mod.Exports()

	fmt.Printf("Module: %s (%d bytes)\n", wasmFile, len(data))
	fmt.Printf("Heap base: %#x\n", rt.HeapBase())
	fmt.Printf("\nExported functions:\n")
	if len(exports) == 0 {
		fmt.Printf("  (none)\n")
	}
	for _, exp := range exports {
		fmt.Printf("  %s\n", exp.Signature)
	}

	if listOnly {
		return nil
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	if initHeap {
		if err := inst.InitHeap(); err != nil {
			return fmt.Errorf("init heap: %w", err)
		}
	}

	// Without an explicit function, fall back to a conventional entry
	// point, or the lone export when there is exactly one.
	if funcName == "" {
		for _, name := range []string{"main", "start", "init"} {
			for _, exp := range exports {
				if exp.Name == name {
					funcName = name
					break
				}
			}
			if funcName != "" {
				break
			}
		}
		if funcName == "" && len(exports) == 1 {
			funcName = exports[0].Name
		}
		if funcName == "" {
			fmt.Printf("\nNo function specified and no obvious entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	args, err := parseArgs(argList)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argList)
	results, err := inst.Call(ctx, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	switch len(results) {
	case 0:
		fmt.Printf("Result: (none)\n")
	case 1:
		fmt.Printf("Result: %d (%#x)\n", results[0], results[0])
	default:
		fmt.Printf("Results:\n")
		for i, r := range results {
			fmt.Printf("  [%d] %d (%#x)\n", i, r, r)
		}
	}

	if showStats {
		printHeapStats(inst)
	}

	return nil
}

// parseArgs converts a comma-separated list of integers into raw wasm
// arguments. Decimal and 0x-prefixed hex are accepted.
func parseArgs(argList string) ([]uint64, error) {
	if argList == "" {
		return nil, nil
	}
	parts := strings.Split(argList, ",")
	args := make([]uint64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func printHeapStats(inst *runtime.Instance) {
	s, err := inst.HeapStats()
	if err != nil {
		fmt.Printf("\nHeap stats unavailable: %v\n", err)
		return
	}
	fmt.Printf("\nArena: %d bytes, %d chunks\n", s.ArenaSize, s.Chunks)
	fmt.Printf("  allocated: %d bytes in %d chunks\n", s.AllocatedBytes, s.AllocatedChunks)
	fmt.Printf("  free:      %d bytes in %d chunks (largest %d)\n", s.FreeBytes, s.FreeChunks, s.LargestFree)
	if err := inst.CheckHeap(); err != nil {
		fmt.Printf("  INTEGRITY: %v\n", err)
	}
}

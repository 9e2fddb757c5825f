package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hollowaylabs/dcp/engine"
	"github.com/hollowaylabs/dcp/journal"
	"github.com/hollowaylabs/dcp/provider"
	"github.com/hollowaylabs/dcp/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitTransferFailed = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Profile values (bucket, AWS credentials) may live in a local .env.
	_ = godotenv.Load()

	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	switch args[0] {
	case "cp", "copy":
		return runCp(args[1:])
	case "cat":
		return runCat(args[1:])
	case "ls", "list":
		return runLs(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  dcp cp [options] <source>... <dest>   Copy files to or from the data store
  dcp cat <data-uri>...                 Concatenate remote file(s) to stdout
  dcp ls [-l] [<path>...]               List a local or data store directory

A remote path must be prefixed with data:// to avoid path ambiguity; a
destination without a scheme (or with file://) selects download mode.

Options for cp:
  -c N           number of concurrent transfer workers (default 8)
  -bucket NAME   bucket backing the data:// store (or DCP_BUCKET)
  -journal PATH  record per-item outcomes in a bbolt journal
  -tui           show a progress TUI instead of plain progress lines

Examples:
  dcp cp file1.jpg file2.jpg data://my/foo   Upload 2 files to the foo directory
  dcp cp data://my/foo/file1.jpg .           Download file1.jpg to the working directory`)
}

func runCp(args []string) int {
	fs := flag.NewFlagSet("cp", flag.ExitOnError)
	concurrency := fs.Int("c", engine.DefaultConcurrency, "number of concurrent transfer workers")
	bucket := fs.String("bucket", os.Getenv("DCP_BUCKET"), "bucket backing the data:// store")
	journalPath := fs.String("journal", "", "path to a bbolt journal recording per-item outcomes")
	tuiEnabled := fs.Bool("tui", false, "show a progress TUI instead of plain progress lines")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 2 {
		printUsage()
		return ExitInvalidArgs
	}
	sources := rest[:len(rest)-1]
	dest := rest[len(rest)-1]

	if *bucket == "" {
		fmt.Fprintln(os.Stderr, "A bucket is required (-bucket or DCP_BUCKET)")
		return ExitInvalidArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	remote, err := provider.NewRemoteProvider(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to the data store: %v\n", err)
		return ExitGeneralError
	}

	runner := &engine.Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: *concurrency,
	}

	if *journalPath != "" {
		j, err := journal.NewBoltJournal(*journalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
			return ExitGeneralError
		}
		defer j.Close()
		runner.Journal = j
	}

	if *tuiEnabled {
		return runCpTUI(ctx, runner, sources, dest, *concurrency)
	}

	report, err := runner.Run(ctx, sources, dest)
	if err != nil {
		if report.Failed != nil {
			fmt.Fprintf(os.Stderr, "%v\n", report.Failed.Err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return ExitTransferFailed
	}
	return ExitSuccess
}

// runCpTUI drives the batch behind a bubbletea progress view. Plain progress
// lines are suppressed; the summary is printed after the TUI exits.
func runCpTUI(ctx context.Context, runner *engine.Runner, sources []string, dest string, concurrency int) int {
	dir := engine.ClassifyDestination(dest)

	workers := concurrency
	if len(sources) < workers {
		workers = len(sources)
	}
	state := ui.NewState(dir.String(), int64(len(sources)), workers)

	runner.Out = io.Discard
	runner.OnProgress = func(ev engine.Event) {
		state.AddCompleted(ev.Target, ev.Bytes)
	}

	program := tea.NewProgram(ui.NewModel(state.Snapshot()), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var report engine.Report
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		report, runErr = runner.Run(ctx, sources, dest)
		state.SetDone()
		program.Send(ui.UpdateMsg{Snapshot: state.Snapshot()})
	}()

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				program.Send(ui.UpdateMsg{Snapshot: state.Snapshot()})
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}

	// Quitting the TUI early aborts the batch.
	cancel()
	<-done

	if runErr != nil {
		if report.Failed != nil {
			fmt.Fprintf(os.Stderr, "%v\n", report.Failed.Err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", runErr)
		}
		return ExitTransferFailed
	}

	line, code := batchSummary(dir, report, len(sources))
	fmt.Println(line)
	return code
}

// batchSummary renders the post-TUI summary line and exit code. A batch that
// finished without an error but stopped short of the full source list was
// aborted by the user quitting the TUI.
func batchSummary(dir engine.Direction, report engine.Report, total int) (string, int) {
	verb := "uploading"
	if dir == engine.Download {
		verb = "downloading"
	}
	if int(report.Succeeded) < total {
		return fmt.Sprintf("Aborted %s after %d of %d file(s)", verb, report.Succeeded, total),
			ExitGeneralError
	}
	return fmt.Sprintf("Finished %s %d file(s)", verb, report.Succeeded), ExitSuccess
}

func runLs(args []string) int {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	bucket := fs.String("bucket", os.Getenv("DCP_BUCKET"), "bucket backing the data:// store")
	long := fs.Bool("l", false, "long listing with sizes")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local := provider.NewLocalProvider("")
	var remote provider.Provider

	for _, pth := range paths {
		p := provider.Provider(local)
		scheme, rest, ok := provider.SplitURI(pth)
		switch {
		case ok && scheme == "file":
			pth = rest
		case ok:
			if remote == nil {
				if *bucket == "" {
					fmt.Fprintln(os.Stderr, "A bucket is required (-bucket or DCP_BUCKET)")
					return ExitInvalidArgs
				}
				r, err := provider.NewRemoteProvider(ctx, *bucket)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to connect to the data store: %v\n", err)
					return ExitGeneralError
				}
				remote = r
			}
			p = remote
		}

		infos, err := p.List(ctx, pth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing %s: %v\n", pth, err)
			return ExitGeneralError
		}
		os.Stdout.WriteString(formatListing(infos, *long))
	}

	return ExitSuccess
}

// formatListing renders one directory listing, directories marked with a
// trailing slash.
func formatListing(infos []provider.FileInfo, long bool) string {
	var sb strings.Builder
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() {
			name += "/"
		}
		if long {
			size := "-"
			if !info.IsDir() {
				size = fmt.Sprintf("%d", info.Size())
			}
			fmt.Fprintf(&sb, "%10s  %s\n", size, name)
		} else {
			sb.WriteString(name + "\n")
		}
	}
	return sb.String()
}

func runCat(args []string) int {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	bucket := fs.String("bucket", os.Getenv("DCP_BUCKET"), "bucket backing the data:// store")
	fs.Parse(args)

	uris := fs.Args()
	if len(uris) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	if *bucket == "" {
		fmt.Fprintln(os.Stderr, "A bucket is required (-bucket or DCP_BUCKET)")
		return ExitInvalidArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	remote, err := provider.NewRemoteProvider(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to the data store: %v\n", err)
		return ExitGeneralError
	}

	for _, uri := range uris {
		rc, err := remote.OpenRead(ctx, uri)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error downloading %s: %v\n", uri, err)
			return ExitTransferFailed
		}
		_, err = io.Copy(os.Stdout, rc)
		rc.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error copying data: %v\n", err)
			return ExitTransferFailed
		}
	}

	return ExitSuccess
}

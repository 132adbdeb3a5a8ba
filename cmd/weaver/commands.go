package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/weaver/internal/core"
	"github.com/dotcommander/weaver/internal/domain/fiction"
)

var outFlag = &cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the manuscript to `PATH` instead of stdout"}
var liveFlag = &cli.BoolFlag{Name: "live", Usage: "Echo chapter text to stderr as it streams"}
var splitFlag = &cli.StringFlag{Name: "split", Usage: "Also write each chapter to its own file in `DIR`"}

func newCmd() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Start a new novel from a prompt, discarding any saved state",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pages", Aliases: []string{"p"}, Value: -1, Usage: "Target page count (0 lets the model decide)"},
			outFlag,
			liveFlag,
			splitFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("usage: weaver new \"<prompt>\" [--pages N]")
			}

			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			pages := int(cmd.Int("pages"))
			if pages < 0 {
				pages = e.cfg.Generation.PageCount
			}

			return e.generate(ctx, cmd, func(ctx context.Context, o *core.Orchestrator) (*core.Result, error) {
				return o.Run(ctx, prompt, pages)
			})
		},
	}
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Continue the saved novel from the next unwritten chapter",
		Flags: []cli.Flag{outFlag, liveFlag, splitFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			return e.generate(ctx, cmd, func(ctx context.Context, o *core.Orchestrator) (*core.Result, error) {
				return o.Resume(ctx)
			})
		},
	}
}

// generate runs the pipeline on one goroutine while another prints progress,
// then writes the manuscript.
func (e *env) generate(ctx context.Context, cmd *cli.Command, fn func(context.Context, *core.Orchestrator) (*core.Result, error)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan core.Progress, 64)
	g, gctx := errgroup.WithContext(ctx)

	orc, err := e.orchestrator(func(p core.Progress) {
		select {
		case events <- p:
		case <-gctx.Done():
		}
	})
	if err != nil {
		return err
	}

	var result *core.Result
	g.Go(func() error {
		defer close(events)
		res, err := fn(gctx, orc)
		result = res
		return err
	})
	g.Go(func() error {
		printProgress(os.Stderr, events, cmd.Bool("live"))
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Interrupted. Progress is saved; run 'weaver resume' to continue.")
		}
		return err
	}

	e.logger.Info("generation finished",
		"run_id", orc.RunID(),
		"title", result.Title,
		"chapters", len(result.Chapters),
		"generated", result.Generated)

	if dir := cmd.String("split"); dir != "" {
		if err := writeChapterFiles(dir, result); err != nil {
			return err
		}
	}
	return writeOutput(cmd.String("out"), result.Manuscript())
}

// writeChapterFiles writes each chapter to its own numbered file in dir.
func writeChapterFiles(dir string, result *core.Result) error {
	records := result.ChapterRecords()
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, rec := range records {
		path := filepath.Join(dir, fmt.Sprintf("chapter_%02d.txt", rec.Number))
		if err := os.WriteFile(path, []byte(rec.Text), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	fmt.Fprintf(os.Stderr, "Wrote %d chapter files to %s\n", len(records), dir)
	return nil
}

// printProgress writes each new status message once. With live set, the
// part of the manuscript not yet echoed is written as it grows.
func printProgress(w io.Writer, events <-chan core.Progress, live bool) {
	var lastMessage string
	var echoed int
	for p := range events {
		if p.Message != lastMessage {
			if live && echoed > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, p.Message)
			lastMessage = p.Message
		}
		if !live || p.Manuscript == "" {
			continue
		}
		if len(p.Manuscript) < echoed {
			echoed = 0
		}
		io.WriteString(w, p.Manuscript[echoed:])
		echoed = len(p.Manuscript)
	}
}

func writeOutput(path, text string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show what is saved and whether it can be resumed",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print status as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			st := core.Inspect(ctx, e.store, e.logger)
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Print(formatStatus(st))
			return nil
		},
	}
}

func formatStatus(st core.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase:    %s\n", st.Phase)
	if st.Title != "" {
		fmt.Fprintf(&b, "Title:    %s\n", st.Title)
	}
	if !st.External && st.ChaptersTotal > 0 {
		fmt.Fprintf(&b, "Chapters: %d of %d\n", st.ChaptersDone, st.ChaptersTotal)
	}
	if st.Words > 0 {
		fmt.Fprintf(&b, "Words:    %d (about %d min to read)\n", st.Words, fiction.ReadingMinutes(st.Words))
	}
	if st.ForbiddenPhrases > 0 {
		fmt.Fprintf(&b, "Avoiding: %d phrases\n", st.ForbiddenPhrases)
	}
	if st.Resumable() {
		b.WriteString("Run 'weaver resume' to continue.\n")
	}
	return b.String()
}

func resetCmd() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Discard all saved state",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip confirmation"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !cmd.Bool("yes") && !confirm(os.Stdin, os.Stderr, "Discard the saved novel?") {
				fmt.Fprintln(os.Stderr, "Nothing changed.")
				return nil
			}

			orc, err := e.orchestrator(nil)
			if err != nil {
				return err
			}
			if err := orc.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Saved state cleared.")
			return nil
		},
	}
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the saved pipeline as a JSON backup or the manuscript as text",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json or text"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output `PATH` (- for stdout; default derived from the title)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			backup := core.ExportBackup(ctx, e.store, e.logger)
			text, suffix, err := renderExport(backup, cmd.String("format"))
			if err != nil {
				return err
			}

			out := cmd.String("out")
			if out == "" {
				out = core.SafeFilename(backup.Title, suffix)
			}
			return writeOutput(out, text)
		},
	}
}

func renderExport(b core.Backup, format string) (text, suffix string, err error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("encoding backup: %w", err)
		}
		return string(data) + "\n", "pipeline_backup.json", nil
	case "text":
		return b.NovelManuscript, "novel.txt", nil
	default:
		return "", "", fmt.Errorf("unknown export format %q (want json or text)", format)
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace saved state with an existing text document",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Document title (default: file name)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("usage: weaver import --title T <file>")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			e, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			title := cmd.String("title")
			if title == "" {
				title = importTitle(path)
			}

			orc, err := e.orchestrator(nil)
			if err != nil {
				return err
			}
			if err := orc.ImportExternal(ctx, title, string(data)); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Imported %q (%d bytes).\n", title, len(data))
			return nil
		},
	}
}

// importTitle derives a title from a file path: base name without extension.
func importTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/stream/internal/api"
	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/intake"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/session"
	"github.com/hpungsan/stream/internal/store"
	"github.com/hpungsan/stream/internal/tagger"
)

// maxInputBytes bounds stdin and clipboard reads.
const maxInputBytes = 1 << 20

// Clipboard access, swapped in tests.
var (
	readClipboard  = clipboard.ReadAll
	writeClipboard = clipboard.WriteAll
)

// newCLIApp creates the CLI application with all commands. sess may be nil
// for help and version output.
func newCLIApp(sess *session.Session, cfg *config.Config, log *logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "stream",
		Usage:   "Prompt fragment library",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(sess),
			pasteCmd(sess),
			listCmd(sess),
			getCmd(sess),
			updateCmd(sess),
			deleteCmd(sess),
			classifyCmd(),
			compileCmd(sess),
			stackCmd(sess),
			colorCmd(sess),
			serveCmd(sess, cfg, log),
			watchCmd(sess, cfg, log),
			dryrunCmd(sess),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// draftFlags are shared by create and paste.
func draftFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "Kind: persona|context|constraint|format|instruction|example"},
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (defaults to the first line)"},
		&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
		&cli.StringFlag{Name: "stack", Aliases: []string{"s"}, Usage: "Stack id or name"},
		&cli.IntFlag{Name: "position", Usage: "Position within the stack (1-based)"},
	}
}

func createFrom(c *cli.Context, sess *session.Session, content string) error {
	if content == "" {
		return outputError(errors.NewInvalidRequest("content is required"))
	}
	d := store.Draft{
		Kind:    fragment.Kind(c.String("type")),
		Title:   strings.TrimSpace(c.String("title")),
		Content: content,
		Tags:    parseTags(c.String("tags")),
	}
	if ref := c.String("stack"); ref != "" {
		st, ok := sess.Stacks.Find(ref)
		if !ok {
			return outputError(errors.NewNotFound("stack", ref))
		}
		d.StackID = st.ID
		if c.IsSet("position") {
			pos := c.Int("position")
			d.Position = &pos
		}
	}
	f, err := sess.Store.CreateDraft(d)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(c, fragment.ToRecord(f))
}

// createCmd creates the create command.
func createCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a prompt (reads content from stdin)",
		Flags: draftFlags(),
		Action: func(c *cli.Context) error {
			if !stdinHasData(c.App.Reader) {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}
			content, err := readStdin(c.App.Reader, maxInputBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			return createFrom(c, sess, content)
		},
	}
}

// pasteCmd creates the paste command.
func pasteCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:  "paste",
		Usage: "Create a prompt from the clipboard",
		Flags: draftFlags(),
		Action: func(c *cli.Context) error {
			text, err := readClipboard()
			if err != nil {
				return outputError(errors.NewInternal(fmt.Errorf("read clipboard: %w", err)))
			}
			if len(text) > maxInputBytes {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("clipboard exceeds %d bytes", maxInputBytes)))
			}
			return createFrom(c, sess, strings.TrimSpace(text))
		},
	}
}

// listCmd creates the list command.
func listCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List prompts, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Match title, content or tags"},
			&cli.StringFlag{Name: "tag", Usage: "Comma-separated tags; any may match"},
			&cli.StringFlag{Name: "stack", Aliases: []string{"s"}, Usage: "Stack id or name"},
		},
		Action: func(c *cli.Context) error {
			flt := store.Filter{
				Search: c.String("search"),
				Tags:   parseTags(c.String("tag")),
			}
			if ref := c.String("stack"); ref != "" {
				st, ok := sess.Stacks.Find(ref)
				if !ok {
					return outputError(errors.NewNotFound("stack", ref))
				}
				flt.StackID = st.ID
			}
			return outputJSON(c, summaries(sess.Store.Query(flt)))
		},
	}
}

// getCmd creates the get command.
func getCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a prompt with its content",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			f, ok := sess.Store.Get(id)
			if !ok {
				return outputError(errors.NewNotFound("prompt", id))
			}
			return outputJSON(c, fragment.ToRecord(f))
		},
	}
}

// updateCmd creates the update command.
func updateCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update a prompt (optionally reads new content from stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "New kind"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "tags", Usage: "New comma-separated tags"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return outputError(errors.NewInvalidRequest("id is required"))
			}

			var p fragment.Patch
			if stdinHasData(c.App.Reader) {
				text, err := readStdin(c.App.Reader, maxInputBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				if text != "" {
					p.Content = fragment.Some(text)
				}
			}
			if c.IsSet("type") {
				p.Kind = fragment.Some(fragment.Kind(c.String("type")))
			}
			if title := c.String("title"); title != "" {
				p.Title = fragment.Some(title)
			}
			if c.IsSet("tags") {
				p.Tags = fragment.Some(parseTags(c.String("tags")))
			}
			if p.Empty() {
				return outputError(errors.NewInvalidRequest("no updates provided"))
			}

			if err := sess.Store.Update(id, p); err != nil {
				return outputError(err)
			}
			f, _ := sess.Store.Get(id)
			return outputJSON(c, fragment.ToRecord(f))
		},
	}
}

// deleteCmd creates the delete command. The backend delete is committed
// when the session closes.
func deleteCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete prompts",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			ids := c.Args().Slice()
			if len(ids) == 0 {
				return outputError(errors.NewInvalidRequest("at least one id is required"))
			}
			for _, id := range ids {
				if err := sess.Store.Remove(id); err != nil {
					return outputError(err)
				}
			}
			return outputJSON(c, map[string]any{"deleted": ids})
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Print the tags detected in stdin",
		Action: func(c *cli.Context) error {
			text, err := readStdin(c.App.Reader, maxInputBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			return outputJSON(c, map[string]any{"tags": tagger.Classify(text)})
		},
	}
}

// rackFrom loads ids into the session rack in order.
func rackFrom(sess *session.Session, ids []string) error {
	if len(ids) == 0 {
		return errors.NewInvalidRequest("at least one id is required")
	}
	for _, id := range ids {
		if err := sess.Rack.Add(id); err != nil {
			return err
		}
	}
	return nil
}

// compileCmd creates the compile command.
func compileCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Join prompts in the given order, separated by blank lines",
		ArgsUsage: "<id>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "copy", Aliases: []string{"c"}, Usage: "Copy the result to the clipboard"},
			&cli.BoolFlag{Name: "html", Usage: "Render the result as HTML"},
		},
		Action: func(c *cli.Context) error {
			if err := rackFrom(sess, c.Args().Slice()); err != nil {
				return outputError(err)
			}
			text := sess.Rack.CompiledOutput()
			if c.Bool("html") {
				html, err := sess.Rack.CompiledHTML()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				text = html
			}
			if c.Bool("copy") {
				if err := writeClipboard(text); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("write clipboard: %w", err)))
				}
			}
			_, err := fmt.Fprintln(c.App.Writer, text)
			return err
		},
	}
}

// stackRef resolves the first argument to a stack.
func stackRef(c *cli.Context, sess *session.Session) (fragment.Stack, error) {
	ref := c.Args().First()
	if ref == "" {
		return fragment.Stack{}, errors.NewInvalidRequest("stack is required")
	}
	st, ok := sess.Stacks.Find(ref)
	if !ok {
		return fragment.Stack{}, errors.NewNotFound("stack", ref)
	}
	return st, nil
}

// stackCmd creates the stack command group.
func stackCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:  "stack",
		Usage: "Manage stacks",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stacks in creation order",
				Action: func(c *cli.Context) error {
					return outputJSON(c, sess.Stacks.List())
				},
			},
			{
				Name:      "create",
				Usage:     "Create a stack",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					st, err := sess.Stacks.Create(c.Context, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, st)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a stack",
				ArgsUsage: "<stack> <name>",
				Action: func(c *cli.Context) error {
					st, err := stackRef(c, sess)
					if err != nil {
						return outputError(err)
					}
					if err := sess.Stacks.Rename(c.Context, st.ID, strings.Join(c.Args().Tail(), " ")); err != nil {
						return outputError(err)
					}
					st, _ = sess.Stacks.Get(st.ID)
					return outputJSON(c, st)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a stack; its prompts become unassigned",
				ArgsUsage: "<stack>",
				Action: func(c *cli.Context) error {
					st, err := stackRef(c, sess)
					if err != nil {
						return outputError(err)
					}
					if err := sess.Stacks.Delete(c.Context, st.ID); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"id": st.ID, "deleted": true})
				},
			},
			{
				Name:      "assign",
				Usage:     "Move prompts into a stack (or out of any stack with --none)",
				ArgsUsage: "[stack] <id>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "none", Usage: "Unassign instead of moving into a stack"},
				},
				Action: func(c *cli.Context) error {
					ids := c.Args().Slice()
					stackID := ""
					if !c.Bool("none") {
						st, err := stackRef(c, sess)
						if err != nil {
							return outputError(err)
						}
						stackID = st.ID
						ids = c.Args().Tail()
					}
					if len(ids) == 0 {
						return outputError(errors.NewInvalidRequest("at least one id is required"))
					}
					moved, err := sess.Stacks.Assign(ids, stackID)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"moved": moved, "stack_id": stackID})
				},
			},
			{
				Name:      "position",
				Usage:     "Set a prompt's position in its stack (0 clears it)",
				ArgsUsage: "<id> <position>",
				Action: func(c *cli.Context) error {
					id := c.Args().Get(0)
					n, err := strconv.Atoi(c.Args().Get(1))
					if id == "" || err != nil || n < 0 {
						return outputError(errors.NewInvalidRequest("usage: stream stack position <id> <position>"))
					}
					var pos *int
					if n > 0 {
						pos = &n
					}
					if err := sess.Stacks.SetPosition(id, pos); err != nil {
						return outputError(err)
					}
					f, _ := sess.Store.Get(id)
					return outputJSON(c, fragment.ToRecord(f))
				},
			},
			{
				Name:      "view",
				Usage:     "List a stack's prompts in stack order",
				ArgsUsage: "<stack>",
				Action: func(c *cli.Context) error {
					st, err := stackRef(c, sess)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, summaries(sess.Stacks.View(st.ID)))
				},
			},
		},
	}
}

// colorEntry is one row of `color list`.
type colorEntry struct {
	Tag       string `json:"tag"`
	Hue       int    `json:"hue"`
	Lightness int    `json:"lightness"`
	Hex       string `json:"hex"`
}

// colorCmd creates the color command group.
func colorCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:  "color",
		Usage: "Manage tag colours",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the colour of every known tag",
				Action: func(c *cli.Context) error {
					snap := sess.Palette.Snapshot()
					out := make([]colorEntry, 0, len(snap))
					for tag, col := range snap {
						out = append(out, colorEntry{Tag: tag, Hue: col.Hue, Lightness: col.Lightness, Hex: col.Hex()})
					}
					sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
					return outputJSON(c, out)
				},
			},
			{
				Name:      "set",
				Usage:     "Bind a tag to a hue",
				ArgsUsage: "<tag> <hue>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "lightness", Aliases: []string{"l"}, Value: palette.DefaultLightness, Usage: "Lightness percent (10-85)"},
				},
				Action: func(c *cli.Context) error {
					tag := c.Args().Get(0)
					hue, err := strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return outputError(errors.NewInvalidRequest("hue must be an integer"))
					}
					if err := sess.Palette.Set(tag, hue, c.Int("lightness")); err != nil {
						return outputError(err)
					}
					col, _ := sess.Palette.Resolve(strings.TrimSpace(tag))
					return outputJSON(c, colorEntry{Tag: strings.TrimSpace(tag), Hue: col.Hue, Lightness: col.Lightness, Hex: col.Hex()})
				},
			},
			{
				Name:      "reset",
				Usage:     "Remove a tag's custom colour",
				ArgsUsage: "<tag>",
				Action: func(c *cli.Context) error {
					tag := c.Args().First()
					return outputJSON(c, map[string]any{"tag": tag, "reset": sess.Store.ResetTagColor(tag)})
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(sess *session.Session, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("bind") {
				cfg.APIBind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.APIPort = c.Int("port")
			}
			srv := api.NewServer(sess.Backend, cfg, log)
			fmt.Fprintf(os.Stderr, "stream API listening on http://%s\n", srv.Addr)
			return api.Run(srv, log)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(sess *session.Session, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Create prompts from .txt and .md files dropped into a folder",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Folder to watch (default intake_dir)"},
		},
		Action: func(c *cli.Context) error {
			dir := cfg.IntakeDir
			if d := c.String("dir"); d != "" {
				dir = d
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "watching %s\n", dir)
			err := intake.Watch(ctx, dir, func(content string) {
				f := sess.Store.Create(content)
				_ = outputJSON(c, f.ToSummary())
			}, intake.Options{Logger: log})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// dryrunCmd creates the dryrun command.
func dryrunCmd(sess *session.Session) *cli.Command {
	return &cli.Command{
		Name:      "dryrun",
		Usage:     "Send the compiled prompts to the model and print the reply",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			if err := rackFrom(sess, c.Args().Slice()); err != nil {
				return outputError(err)
			}
			res := sess.DryRun(c.Context)
			if res.Error != "" {
				return cli.Exit(res.Error, 1)
			}
			_, err := fmt.Fprintln(c.App.Writer, res.Text)
			return err
		},
	}
}

// Helper functions

func summaries(frags []fragment.Fragment) []fragment.Summary {
	out := make([]fragment.Summary, len(frags))
	for i, f := range frags {
		out[i] = f.ToSummary()
	}
	return out
}

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if r has piped data. Readers other than a
// terminal file always count as piped.
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from r.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

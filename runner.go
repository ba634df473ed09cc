package sherpa

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/sherpa/pkg/flow"
)

// ContentRenderer transforms step content before outputting it. This
// allows TUI rendering (markdown to ANSI) without coupling the core
// package to a terminal library.
type ContentRenderer func(string) (string, error)

// Runner drives an Engine interactively using the provided IO, which
// makes it easy to test and to embed in different frontends.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
}

// NewRunner creates a Runner. Callers set Input/Output explicitly
// (os.Stdin and os.Stdout for a CLI).
func NewRunner() *Runner {
	return &Runner{}
}

// Run resumes the session and loops: render the current step, read a
// command, navigate. In headless mode it advances without reading input
// until the flow completes or navigation fails.
//
// Commands: enter/next, back, skip, goto <step>, check/uncheck <item>,
// set <key> <value>, state, exit.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil && !r.Headless {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	var lineReader *bufio.Reader
	if r.Input != nil {
		lineReader = bufio.NewReader(r.Input)
	}

	step, err := engine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume error: %w", err)
	}

	lastRenderedID := ""
	for {
		if step == nil || engine.State().IsCompleted {
			fmt.Fprintln(r.Output, "Flow completed.")
			return nil
		}

		if step.ID != lastRenderedID {
			r.renderStep(engine, step)
			lastRenderedID = step.ID
		}

		if r.Headless {
			next, err := engine.Next(ctx, nil)
			if err != nil {
				return fmt.Errorf("navigation error: %w", err)
			}
			step = next
			continue
		}

		fmt.Fprint(r.Output, "> ")
		text, err := lineReader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		input, err := SanitizeInput(strings.TrimSpace(text))
		if err != nil {
			fmt.Fprintf(r.Output, "input rejected: %v\n", err)
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		var navErr error
		switch cmd {
		case "", "next", "n":
			step, navErr = engine.Next(ctx, nil)
		case "back", "prev", "b":
			step, navErr = engine.Previous(ctx)
		case "skip", "s":
			step, navErr = engine.Skip(ctx)
		case "goto", "g":
			if arg == "" {
				fmt.Fprintln(r.Output, "usage: goto <step-id>")
				continue
			}
			step, navErr = engine.GoTo(ctx, arg, nil)
		case "check", "uncheck":
			if arg == "" {
				fmt.Fprintf(r.Output, "usage: %s <item-id>\n", cmd)
				continue
			}
			if err := engine.UpdateChecklistItem(ctx, arg, cmd == "check"); err != nil {
				fmt.Fprintf(r.Output, "error: %v\n", err)
				continue
			}
			// Force a re-render with the fresh item states.
			lastRenderedID = ""
		case "set":
			key, value, ok := strings.Cut(arg, " ")
			if !ok {
				fmt.Fprintln(r.Output, "usage: set <key> <value>")
				continue
			}
			engine.Context().Set(key, value)
		case "state":
			r.renderState(engine)
		case "exit", "quit", "q":
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		default:
			fmt.Fprintf(r.Output, "unknown command %q\n", cmd)
			continue
		}

		if navErr != nil {
			fmt.Fprintf(r.Output, "error: %v\n", navErr)
			engine.ClearError(ctx)
			// A failed navigation returns no step; stay where we were.
			step = engine.Current()
		}
	}
}

func (r *Runner) renderStep(engine *Engine, step *flow.Step) {
	fmt.Fprintf(r.Output, "\n== %s ==\n", step.Title())
	if content := step.Content(); content != "" {
		output := content
		if r.Renderer != nil {
			if rendered, err := r.Renderer(content); err == nil {
				output = rendered
			}
		}
		fmt.Fprintln(r.Output, strings.TrimSpace(output))
	}

	if step.Type == flow.TypeChecklist && step.Checklist != nil {
		done := make(map[string]bool)
		if v, ok := engine.Context().Value(step.Checklist.DataKey); ok {
			if states, ok := flow.DecodeItemStates(v); ok {
				for _, st := range states {
					done[st.ID] = st.Completed
				}
			}
		}
		for _, item := range step.Checklist.Items {
			if !item.Eligible(engine.Context()) {
				continue
			}
			mark := " "
			if done[item.ID] {
				mark = "x"
			}
			label := item.Label
			if label == "" {
				label = item.ID
			}
			fmt.Fprintf(r.Output, "  [%s] %s (%s)\n", mark, label, item.ID)
		}
		p := engine.ChecklistProgress(step)
		fmt.Fprintf(r.Output, "  %d/%d complete\n", p.Completed, p.Total)
	}
}

func (r *Runner) renderState(engine *Engine) {
	st := engine.State()
	fmt.Fprintf(r.Output, "step %d of %d (%d%%)", st.CurrentStepNumber, st.TotalSteps, st.ProgressPercentage)
	var affordances []string
	if st.CanGoNext {
		affordances = append(affordances, "next")
	}
	if st.CanGoPrevious {
		affordances = append(affordances, "back")
	}
	if st.IsSkippable {
		affordances = append(affordances, "skip")
	}
	if len(affordances) > 0 {
		fmt.Fprintf(r.Output, " [%s]", strings.Join(affordances, " "))
	}
	fmt.Fprintln(r.Output)
}

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"duo/internal/todo"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

func viewFor(completed bool) todo.ListName {
	if completed {
		return todo.Completed
	}
	return todo.Active
}

func newListCmd(a *App) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List active (or completed) tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			a.ctrl.SelectView(viewFor(completed))
			printList(cmd.OutOrStdout(), a)
			return nil
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Show the completed list")
	return cmd
}

func newAddCmd(a *App) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			a.ctrl.SelectView(viewFor(completed))
			it, err := a.ctrl.Submit(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %q to %s (%d)\n", it.Text, a.ctrl.View(), a.ctrl.Len(a.ctrl.View()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Add to the completed list")
	return cmd
}

func newDoneCmd(a *App) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:   "done <n>",
		Short: "Move task n to the other list (complete, or restore with --completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexedItem(cmd, a, args[0], viewFor(completed), func(it todo.Item) error {
				a.ctrl.Toggle(it.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "moved %q to %s\n", it.Text, a.ctrl.View().Other())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Index into the completed list")
	return cmd
}

func newRemoveCmd(a *App) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:   "rm <n>",
		Short: "Delete task n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndexedItem(cmd, a, args[0], viewFor(completed), func(it todo.Item) error {
				a.ctrl.Delete(it.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", it.Text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Index into the completed list")
	return cmd
}

func newClearCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear local storage (the remote record is not touched)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context(), false); err != nil {
				return err
			}
			defer a.close()
			if err := a.ctrl.ClearStorage(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "local storage cleared")
			return nil
		},
	}
}

func withIndexedItem(cmd *cobra.Command, a *App, raw string, view todo.ListName, fn func(todo.Item) error) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("not a number: %s", raw)
	}
	if err := a.open(cmd.Context(), false); err != nil {
		return err
	}
	defer a.close()
	a.ctrl.SelectView(view)
	items := a.ctrl.Selected()
	if n < 1 || n > len(items) {
		return fmt.Errorf("index out of range: have %d, got %d", len(items), n)
	}
	return fn(items[n-1])
}

func printList(w io.Writer, a *App) {
	view := a.ctrl.View()
	items := a.ctrl.Selected()
	storage := "local"
	if id, ok := a.ctrl.Identity(); ok {
		storage = "remote:" + id.Email
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", view, len(items)))+"  "+mutedStyle.Render(storage))
	if len(items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no items"))
		return
	}
	box := "[ ]"
	if view == todo.Completed {
		box = "[x]"
	}
	for i, it := range items {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, box, it.Text)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evercrisp-ai/Ben-OS-sub001/board"
	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

func newBoardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Inspect and reorder a board",
	}
	cmd.AddCommand(newBoardShowCmd(a))
	cmd.AddCommand(newBoardMoveCmd(a))
	return cmd
}

type showFlags struct {
	search     string
	priorities []string
	assignees  []string
	milestones []string
}

func (f showFlags) filter() (board.FilterState, error) {
	prios := make([]domain.Priority, 0, len(f.priorities))
	for _, p := range f.priorities {
		parsed, err := domain.ParsePriority(p)
		if err != nil {
			return board.FilterState{}, err
		}
		prios = append(prios, parsed)
	}
	return board.NewFilter(f.search, prios, f.assignees, f.milestones), nil
}

func newBoardShowCmd(a *app) *cobra.Command {
	var flags showFlags
	cmd := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Print a board's columns and cards in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout())
			defer cancel()
			session, err := a.loadSession(ctx, args[0])
			if err != nil {
				return err
			}
			return printBoard(cmd.OutOrStdout(), board.FilteredColumns(session, filter))
		},
	}
	cmd.Flags().StringVar(&flags.search, "search", "", "match title or description")
	cmd.Flags().StringSliceVar(&flags.priorities, "priority", nil, "show only these priorities")
	cmd.Flags().StringSliceVar(&flags.assignees, "assignee", nil, "show only these agent ids")
	cmd.Flags().StringSliceVar(&flags.milestones, "milestone", nil, "show only these milestone ids")
	return cmd
}

func newBoardMoveCmd(a *app) *cobra.Command {
	var (
		boardID string
		index   int
	)
	cmd := &cobra.Command{
		Use:   "move <card-id> <column-id>",
		Short: "Move a card and wait for the server to confirm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout())
			defer cancel()
			session, err := a.loadSession(ctx, boardID)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			d := board.NewDispatcher(session, c, board.WithDispatchLogger(a.logger))
			defer d.Close(context.WithoutCancel(ctx))

			cardID, columnID := args[0], args[1]
			target := index
			if target < 0 {
				target = len(session.CardIDs(columnID))
			}
			dispatched, err := d.MoveCard(ctx, cardID, columnID, target)
			if err != nil {
				return err
			}
			if !dispatched {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already at %s[%d]\n", cardID, columnID, target)
				return nil
			}

			select {
			case r := <-d.Results():
				if err := d.Acknowledge(r); err != nil {
					return fmt.Errorf("sync %s: %w", cardID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %s to %s[%d]\n", cardID, r.Placement.ColumnID, r.Placement.Position)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("sync %s: %w", cardID, ctx.Err())
			}
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "board id")
	cmd.Flags().IntVar(&index, "index", -1, "target index in the column (default: end)")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func (a *app) loadSession(ctx context.Context, boardID string) (*board.Session, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	snap, err := c.LoadBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}
	session := board.NewSession(board.WithLogger(a.logger))
	if err := session.LoadBoard(snap); err != nil {
		return nil, err
	}
	return session, nil
}

func printBoard(w io.Writer, cols []board.FilteredColumn) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, col := range cols {
		header := fmt.Sprintf("%s (%s)", col.Name, col.ID)
		if len(col.Cards) != col.Total {
			header += fmt.Sprintf(" %d/%d", len(col.Cards), col.Total)
		}
		fmt.Fprintln(tw, header)
		for i, card := range col.Cards {
			assignee := "-"
			if card.AssignedAgentID != nil {
				assignee = *card.AssignedAgentID
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", i, card.ID, card.Priority, assignee, strings.TrimSpace(card.Title))
		}
	}
	return tw.Flush()
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"seedkeeper/internal/textutil"
)

func newWishlistCommand(ctx *commandContext) *cobra.Command {
	wishlistCmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Manage wanted works awaiting auto-promotion",
	}
	wishlistCmd.AddCommand(newWishlistListCommand(ctx))
	wishlistCmd.AddCommand(newWishlistAddCommand(ctx))
	return wishlistCmd
}

func newWishlistListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending wishlist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			entries, err := store.PendingWishlist(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Wishlist is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(entry.ID, 10),
					entry.Title,
					orDash(entry.Author),
					orDash(entry.Narrator),
					entry.AddedAt.UTC().Format("2006-01-02"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Author", "Narrator", "Added"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newWishlistAddCommand(ctx *commandContext) *cobra.Command {
	var author string
	var narrator string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a wanted work to the wishlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			entry, err := store.AddWishlistEntry(cmd.Context(),
				textutil.CanonicalName(args[0]),
				textutil.CanonicalName(author),
				textutil.CanonicalName(narrator))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added wishlist entry %d: %s\n", entry.ID, entry.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author of the wanted work")
	cmd.Flags().StringVar(&narrator, "narrator", "", "Preferred narrator")
	return cmd
}

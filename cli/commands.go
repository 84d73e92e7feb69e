package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/server"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			return server.New(svc).Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func newAddCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "add [message...]",
		Short: "Ingest a user message and print the resulting operations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			messages := []core.Message{{Role: "user", Content: strings.Join(args, " ")}}
			ops, err := svc.AddConversation(cmd.Context(), userID, messages, nil)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No durable facts extracted.")
				return nil
			}
			for _, op := range ops {
				fmt.Printf("%-6s  %s\n", op.Kind, op.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id")
	return cmd
}

func newListCommand() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all memories for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			memories, err := svc.ListAll(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(memories)
			}
			if len(memories) == 0 {
				fmt.Println("No memories.")
				return nil
			}
			for _, mem := range memories {
				fmt.Printf("%s  %s  %s\n", mem.ID, mem.CreatedAt.Format("2006-01-02 15:04"), mem.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a user's memories by semantic similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			results, err := svc.Search(cmd.Context(), userID, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, mem := range results {
				fmt.Printf("%.3f  %s  %s\n", mem.Score, mem.ID, mem.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	var userID string
	var all bool

	cmd := &cobra.Command{
		Use:   "rm [memory-id]",
		Short: "Delete one memory by id, or --all for a whole user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) != 1 {
				return fmt.Errorf("pass a memory id or --all")
			}

			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if all {
				n, err := svc.DeleteAll(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d memories for user %s.\n", n, userID)
				return nil
			}

			deleted, err := svc.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("memory %s not found", args[0])
			}
			fmt.Println("Deleted.")
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id (with --all)")
	cmd.Flags().BoolVar(&all, "all", false, "delete every memory for the user")
	return cmd
}

func newSweepCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the full contradiction scan for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			resolved, err := svc.Sweep(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Printf("Resolved %d contradictions.\n", resolved)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id")
	return cmd
}

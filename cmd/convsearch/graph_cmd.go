package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/kgraph"
	"github.com/sgx-labs/convsearch/internal/store"
)

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the semantic-ref knowledge graph",
		Long:  "Explore the graph of conversations, messages, entities, topics, actions, and tags built at index time.",
	}

	cmd.AddCommand(graphStatsCmd())
	cmd.AddCommand(graphQueryCmd())

	return cmd
}

func graphStatsCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph node/edge counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open()
			if err != nil {
				return config.ErrNoDatabase
			}
			defer db.Close()

			graph := kgraph.NewDB(db.Conn())
			stats, err := graph.GetStats()
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			if jsonOut {
				data, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Graph statistics:\n")
			fmt.Printf("  Nodes: %d\n", stats.TotalNodes)
			fmt.Printf("  Edges: %d\n", stats.TotalEdges)
			fmt.Println("\nNodes by type:")
			for t, c := range stats.NodesByType {
				fmt.Printf("  %s: %d\n", t, c)
			}
			fmt.Println("\nEdges by relationship:")
			for r, c := range stats.EdgesByRelationship {
				fmt.Printf("  %s: %d\n", r, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func graphQueryCmd() *cobra.Command {
	var (
		nodeName string
		nodeType string
		rel      string
		depth    int
		dir      string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the graph from a start node",
		Example: `  convsearch graph query --type entity --node "claude" --depth 2
  convsearch graph query --type topic --node "authentication" --dir reverse`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodeName == "" {
				return fmt.Errorf("--node is required")
			}
			if nodeType == "" {
				return fmt.Errorf("--type is required (message, conversation, entity, topic, action, tag)")
			}

			db, err := store.Open()
			if err != nil {
				return config.ErrNoDatabase
			}
			defer db.Close()

			graph := kgraph.NewDB(db.Conn())
			startNode, err := graph.FindNode(nodeType, nodeName)
			if err != nil {
				return fmt.Errorf("start node not found: %w", err)
			}

			opts := kgraph.QueryOptions{
				FromNodeID:   startNode.ID,
				Relationship: rel,
				MaxDepth:     depth,
				Direction:    dir,
			}

			paths, err := graph.QueryGraph(opts)
			if err != nil {
				return err
			}

			if jsonOut {
				data, _ := json.MarshalIndent(paths, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(paths) == 0 {
				fmt.Println("No paths found.")
				return nil
			}

			fmt.Printf("Found %d path(s):\n", len(paths))
			for i, p := range paths {
				fmt.Printf("\n%sPath %d (length %d):%s\n", cli.Bold, i+1, len(p.Nodes), cli.Reset)
				for j, n := range p.Nodes {
					prefix := "  "
					if j > 0 && j-1 < len(p.Edges) {
						prefix = fmt.Sprintf("  --[%s]--> ", p.Edges[j-1].Relationship)
					}
					fmt.Printf("%s[%s] %s%s%s\n", prefix, n.Type, cli.Cyan, n.Name, cli.Reset)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeName, "node", "", "Name of the start node")
	cmd.Flags().StringVar(&nodeType, "type", kgraph.NodeEntity, "Type of the start node")
	cmd.Flags().StringVar(&rel, "rel", "", "Filter by relationship type")
	cmd.Flags().IntVar(&depth, "depth", 2, "Traversal depth")
	cmd.Flags().StringVar(&dir, "dir", "forward", "Direction (forward, reverse)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

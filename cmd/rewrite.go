package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"invoicechat/internal/logger"
	"invoicechat/internal/rewrite"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <document.html>",
	Short: "Rewrite selected text of a rendered invoice with AI",
	Long: `Without --nodes, list the editable text of an HTML invoice with its
index and detected content type. With --nodes and --instruction, send every
selected text to the rewrite service at once and apply the answers. If any
request fails nothing is changed.

Required environment variables:
  OPENAI_API_KEY   - API key of the completion service
  OPENAI_MODEL     - model name (default gpt-4o-mini)
  OPENAI_BASE_URL  - alternative OpenAI-compatible endpoint (optional)`,
	Example: `  # List the editable text
  invoicechat rewrite invoice.html

  # Rewrite the 3rd and 7th text
  invoicechat rewrite invoice.html --nodes 3,7 --instruction "translate to English" -o invoice.en.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	rewriteCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	rewriteCmd.Flags().String("nodes", "", "Comma-separated node indexes or ids to rewrite")
	rewriteCmd.Flags().StringP("instruction", "i", "", "How the selected text should change")
	rewriteCmd.Flags().Int("concurrency", 0, "Maximum parallel requests (0: one per node)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("rewrite-cmd")

	outputPath, _ := cmd.Flags().GetString("output")
	selection, _ := cmd.Flags().GetString("nodes")
	instruction, _ := cmd.Flags().GetString("instruction")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	markup, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	doc, err := rewrite.Parse(string(markup))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	if selection == "" {
		return listNodes(cmd, doc.Nodes())
	}

	ids, err := resolveNodes(doc, selection)
	if err != nil {
		return err
	}
	if err := appConfig.RequireOpenAI(); err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Rewriting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	coordinator := rewrite.NewCoordinator(
		rewrite.NewOpenAIRewriter(appConfig.OpenAIAPIKey, appConfig.OpenAIModel, appConfig.OpenAIBaseURL),
		rewrite.WithConcurrency(concurrency),
		rewrite.WithProgress(func(done, total int) { _ = bar.Set(done) }),
	)

	ctx, cancel := signalContext(log)
	defer cancel()

	next, changes, err := coordinator.Apply(ctx, doc, ids, instruction)
	_ = bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		log.Error().Err(err).Msg("Rewrite failed, document unchanged")
		return fmt.Errorf("rewrite failed, nothing was changed: %w", err)
	}

	for _, c := range changes {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %q -> %q\n", c.Type, c.Before, c.After)
	}
	if len(changes) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No text changed.")
	}
	return writeOutput(cmd, outputPath, []byte(next.HTML()), log)
}

func listNodes(cmd *cobra.Command, nodes []rewrite.TextNode) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tTAG\tTEXT")
	for i, n := range nodes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, rewrite.ClassifyContent(n.Text), n.Tag, n.Text)
	}
	return w.Flush()
}

// resolveNodes accepts 1-based indexes or node ids.
func resolveNodes(doc *rewrite.Document, selection string) ([]string, error) {
	nodes := doc.Nodes()
	var ids []string
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			if n < 1 || n > len(nodes) {
				return nil, fmt.Errorf("node %d out of range 1-%d", n, len(nodes))
			}
			ids = append(ids, nodes[n-1].ID)
			continue
		}
		if _, ok := doc.Node(part); !ok {
			return nil, fmt.Errorf("unknown node %q", part)
		}
		ids = append(ids, part)
	}
	return ids, nil
}

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"invoicechat/internal/chat"
	"invoicechat/internal/export"
	"invoicechat/internal/logger"
	"invoicechat/internal/render"
	"invoicechat/internal/rewrite"
	"invoicechat/pkg/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive invoice chat",
	Long: `Start an interactive chat with the invoicing backend.

Type what you need ("preventivo per pompa di calore ARGO16 zona climatica A"),
pick products with /select, then /create the invoice. Within 10 minutes of
creating or editing an invoice, messages like "change the recipient to John
Smith" edit it.

Type /help inside the chat for all commands.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

const chatHelp = `Commands:
  <text>                          ask for products or edit the last invoice
  /select 1,3                     pick products from the last search (numbers or ids)
  /create Name; Address; CAP; City; Country; Notes
                                  create the invoice from the draft (only Name is required)
  /view <id>                      show a stored or remote invoice
  /list                           invoices of this chat
  /nodes                          editable text of the last rendered invoice
  /rewrite 3,7 <instruction>      rewrite texts of the last invoice with AI
  /save <file.html>               write the last rendered invoice
  /export <file.xlsx> | sheets    export the invoices of this chat
  /help                           this help
  /quit                           leave`

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("chat-cmd")

	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close()

	opts := []chat.Option{
		chat.WithFreshnessWindow(appConfig.EditFreshnessWindow),
		chat.WithOfflineFallback(appConfig.OfflineFallback),
	}
	if appConfig.OpenAIAPIKey != "" {
		opts = append(opts, chat.WithEditor(rewrite.NewCoordinator(
			rewrite.NewOpenAIRewriter(appConfig.OpenAIAPIKey, appConfig.OpenAIModel, appConfig.OpenAIBaseURL),
		)))
	}
	renderer := render.NewRenderer(render.SourceFor(appConfig.TemplatePath))
	svc := chat.NewService(a.client, renderer, a.auth, opts...)

	out := cmd.OutOrStdout()
	if !a.auth.IsAuthenticated() {
		fmt.Fprintln(out, "You are not logged in: run `invoicechat login` to save invoices.")
	}
	fmt.Fprintln(out, "Type /help for commands, /quit to leave.")

	return runREPL(ctx, &repl{svc: svc, out: out}, cmd.InOrStdin())
}

// repl reads commands and prints bubbles.
type repl struct {
	svc      *chat.Service
	out      io.Writer
	lastHTML string
}

func runREPL(ctx context.Context, r *repl, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if quit := r.handle(ctx, strings.TrimSpace(scanner.Text())); quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the user asked to leave.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.print(r.svc.Send(ctx, line))
		return false
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/select":
		r.print(r.svc.Select(ctx, selectionIDs(rest, r.svc.PendingProducts())))
	case "/create":
		r.print(r.svc.CreateInvoice(ctx, parseCreateInput(rest)))
	case "/view":
		r.print(r.svc.View(ctx, rest))
	case "/list":
		r.list()
	case "/nodes":
		r.nodes()
	case "/rewrite":
		r.rewrite(ctx, rest)
	case "/save":
		r.save(rest)
	case "/export":
		r.export(ctx, rest)
	default:
		fmt.Fprintf(r.out, "Unknown command %s, type /help\n", command)
	}
	return false
}

func (r *repl) print(m chat.Message) {
	if m.HTML != "" {
		r.lastHTML = m.HTML
	}

	prefix := ""
	if m.Offline {
		prefix = "[offline] "
	}

	switch m.Kind {
	case chat.KindError:
		fmt.Fprintf(r.out, "! %s\n", m.Text)
	case chat.KindReauth:
		fmt.Fprintf(r.out, "! %s Run `invoicechat login`.\n", m.Text)
	case chat.KindProducts:
		fmt.Fprintf(r.out, "%s%s\n", prefix, m.Text)
		for i, p := range m.Products {
			fmt.Fprintf(r.out, "  %d. [%s] %s  %s\n", i+1, p.Code, p.Name, render.FormatEUR(p.Price))
		}
		fmt.Fprintln(r.out, "Pick with /select 1,2")
	case chat.KindDraft, chat.KindInvoice:
		fmt.Fprintf(r.out, "%s%s\n", prefix, m.Text)
		if m.Invoice != nil {
			printInvoiceSummary(r.out, m.Invoice)
		}
		if m.Kind == chat.KindDraft {
			fmt.Fprintln(r.out, "Create it with /create Name; Address; CAP; City; Country; Notes")
		} else {
			fmt.Fprintln(r.out, "Write it out with /save invoice.html")
		}
	default:
		fmt.Fprintf(r.out, "%s%s\n", prefix, m.Text)
		for _, it := range m.Items {
			fmt.Fprintf(r.out, "  - %s x%d\n", it.Name, it.Quantity)
		}
	}
}

func printInvoiceSummary(w io.Writer, rec *models.InvoiceRecord) {
	if n := rec.DisplayNumber(); n != "" {
		fmt.Fprintf(w, "  Number:    %s\n", n)
	}
	if rec.Recipient != "" {
		fmt.Fprintf(w, "  Recipient: %s\n", rec.Recipient)
	}
	for _, it := range rec.Products {
		fmt.Fprintf(w, "  - %s %s  %s\n", render.FormatQuantity(it.Quantity, it.UnitOfMeasure), it.Name, render.FormatEUR(it.TotalPrice))
	}
	if rec.TotalAmount.Valid {
		fmt.Fprintf(w, "  Total:     %s\n", render.FormatEUR(rec.TotalAmount.Decimal))
	}
}

func (r *repl) list() {
	invoices := r.svc.Invoices()
	if len(invoices) == 0 {
		fmt.Fprintln(r.out, "No invoices in this chat yet.")
		return
	}
	for _, rec := range invoices {
		total := ""
		if rec.TotalAmount.Valid {
			total = render.FormatEUR(rec.TotalAmount.Decimal)
		}
		fmt.Fprintf(r.out, "  %s  %s  %s  %s\n", rec.ID, rec.DisplayNumber(), rec.Recipient, total)
	}
}

func (r *repl) nodes() {
	nodes, err := r.svc.Nodes()
	if err != nil {
		fmt.Fprintf(r.out, "! %s\n", err)
		return
	}
	for i, n := range nodes {
		fmt.Fprintf(r.out, "  %3d  %-11s %s\n", i+1, rewrite.ClassifyContent(n.Text), n.Text)
	}
}

func (r *repl) rewrite(ctx context.Context, rest string) {
	selection, instruction, _ := strings.Cut(rest, " ")
	nodes, err := r.svc.Nodes()
	if err != nil {
		fmt.Fprintf(r.out, "! %s\n", err)
		return
	}
	ids, err := nodeIDs(selection, nodes)
	if err != nil {
		fmt.Fprintf(r.out, "! %s\n", err)
		return
	}
	r.print(r.svc.EditElements(ctx, ids, instruction))
}

// nodeIDs maps 1-based node numbers to node ids. One bad number rejects the
// whole selection.
func nodeIDs(selection string, nodes []rewrite.TextNode) ([]string, error) {
	var ids []string
	for _, s := range strings.Split(selection, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > len(nodes) {
			return nil, fmt.Errorf("invalid node number %q, expected 1-%d", s, len(nodes))
		}
		ids = append(ids, nodes[n-1].ID)
	}
	return ids, nil
}

func (r *repl) save(path string) {
	if path == "" {
		fmt.Fprintln(r.out, "! usage: /save <file.html>")
		return
	}
	if r.lastHTML == "" {
		fmt.Fprintln(r.out, "! nothing rendered yet")
		return
	}
	if err := os.WriteFile(path, []byte(r.lastHTML), 0o644); err != nil {
		fmt.Fprintf(r.out, "! %s\n", err)
		return
	}
	fmt.Fprintf(r.out, "Saved %s\n", path)
}

func (r *repl) export(ctx context.Context, target string) {
	invoices := r.svc.Invoices()
	if len(invoices) == 0 {
		fmt.Fprintln(r.out, "! no invoices to export")
		return
	}

	switch {
	case target == "sheets":
		n, err := appendToSheet(ctx, invoices)
		if err != nil {
			fmt.Fprintf(r.out, "! %s\n", err)
			return
		}
		fmt.Fprintf(r.out, "Appended %d invoices to Google Sheets\n", n)
	case strings.HasSuffix(strings.ToLower(target), ".xlsx"):
		if err := export.WriteXLSX(target, invoices); err != nil {
			fmt.Fprintf(r.out, "! %s\n", err)
			return
		}
		fmt.Fprintf(r.out, "Wrote %d invoices to %s\n", len(invoices), target)
	default:
		fmt.Fprintln(r.out, "! usage: /export <file.xlsx> | sheets")
	}
}

// selectionIDs maps 1-based positions in the last search to product ids.
// Anything that is not a valid position is taken as an id.
func selectionIDs(arg string, products []models.Product) []string {
	return lo.FilterMap(strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }), func(s string, _ int) (string, bool) {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(products) {
			return products[n-1].ID, true
		}
		return s, s != ""
	})
}

// parseCreateInput reads "Name; Address; CAP; City; Country; Notes".
func parseCreateInput(arg string) chat.CreateInput {
	parts := lo.Map(strings.Split(arg, ";"), func(s string, _ int) string { return strings.TrimSpace(s) })
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return chat.CreateInput{
		Recipient: field(0),
		BuildingSite: models.BuildingSite{
			Address:    field(1),
			PostalCode: field(2),
			City:       field(3),
			Country:    field(4),
		},
		Notes: field(5),
	}
}

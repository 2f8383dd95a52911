package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicechat/internal/invoice"
	"invoicechat/internal/logger"
	"invoicechat/internal/render"
	"invoicechat/pkg/models"
)

var renderCmd = &cobra.Command{
	Use:   "render <record.json>",
	Short: "Render an invoice record into the HTML template",
	Long: `Render an invoice record (as returned by the backend) into the invoice
template. With --prior, fields that differ from the prior version are
highlighted.

The template comes from --template, then TEMPLATE_PATH, then the built-in one.
Both a file path and an http(s) URL are accepted.`,
	Example: `  invoicechat render invoice.json -o invoice.html
  invoicechat render edited.json --prior invoice.json --source edit`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	renderCmd.Flags().String("prior", "", "Prior version of the record, for change highlighting")
	renderCmd.Flags().String("template", "", "Template file path or URL")
	renderCmd.Flags().String("source", string(invoice.ProducerCreate), "Endpoint that produced the JSON: create, edit or draft")
}

func runRender(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("render-cmd")

	outputPath, _ := cmd.Flags().GetString("output")
	priorPath, _ := cmd.Flags().GetString("prior")
	templatePath, _ := cmd.Flags().GetString("template")
	source, _ := cmd.Flags().GetString("source")

	producer := invoice.Producer(source)
	now := time.Now()

	rec, err := loadRecord(args[0], producer, now, log)
	if err != nil {
		return err
	}
	var prior *models.InvoiceRecord
	if priorPath != "" {
		if prior, err = loadRecord(priorPath, producer, now, log); err != nil {
			return err
		}
	}

	if templatePath == "" {
		templatePath = appConfig.TemplatePath
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	html := render.NewRenderer(render.SourceFor(templatePath)).Render(ctx, rec, prior)
	return writeOutput(cmd, outputPath, []byte(html), log)
}

// loadRecord reads and normalizes one invoice JSON file.
func loadRecord(path string, producer invoice.Producer, now time.Time, log zerolog.Logger) (*models.InvoiceRecord, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rec, err := invoice.NormalizeJSON(producer, body, now)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Invalid invoice record")
		return nil, fmt.Errorf("invalid invoice record in %s: %w", path, err)
	}
	return rec, nil
}

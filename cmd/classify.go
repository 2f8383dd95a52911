package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"invoicechat/internal/conversation"
	"invoicechat/internal/intent"
	"invoicechat/internal/logger"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Show whether a message would be sent as an edit or a new request",
	Example: `  invoicechat classify "Change the recipient to John Smith"
  invoicechat classify "update it" --context invoice_created`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("context", string(conversation.ContextParsing),
		"Conversation context: parsing, invoice_created, viewing_invoice, editing, general_chat, product_search")
}

func runClassify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("classify")

	ctxTag, _ := cmd.Flags().GetString("context")
	message := strings.Join(args, " ")

	in := intent.Classify(message, conversation.ContextTag(ctxTag))
	log.Debug().
		Str("context", ctxTag).
		Str("intent", in.String()).
		Msg("Classified message")

	fmt.Fprintln(cmd.OutOrStdout(), in.String())
	return nil
}

package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/go-go-golems/datalens/pkg/api"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question and print the answer",
		Long: "Ask a single question. Reference collections with @name or @owner:name. " +
			"The question is read from stdin when no arguments are given.",
		RunE: runAsk,
	}
	cmd.Flags().String("session", "", "Continue an existing conversation")
	cmd.Flags().Bool("copy-query", false, "Copy the generated query to the clipboard")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	if strings.TrimSpace(question) == "" {
		in, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "read question from stdin")
		}
		question = string(in)
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("no question given")
	}

	a, err := NewApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.Controller(nil, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := ctrl.LoadModels(ctx); err != nil {
		log.Debug().Err(err).Msg("using configured model")
	}
	if id, _ := cmd.Flags().GetString("session"); id != "" {
		if err := ctrl.Sessions().SwitchTo(ctx, id); err != nil {
			if api.IsNotFound(err) {
				return errors.Errorf("conversation %s not found, see 'datalens sessions list'", id)
			}
			return wrapUnauthorized(errors.Wrapf(err, "open conversation %s", id))
		}
	}

	reply, err := ctrl.Send(ctx, question)
	if err != nil {
		if api.IsUnauthorized(err) {
			return wrapUnauthorized(err)
		}
		return errors.New(chat.DescribeError(err, "Something went wrong. Please try again."))
	}

	if err := printMarkdown(cmd.OutOrStdout(), answerMarkdown(reply)); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", ctrl.State().ActiveSessionID)

	if copyQuery, _ := cmd.Flags().GetBool("copy-query"); copyQuery {
		if reply.QueryText == "" {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no query to copy")
			return nil
		}
		if err := clipboard.WriteAll(reply.QueryText); err != nil {
			return errors.Wrap(err, "copy query to clipboard")
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "query copied to clipboard")
	}
	return nil
}

// wrapUnauthorized points at the token settings when the backend rejected
// the configured token.
func wrapUnauthorized(err error) error {
	if !api.IsUnauthorized(err) {
		return err
	}
	return errors.New("the backend rejected the token; pass --token or set DATALENS_TOKEN")
}

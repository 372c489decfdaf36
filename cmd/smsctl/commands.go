package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/hebes/smscrm/internal/domain"
)

var senderFlag = &cli.StringFlag{
	Name:     "sender",
	Aliases:  []string{"s"},
	Usage:    "Sender phone number id",
	Required: true,
	EnvVars:  []string{"SMSCRM_SENDER"},
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Find or create the conversation for a customer phone",
	ArgsUsage: "PHONE",
	Flags:     []cli.Flag{senderFlag},
	Action:    cmdResolve,
}

func cmdResolve(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a customer phone")
	}
	res, err := getClient(ctx).Resolve(ctx.Context, ctx.Args().Get(0), ctx.String("sender"))
	if err != nil {
		return err
	}
	fmt.Printf("%s (source=%s created=%t participants_added=%d)\n",
		res.ConversationKey, res.Source, res.Created, res.ParticipantsAdded)
	return nil
}

var conversationsCommand = &cli.Command{
	Name:    "conversations",
	Aliases: []string{"ls"},
	Usage:   "List conversations",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "sender-phone",
			Usage: "Only conversations involving this business phone",
		},
	},
	Action: cmdConversations,
}

func cmdConversations(ctx *cli.Context) error {
	convs, err := getClient(ctx).ListConversations(ctx.Context, ctx.String("sender-phone"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tPHONE\tCONTACT\tMESSAGES\tLAST")
	for _, c := range convs {
		name := ""
		if c.Contact != nil {
			name = c.Contact.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ConversationID, c.PhoneNumber, name, c.MessageCount, truncate(c.LastMessage.Body, 40))
	}
	return w.Flush()
}

var messagesCommand = &cli.Command{
	Name:      "messages",
	Usage:     "Show the messages of a conversation",
	ArgsUsage: "KEY",
	Action:    cmdMessages,
}

func cmdMessages(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a conversation key")
	}
	messages, err := getClient(ctx).ConversationMessages(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	for _, m := range messages {
		arrow := "<-"
		if m.Direction == domain.DirectionOutbound {
			arrow = "->"
		}
		fmt.Printf("%s %s %s [%s] %s\n", m.Timestamp().Format("2006-01-02 15:04:05"), arrow, m.CustomerPhone(), m.Status, m.Body)
	}
	return nil
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "Delete a conversation and its messages",
	ArgsUsage: "KEY",
	Action:    cmdDelete,
}

func cmdDelete(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a conversation key")
	}
	res, err := getClient(ctx).DeleteConversation(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d messages from %s\n", res.DeletedCount, res.ConversationKey)
	if res.RemoteError != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to delete remote conversation: %s\n", res.RemoteError)
	}
	return nil
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send an SMS",
	ArgsUsage: "PHONE MESSAGE...",
	Flags:     []cli.Flag{senderFlag},
	Action:    cmdSend,
}

func cmdSend(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return fmt.Errorf("you must specify a phone and a message")
	}
	resp, err := getClient(ctx).Send(ctx.Context, domain.SendRequest{
		To:                  ctx.Args().Get(0),
		Message:             strings.Join(ctx.Args().Tail(), " "),
		SenderPhoneNumberID: ctx.String("sender"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Sent %s via %s (conversation %s, status %s)\n", resp.MessageID, resp.Via, resp.ConversationKey, resp.Status)
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

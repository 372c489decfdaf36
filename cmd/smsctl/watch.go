package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/hebes/smscrm/internal/domain"
)

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "Stream message events",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "sender-phone",
			Usage: "Only events for this business phone",
		},
	},
	Action: cmdWatch,
}

func cmdWatch(ctx *cli.Context) error {
	addr := getClient(ctx).StreamURL(ctx.String("sender-phone"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx.Context, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			printEvent(data)
		}
	}()

	select {
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	}
}

func printEvent(data []byte) {
	var evt domain.MessageEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: bad event: %v\n", err)
		return
	}
	switch {
	case evt.Message != nil:
		fmt.Printf("[%s] %s %s %s: %s\n", evt.Type, evt.SenderPhone, evt.ConversationKey, evt.Message.Status, evt.Message.Body)
	case evt.ConversationKey != "":
		fmt.Printf("[%s] %s %s\n", evt.Type, evt.SenderPhone, evt.ConversationKey)
	default:
		fmt.Printf("[%s] %s\n", evt.Type, string(data))
	}
}

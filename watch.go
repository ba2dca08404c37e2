package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the WebSocket endpoint and print live events",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			token, _ := cmd.Flags().GetString("token")
			user, _ := cmd.Flags().GetString("user")
			sessionID, _ := cmd.Flags().GetString("session")

			if token == "" {
				if user == "" {
					return errors.New("either --token or --user is required")
				}
				var err error
				if token, err = issueToken(cmd, user, time.Hour); err != nil {
					return err
				}
			}

			client, err := dialWatcher(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			userID, err := client.Hello(token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Connected as %s\n", userID)

			if sessionID != "" {
				if err := client.Join(sessionID); err != nil {
					return err
				}
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			defer signal.Stop(interrupt)

			done := make(chan error, 1)
			go func() { done <- client.Print(cmd.OutOrStdout()) }()

			select {
			case <-interrupt:
				return nil
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().String("addr", "ws://localhost:8080/ws", "WebSocket endpoint")
	cmd.Flags().String("token", "", "bearer token")
	cmd.Flags().String("user", "", "issue a token for this user with the configured secret")
	cmd.Flags().String("session", "", "session to join after connecting")
	return cmd
}

// watcher is a minimal WebSocket client for the gateway.
type watcher struct {
	conn *websocket.Conn
}

func dialWatcher(addr string) (*watcher, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &watcher{conn: conn}, nil
}

func (w *watcher) Close() error {
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.conn.Close()
}

// Hello authenticates and returns the user ID acknowledged by the server.
func (w *watcher) Hello(token string) (string, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHello, ""),
		Token:       token,
		ClientMeta:  map[string]string{"client": "openai-like-api-watch"},
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		return "", errors.Wrap(err, "write hello")
	}

	data, err := w.expect(protocol.TypeHelloAck)
	if err != nil {
		return "", err
	}
	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", errors.Wrap(err, "unmarshal hello_ack")
	}
	return ack.UserID, nil
}

// Join follows sessionID and waits for the confirmation.
func (w *watcher) Join(sessionID string) error {
	if err := w.conn.WriteJSON(protocol.NewBase(protocol.TypeJoinSession, sessionID)); err != nil {
		return errors.Wrap(err, "write join")
	}
	_, err := w.expect(protocol.TypeSessionJoined)
	return err
}

// expect reads the next frame and fails unless it has the wanted type.
func (w *watcher) expect(want string) ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", want)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s", want)
	}
	if base.Type == protocol.TypeError {
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(data, &msg)
		return nil, errors.Errorf("%s failed: %s - %s", want, msg.Code, msg.Message)
	}
	if base.Type != want {
		return nil, errors.Errorf("expected %s, got: %s", want, base.Type)
	}
	return data, nil
}

// Print writes every received frame to out until the connection closes.
func (w *watcher) Print(out io.Writer) error {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errors.Wrap(err, "read")
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			pretty.Write(data)
		}
		fmt.Fprintf(out, "\n[%s]\n%s\n", base.Type, pretty.String())
	}
}

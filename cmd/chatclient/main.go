// chatclient 是聊天室的終端機客戶端
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"award_chat/internal/models"
	"award_chat/pkg/logger"
)

var (
	addr     = flag.String("addr", "localhost:8080", "http service address")
	name     = flag.String("name", "", "display name")
	category = flag.String("category", "", "award category to join")
)

func main() {
	flag.Parse()
	logger.Setup("info", true)

	if *name == "" || *category == "" {
		fmt.Fprintln(os.Stderr, "both -name and -category are required")
		flag.Usage()
		os.Exit(2)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("failed to connect")
	}
	defer conn.Close()

	v := newView(os.Stdout)
	done := make(chan struct{})
	go readEvents(conn, v, done)

	if err := send(conn, models.JoinEvent{Name: *name, Category: *category}); err != nil {
		log.Fatal().Err(err).Msg("failed to join")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			closeConn(conn)
			return
		case line, ok := <-lines:
			if !ok {
				closeConn(conn)
				return
			}
			if quit := handleLine(conn, v, line); quit {
				closeConn(conn)
				return
			}
		}
	}
}

func handleLine(conn *websocket.Conn, v *view, line string) bool {
	evt, cmd, err := parseLine(line, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stdout, color.Red.Sprint(err))
		return false
	}

	switch cmd {
	case cmdRooms:
		v.showRooms()
	case cmdPoll:
		v.showPoll()
	case cmdHelp:
		fmt.Fprintln(os.Stdout, errUsage.Error())
	case cmdQuit:
		return true
	}

	if evt != nil {
		if err := send(conn, evt); err != nil {
			log.Error().Err(err).Msg("failed to send")
		}
	}
	return false
}

func readEvents(conn *websocket.Conn, v *view, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("connection closed")
			}
			return
		}

		evt, err := models.DecodeServerEvent(data)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable event")
			continue
		}
		v.apply(evt)
	}
}

func send(conn *websocket.Conn, evt models.ClientEvent) error {
	data, err := models.EncodeClientEvent(evt)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/user"
	"strings"

	"github.com/mrnul/Chat/internal/client"
)

func main() {
	serverAddr := flag.String("server", "localhost:16000", "Server address (host:port)")
	wsURL := flag.String("ws-url", "", "Connect via WebSocket URL instead of TCP (e.g. wss://localhost:16001/ws)")
	name := flag.String("name", "", "Display name (defaults to the local account name)")
	insecure := flag.Bool("insecure", true, "Skip server certificate verification (self-signed deployments)")
	flag.Parse()

	displayName := *name
	if displayName == "" {
		if u, err := user.Current(); err == nil {
			displayName = u.Username
		}
	}

	dial := client.TCPDialer(*serverAddr, *insecure)
	if *wsURL != "" {
		dial = client.WSDialer(*wsURL, *insecure)
	}

	c := client.New(dial, displayName)
	go c.Run()
	go printEvents(c)

	fmt.Println("Commands: /name <name> renames, @id1,id2 <text> sends to listed ids,")
	fmt.Println("plain text sends to everyone, /quit exits.")

	var msgID int64
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			c.Shutdown()
			return
		case strings.HasPrefix(line, "/name "):
			if err := c.SetName(strings.TrimSpace(strings.TrimPrefix(line, "/name "))); err != nil {
				log.Printf("Failed to rename: %v", err)
			}
		case strings.HasPrefix(line, "@"):
			ids, text, ok := strings.Cut(line[1:], " ")
			if !ok {
				fmt.Println("Usage: @id1,id2 <text>")
				continue
			}
			msgID++
			if err := c.SendMessage(strings.Split(ids, ","), text, msgID); err != nil {
				log.Printf("Failed to send message: %v", err)
			}
		default:
			recipients := make([]string, 0)
			for id := range c.Clients() {
				if id != c.ID() {
					recipients = append(recipients, id)
				}
			}
			if len(recipients) == 0 {
				fmt.Println("Nobody else is connected")
				continue
			}
			msgID++
			if err := c.SendMessage(recipients, line, msgID); err != nil {
				log.Printf("Failed to send message: %v", err)
			}
		}
	}

	c.Shutdown()
}

// printEvents renders session events until the client shuts down.
func printEvents(c *client.Client) {
	for event := range c.Events() {
		switch e := event.(type) {
		case client.StatusEvent:
			fmt.Printf("*** %s\n", e.Text)
		case client.ClientListEvent:
			fmt.Printf("*** %d client(s) online\n", len(e.Clients))
			for id, name := range e.Clients {
				fmt.Printf("    %s  %s\n", id, name)
			}
		case client.PresenceEvent:
			msg := e.Message
			switch {
			case msg.ID != "" && msg.Name != nil:
				fmt.Printf("*** %s %s: %s\n", msg.Info, msg.ID, *msg.Name)
			default:
				fmt.Printf("*** %s (msg %d)\n", msg.Info, msg.MsgID)
			}
		case client.MessageEvent:
			fmt.Printf("[%s]: %s\n", e.From, e.Text)
		}
	}
}

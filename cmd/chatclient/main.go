package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/garden-chat-go/application"
	"github.com/lk2023060901/garden-chat-go/internal/chat/client"
	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
)

const usageText = `Commands:
  DM <user> <message>          send a direct message
  MULTI <u1,u2,...> <message>  send to several users
  BROADCAST <message>          send to everyone online
  USERS                        list online users
  LOGOUT                       leave the chat
  HELP                         show this help`

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "chat server address")
	user := flag.String("user", "", "username (prompted when empty)")
	pass := flag.String("pass", "", "password (prompted when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(application.VersionString())
		return
	}

	if err := run(*addr, *user, *pass); err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, user, pass string) error {
	stdin := bufio.NewScanner(os.Stdin)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := client.Dial(ctx, client.Config{Addr: addr})
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := login(c, stdin, user, pass); err != nil {
		return err
	}

	c.Start(printMessage)
	fmt.Println(usageText)

	go func() {
		<-c.Done()
		fmt.Println("Disconnected from server.")
		os.Exit(0)
	}()

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if done, err := execute(c, line); err != nil {
			return err
		} else if done {
			return nil
		}
	}
	return c.Logout()
}

// login drives the interactive login loop, re-prompting while the server
// reports a retriable password failure.
func login(c *client.Client, stdin *bufio.Scanner, user, pass string) error {
	for {
		username := user
		if username == "" {
			username = prompt(stdin, "Username: ")
		}
		password := pass
		if password == "" {
			password = prompt(stdin, "Password: ")
		}

		resp, err := c.Login(username, password)
		if err != nil {
			return err
		}
		if resp.OK {
			fmt.Println(resp.Msg)
			return nil
		}

		fmt.Printf("Login failed: %s\n", resp.Reason)
		if !strings.HasPrefix(resp.Reason, "Invalid password (") {
			return fmt.Errorf("login rejected: %s", resp.Reason)
		}
		// Only the password can be wrong here; force a fresh prompt.
		pass = ""
	}
}

// execute runs one REPL command. The bool result reports whether the user
// asked to leave.
func execute(c *client.Client, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")

	switch strings.ToUpper(cmd) {
	case "DM":
		to, msg, ok := strings.Cut(rest, " ")
		if !ok || to == "" {
			fmt.Println("Usage: DM <user> <message>")
			return false, nil
		}
		return false, c.SendDM(to, msg)

	case "MULTI":
		list, msg, ok := strings.Cut(rest, " ")
		if !ok || list == "" {
			fmt.Println("Usage: MULTI <u1,u2,...> <message>")
			return false, nil
		}
		return false, c.SendMulti(strings.Split(list, ","), msg)

	case "BROADCAST":
		if rest == "" {
			fmt.Println("Usage: BROADCAST <message>")
			return false, nil
		}
		return false, c.Broadcast(rest)

	case "USERS":
		return false, c.RequestUsers()

	case "LOGOUT":
		return true, c.Logout()

	case "HELP":
		fmt.Println(usageText)
		return false, nil

	default:
		fmt.Printf("Unknown command %q, try HELP\n", cmd)
		return false, nil
	}
}

func printMessage(m protocol.Message) {
	switch msg := m.(type) {
	case *protocol.DM:
		fmt.Printf("[DM from %s] %s\n", msg.From, msg.Msg)
	case *protocol.Multi:
		fmt.Printf("[MULTI from %s] %s\n", msg.From, msg.Msg)
	case *protocol.Broadcast:
		fmt.Printf("[BROADCAST from %s] %s\n", msg.From, msg.Msg)
	case *protocol.UsersResp:
		fmt.Printf("Online users: %s\n", strings.Join(msg.Users, ", "))
	case *protocol.ErrorMsg:
		fmt.Printf("[ERROR] %s\n", msg.Msg)
	default:
		fmt.Printf("[%s]\n", msg.Kind())
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

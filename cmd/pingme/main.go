package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"pingme-link/internal/api"
	"pingme-link/internal/chat"
	"pingme-link/internal/config"
	"pingme-link/internal/device"
	"pingme-link/internal/model"
	"pingme-link/internal/pairing"
	"pingme-link/internal/router"
	"pingme-link/internal/secret"
	"pingme-link/internal/session"
	"pingme-link/internal/socketio"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	apiClient, err := api.New(cfg.ServerURL)
	if err != nil {
		log.Fatal(err)
	}
	cipher, err := secret.New(cfg.MessageSecret)
	if err != nil {
		log.Fatal(err)
	}

	channel := socketio.NewClient(socketio.ClientConfig{BaseURL: cfg.ServerURL})
	devices := device.NewStore(cfg.StateDir)
	sessions := session.NewManager(apiClient, devices, channel)

	done := make(chan struct{})
	stop := sync.OnceFunc(func() { close(done) })
	sessions.OnEnd(func(reason string) {
		fmt.Printf("\nsession ended: %s\n", reason)
		stop()
	})

	sess, err := sessions.Resume()
	if err != nil {
		log.Fatal(err)
	}
	if sess == nil {
		sess, err = pairUp(cfg, channel, sessions)
		if err != nil {
			log.Fatal(err)
		}
	}
	fmt.Printf("linked as %s (%s)\n", sess.User.FullName, sess.User.ID)

	chats := chat.NewStore()
	rt := router.New(router.Config{
		Channel:  channel,
		DeviceID: sess.DeviceID,
		Chat:     &consoleChat{Store: chats},
		Cipher:   cipher,
		OnRoster: func(ids []string) {
			fmt.Printf("online: %s\n", strings.Join(ids, ", "))
		},
		OnUnlinked: sessions.HandleRemoteUnlink,
	})
	rt.Attach()
	defer rt.Close()

	go repl(apiClient, chats, rt, cipher, sessions, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
	}
	channel.Disconnect()
}

// pairUp drives the pairing handshake: display each code the backend
// pushes and block until the phone approves one.
func pairUp(cfg config.Config, channel *socketio.Client, sessions *session.Manager) (*session.Session, error) {
	paired := make(chan error, 1)
	coord := pairing.New(pairing.Config{
		Channel:      channel,
		RefreshEvery: cfg.RefreshEvery,
		Bootstrap: func(token string) error {
			_, err := sessions.Bootstrap(token)
			paired <- err
			return err
		},
		OnCode: func(code string) {
			if code != "" {
				fmt.Printf("pairing code: %s  (enter it in the PingMe app)\n", code)
			}
		},
		OnError: func(err error) {
			fmt.Printf("pairing failed: %v, waiting for a new code\n", err)
		},
	})
	if err := coord.Start(); err != nil {
		return nil, err
	}
	defer coord.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case err := <-paired:
			if err != nil {
				// Coordinator returns to idle; a fresh Start gets a
				// fresh code.
				if startErr := coord.Start(); startErr != nil {
					return nil, startErr
				}
				continue
			}
			return sessions.Current(), nil
		case <-sig:
			return nil, fmt.Errorf("interrupted before pairing completed")
		}
	}
}

// consoleChat mirrors delivered messages to stdout on top of the in-memory
// conversation state.
type consoleChat struct {
	*chat.Store
}

func (c *consoleChat) Append(m model.Message) {
	c.Store.Append(m)
	fmt.Printf("[%s] %s\n", m.SenderID, m.Text)
}

func repl(apiClient *api.Client, chats *chat.Store, rt *router.Router, cipher *secret.Cipher, sessions *session.Manager, stop func()) {
	fmt.Println("commands: /users /open <id> /devices /unlink <deviceId> /logout; anything else sends to the open chat")
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/users":
			users, err := apiClient.Users()
			if err != nil {
				fmt.Printf("users: %v\n", err)
				continue
			}
			for _, u := range users {
				marker := " "
				if rt.IsOnline(u.ID) {
					marker = "*"
				}
				fmt.Printf("%s %s  %s  (unread %d)\n", marker, u.ID, u.FullName, chats.Unread(u.ID))
			}
		case "/open":
			if len(fields) < 2 {
				fmt.Println("usage: /open <userId>")
				continue
			}
			openConversation(apiClient, chats, rt, cipher, fields[1])
		case "/devices":
			list, err := apiClient.Devices()
			if err != nil {
				fmt.Printf("devices: %v\n", err)
				continue
			}
			for _, d := range list {
				fmt.Printf("%s  %s  (%s)\n", d.DeviceID, d.DeviceName, d.UserAgent)
			}
		case "/unlink":
			if len(fields) < 2 {
				fmt.Println("usage: /unlink <deviceId>")
				continue
			}
			if err := apiClient.UnlinkDevice(fields[1]); err != nil {
				fmt.Printf("unlink: %v\n", err)
			}
		case "/logout":
			if err := sessions.Logout(); err != nil {
				fmt.Printf("logout: %v\n", err)
			}
			return
		default:
			sendToOpenChat(apiClient, chats, cipher, line)
		}
	}
	stop()
}

func openConversation(apiClient *api.Client, chats *chat.Store, rt *router.Router, cipher *secret.Cipher, userID string) {
	msgs, err := apiClient.Messages(userID)
	if err != nil {
		fmt.Printf("open: %v\n", err)
		return
	}
	chats.Select(userID)
	for _, m := range msgs {
		fmt.Printf("[%s] %s\n", m.SenderID, cipher.Decrypt(m.Text))
	}
	if err := rt.MarkSeen(userID); err != nil {
		fmt.Printf("mark seen: %v\n", err)
	}
}

func sendToOpenChat(apiClient *api.Client, chats *chat.Store, cipher *secret.Cipher, text string) {
	to := chats.Selected()
	if to == "" {
		fmt.Println("no open chat; use /open <userId> first")
		return
	}
	sealed, err := cipher.Encrypt(text)
	if err != nil {
		fmt.Printf("send: %v\n", err)
		return
	}
	if _, err := apiClient.SendMessage(to, sealed, ""); err != nil {
		fmt.Printf("send: %v\n", err)
	}
}

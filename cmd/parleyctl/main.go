package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parleylabs/parley-core/internal/protocol"
)

var version = "0.1.0-dev"

const defaultServer = "nats://localhost:4222"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runCommand(os.Args[2:], "start", protocol.SubjectConversationStart)
	case "stop":
		err = runCommand(os.Args[2:], "stop", protocol.SubjectConversationStop)
	case "send":
		err = runSend(os.Args[2:])
	case "profiles":
		err = runProfiles(os.Args[2:])
	case "diag":
		err = runDiag(os.Args[2:])
	case "listen-test":
		err = runListenTest(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "expected 'start', 'stop', 'send', 'profiles', 'diag', 'listen-test', 'watch' or 'version'")
}

func connect(server string) (*nats.Conn, error) {
	nc, err := nats.Connect(server, nats.Name("parleyctl"), nats.Timeout(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", server, err)
	}
	return nc, nil
}

func request(server, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	nc, err := connect(server)
	if err != nil {
		return nil, err
	}
	defer nc.Close()
	msg, err := nc.Request(subject, payload, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

func printAck(data []byte) error {
	var ack protocol.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("rejected: %s", ack.Error)
	}
	fmt.Println("ok")
	return nil
}

func runCommand(args []string, name, subject string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	fs.Parse(args)

	data, err := request(*server, subject, nil, 10*time.Second)
	if err != nil {
		return err
	}
	return printAck(data)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	text := fs.String("text", "", "Utterance to submit")
	fs.Parse(args)
	if *text == "" {
		return fmt.Errorf("send requires -text")
	}

	payload, err := json.Marshal(protocol.SendTextRequest{Text: *text})
	if err != nil {
		return err
	}
	// The reply arrives after the full turn, so leave generous room.
	data, err := request(*server, protocol.SubjectChatSend, payload, 60*time.Second)
	if err != nil {
		return err
	}
	return printAck(data)
}

func runProfiles(args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	input := fs.String("input", "", "Language to listen in")
	output := fs.String("output", "", "Language to reply in")
	fs.Parse(args)
	if *input == "" || *output == "" {
		return fmt.Errorf("profiles requires -input and -output")
	}

	payload, err := json.Marshal(protocol.ProfileUpdate{InputLanguage: *input, OutputLanguage: *output})
	if err != nil {
		return err
	}
	data, err := request(*server, protocol.SubjectSettingsProfiles, payload, 10*time.Second)
	if err != nil {
		return err
	}
	return printAck(data)
}

func runDiag(args []string) error {
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	fs.Parse(args)

	data, err := request(*server, protocol.SubjectDiagRequest, nil, 10*time.Second)
	if err != nil {
		return err
	}
	var report protocol.DiagReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("decode diag report: %w", err)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runListenTest(args []string) error {
	fs := flag.NewFlagSet("listen-test", flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	fs.Parse(args)

	fmt.Println("say something...")
	data, err := request(*server, protocol.SubjectDiagListen, nil, 45*time.Second)
	if err != nil {
		return err
	}
	var result protocol.ListenTestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("listen test failed: %s", result.Error)
	}
	fmt.Printf("heard: %q\n", result.Transcript)
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", defaultServer, "NATS server URL")
	fs.Parse(args)

	nc, err := connect(*server)
	if err != nil {
		return err
	}
	defer nc.Close()

	chatSub, err := nc.Subscribe(protocol.SubjectChatMessage, func(msg *nats.Msg) {
		var chat protocol.ChatMessage
		if err := json.Unmarshal(msg.Data, &chat); err != nil {
			return
		}
		fmt.Printf("%s [%s] %s\n", chat.Timestamp.Local().Format("15:04:05"), chat.Kind, chat.Text)
	})
	if err != nil {
		return err
	}
	defer chatSub.Unsubscribe()

	stateSub, err := nc.Subscribe(protocol.SubjectConversationState, func(msg *nats.Msg) {
		var st protocol.StateUpdate
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			return
		}
		fmt.Printf("%s [state] phase=%s active=%t\n", st.Timestamp.Local().Format("15:04:05"), st.Phase, st.Active)
	})
	if err != nil {
		return err
	}
	defer stateSub.Unsubscribe()

	fmt.Println("watching conversation, press Ctrl-C to exit")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

// Command agentflow-watch follows the live feed of one run key over WebSocket.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/xiaot623/agentflow/internal/protocol"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket server address")
	runKey := flag.String("run-key", "CASE-1001", "Run key to watch")
	run := flag.Bool("run", false, "Start the run, print its feed and exit when it ends")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	view, err := client.SendHello(*runKey)
	if err != nil {
		log.Fatalf("Hello failed: %v", err)
	}
	fmt.Printf("Watching %s\n%s\n", *runKey, formatView(view))

	if *run {
		if err := client.SendTrigger(protocol.TypeRunAgent); err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		client.ReadMessages(true)
		return
	}

	fmt.Println("\nCommands: /run /cancel /reset /quit")

	// Start reading messages in background
	go client.ReadMessages(false)

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		client.Close()
		os.Exit(0)
	}()

	commands := map[string]string{
		"/run":    protocol.TypeRunAgent,
		"/cancel": protocol.TypeCancelAgent,
		"/reset":  protocol.TypeResetAgent,
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			fmt.Println("Bye!")
			return
		}

		msgType, ok := commands[input]
		if !ok {
			fmt.Printf("unknown command %q\n", input)
			continue
		}
		if err := client.SendTrigger(msgType); err != nil {
			log.Printf("Send error: %v", err)
		}
	}
}

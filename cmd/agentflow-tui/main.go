// Command agentflow-tui drives the scenario catalog in-process and renders the
// live run in the terminal.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/logging"
	"github.com/xiaot623/agentflow/internal/stream"
)

const mockPath = "/mock/invoice/stream"

func discardLogger() *slog.Logger { return logging.Discard() }

// serveMock starts the mock streaming backend on a free local port.
func serveMock(delay time.Duration) (string, func(), error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	stream.NewMockBackend(delay).Register(e, mockPath)

	srv := &http.Server{Handler: e}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "mock backend stopped: %v\n", err)
		}
	}()
	return "http://" + l.Addr().String() + mockPath, func() { srv.Close() }, nil
}

func main() {
	scenarioFile := flag.String("scenarios", "", "YAML file with extra scenarios")
	timeScale := flag.Float64("time-scale", 1.0, "Multiplier applied to stage intervals")
	backend := flag.String("backend", "", "Streaming backend URL; empty serves the mock backend")
	flag.Parse()

	cat, err := catalog.Load(*scenarioFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	backendURL := *backend
	if backendURL == "" {
		url, stop, err := serveMock(60 * time.Millisecond)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer stop()
		backendURL = url
	}

	factory := lifecycle.NewFactory(lifecycle.FactoryConfig{
		TimeScale:  *timeScale,
		BackendURL: backendURL,
		Logger:     discardLogger(),
	})

	p := tea.NewProgram(newModel(cat, factory), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/skratchdot/open-golang/open"
	"log"
	"mmiosim/bridge"
	"mmiosim/console"
	"mmiosim/engine"
	"mmiosim/hostserial"
	"mmiosim/machine"
	"mmiosim/rpc"
	"mmiosim/statsview"
	"mmiosim/util"
	"mmiosim/webui/dist"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// include these device drivers:
import (
	_ "mmiosim/periph/led"
	_ "mmiosim/periph/sevenseg"
	_ "mmiosim/periph/uart"
)

const (
	defaultListenPort = 5500
	histogramBins     = 20
)

var (
	listenHost  string // hostname/ip to listen on for webserver
	listenPort  int    // port number to listen on for webserver
	browserHost string // hostname to send as part of URL to browser to connect to webserver
	browserUrl  string // full URL that is sent to browser (composed of browserHost:listenPort)
	grpcListen  string // host:port of the gRPC bus service; "off" disables it
	logPath     string
	logger      *util.PanicSafeLogger

	// set up by main for the tray menu:
	resetMachine func()
	quit         context.CancelFunc
)

var (
	configPath  = flag.String("config", "", "machine layout JSON file (default layout when empty)")
	programPath = flag.String("program", "", "program image JSON file to load at startup")
	consoleMode = flag.Bool("console", false, "attach this terminal to the UART")
	serialPort  = flag.String("serial", "", "host serial port to attach to the UART")
	serialBaud  = flag.Int("baud", 0, "host serial port baud rate")
	listPorts   = flag.Bool("list-ports", false, "list host serial ports and exit")
	showStats   = flag.Bool("stats", false, "record bridge sample latency and serve runtime stats")
	noBrowser   = flag.Bool("no-browser", false, "do not open the web UI in a browser")
	banner      = flag.String("banner", "", "text received by the UART shortly after startup")
	trace       = flag.Bool("trace", false, "log every bus access")
)

func orElse(a, b string) string {
	if a == "" {
		return b
	}
	return a
}

// init is called first before all other package inits so it is best to set up log here:
func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)

	ts := time.Now().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	logPath = filepath.Join(os.TempDir(), fmt.Sprintf("mmiosim-%s.log", ts))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		log.Printf("logging to '%s'\n", logPath)
		logger = util.NewPanicSafeLogger(logFile)
		log.SetOutput(logger)
	} else {
		log.Printf("could not open log file '%s' for writing\n", logPath)
	}
}

func main() {
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			os.Exit(2)
		}
	}()

	flag.Parse()

	if *listPorts {
		ports, err := hostserial.List()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	var err error

	// Parse env vars:
	listenHost = orElse(os.Getenv("MMIOSIM_WEB_LISTEN_HOST"), "0.0.0.0")
	listenPort, err = strconv.Atoi(orElse(os.Getenv("MMIOSIM_WEB_LISTEN_PORT"), strconv.Itoa(defaultListenPort)))
	if err != nil || listenPort <= 0 {
		listenPort = defaultListenPort
	}
	listenAddr := net.JoinHostPort(listenHost, strconv.Itoa(listenPort))

	browserHost = orElse(os.Getenv("MMIOSIM_WEB_BROWSER_HOST"), "127.0.0.1")
	browserUrl = fmt.Sprintf("http://%s:%d/", browserHost, listenPort)

	grpcListen = orElse(os.Getenv("MMIOSIM_GRPC_LISTEN"), "127.0.0.1:5501")

	*serialPort = orElse(*serialPort, os.Getenv("MMIOSIM_SERIAL_PORT"))
	if *serialBaud == 0 {
		*serialBaud, _ = strconv.Atoi(os.Getenv("MMIOSIM_SERIAL_BAUD"))
	}

	// the terminal belongs to the UART; keep the log in its file:
	if *consoleMode && logger != nil {
		logger.Quiet()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	quit = cancel

	// build the machine:
	cfg := machine.DefaultConfig()
	if *configPath != "" {
		cfg, err = machine.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	m, err := machine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if *trace {
		m.SetLogger(log.Writer())
	}

	// loading resets the machine, so do it before anything observes it:
	if *programPath != "" {
		p, err := machine.LoadProgramFile(*programPath)
		if err != nil {
			log.Fatal(err)
		}
		if err = m.LoadProgram(p); err != nil {
			log.Fatal(err)
		}
	}

	// every presentation sink hangs off one hub:
	hub := bridge.NewHub()

	var stats *bridge.Stats
	if *showStats {
		stats = bridge.NewStats(0)
		statsview.Launch(log.Writer())
	}

	b, err := bridge.New(m, hub, bridge.Options{
		Banner: *banner,
		Stats:  stats,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()
	b.WatchDevices()

	// construct our viewModel and web server:
	viewModel := engine.NewViewModel(m)
	viewModel.ProvideBridge(b)
	hub.Subscribe(viewModel)
	resetMachine = viewModel.Reset

	webServer := NewWebServer(listenAddr, dist.Content)

	// inform viewModel of web server and vice versa:
	viewModel.ProvideViewNotifier(webServer)
	webServer.ProvideViewCommandHandler(viewModel)

	// start the web server:
	go func() {
		if err := webServer.Serve(ctx); err != nil {
			log.Fatal(err)
		}
	}()

	// remote Processors:
	if grpcListen != "off" {
		lis, err := net.Listen("tcp", grpcListen)
		if err != nil {
			log.Fatal(err)
		}
		gs := rpc.NewGRPCServer(rpc.NewServer(m, b, hub))
		defer gs.Stop()
		go func() {
			log.Printf("rpc: serving on %s\n", lis.Addr())
			if err := gs.Serve(lis); err != nil {
				log.Printf("rpc: %v\n", err)
			}
		}()
	}

	if *serialPort != "" {
		port, err := hostserial.Open(*serialPort, *serialBaud)
		if err != nil {
			log.Fatal(err)
		}
		pt := hostserial.New(port, b)
		hub.Subscribe(pt)
		go func() {
			if err := pt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%v\n", err)
			}
			hub.Unsubscribe(pt)
		}()
	}

	if *consoleMode {
		c := console.New(os.Stdin, os.Stdout, b)
		hub.Subscribe(c)
		go func() {
			err := c.Run(ctx)
			hub.Unsubscribe(c)
			if errors.Is(err, console.ErrInterrupted) {
				cancel()
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%v\n", err)
			}
		}()
	}

	// initialize viewModel now that all dependencies are set up:
	viewModel.Init()

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("bridge: %v\n", err)
		}
	}()

	// start up a systray app (or just open web UI):
	createSystray(ctx)

	if stats != nil {
		_ = stats.WriteHistogram(log.Writer(), histogramBins)
	}
	_ = util.FlushLogger()
}

func openWebUI() {
	if *noBrowser {
		log.Printf("web UI at %s\n", browserUrl)
		return
	}
	err := open.Start(browserUrl)
	if err != nil {
		log.Println(err)
	}
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/lisuiheng/xiaozhi-radio/audio"
	"github.com/lisuiheng/xiaozhi-radio/core"
	"github.com/lisuiheng/xiaozhi-radio/logger"
)

var (
	blue  = color.New(color.FgBlue).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

func main() {
	// 命令行参数
	configPath := flag.String("c", "", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// 加载配置
	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// 交互模式下由用户决定播放什么
	cfg.Stream.AutoStart = false

	// 初始化日志，默认写到 stderr 以免打断提示符
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Outputs: []string{"stderr"},
	}
	if *debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	app, err := core.NewApp(cfg, logger.Logger())
	if err != nil {
		logger.Error("Failed to create radio", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close radio", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := app.Run(ctx); err != nil {
			logger.Error("Radio runtime error", "error", err)
		}
	}()

	startInteractive(app, cfg.Stream.URL)
}

func startInteractive(app *core.App, defaultURL string) {
	ctrl := app.Controller()
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Printf("\n%s ", blue("xiaozhi-radio>"))
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "play":
			url := defaultURL
			if len(args) > 0 {
				url = args[0]
			}
			if url == "" {
				fmt.Printf("%s Usage: play <url>\n", red("✗"))
				continue
			}
			ctrl.Start(url)
			fmt.Printf("%s Opening %s\n", green("✓"), url)
		case "stop":
			ctrl.Start("")
			fmt.Printf("%s Stopped\n", green("✓"))
		case "pause":
			ctrl.PauseResume(audio.Pause)
			fmt.Printf("%s Paused\n", green("✓"))
		case "resume":
			if ctrl.URL() == "" {
				fmt.Printf("%s Nothing to resume\n", red("✗"))
				continue
			}
			ctrl.PauseResume(audio.Resume)
			fmt.Printf("%s Resumed %s\n", green("✓"), ctrl.URL())
		case "toggle":
			ctrl.PauseResume(audio.PauseToggle)
			fmt.Printf("%s %s\n", green("✓"), ctrl.PlaybackStatus())
		case "volume", "vol":
			if len(args) == 0 {
				fmt.Printf("  Volume: %.2f\n", ctrl.Gain())
				continue
			}
			v, err := strconv.ParseFloat(args[0], 32)
			if err != nil || v < 0 || v > 1 {
				fmt.Printf("%s Volume must be between 0 and 1\n", red("✗"))
				continue
			}
			ctrl.SetGain(float32(v))
			fmt.Printf("%s Volume set to %.2f\n", green("✓"), v)
		case "status":
			printStatus(app.Status())
		case "exit", "quit":
			fmt.Println("Exiting...")
			return
		case "help":
			printHelp()
		default:
			fmt.Printf("%s Unknown command: %s\n", red("✗"), cmd)
			printHelp()
		}
	}
}

func printStatus(status core.Status) {
	fmt.Println("\nCurrent Status:")
	fmt.Printf("  State: %s\n", status.Playback)
	fmt.Printf("  URL: %s\n", status.URL)
	fmt.Printf("  Volume: %.2f\n", status.Gain)
	if status.NowPlaying.Title != "" {
		fmt.Printf("  Now playing: %s - %s\n", status.NowPlaying.Artist, status.NowPlaying.Title)
	}
	if status.Pending > 0 {
		fmt.Printf("  Closing: %d stream(s)\n", status.Pending)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  play [url]    - Play a stream (defaults to stream.url)")
	fmt.Println("  stop          - Stop and forget the current stream")
	fmt.Println("  pause         - Pause, keeping the stream URL")
	fmt.Println("  resume        - Reopen the last stream")
	fmt.Println("  toggle        - Toggle pause/resume")
	fmt.Println("  volume [0-1]  - Show or set the volume")
	fmt.Println("  status        - Show current status")
	fmt.Println("  exit/quit     - Exit the program")
	fmt.Println("  help          - Show this help message")
}

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rojolang/esp32-link-go/pkg/esplink"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	url        string
	configPath string
	deviceID   string
	wait       time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "esplink",
		Short: "ESP32 communication aid CLI",
		Long:  "A command-line client for the ESP32 communication aid control channel",
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&url, "url", "", "Device WebSocket URL (ws://host:port/path)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device-id", "", "Client identifier sent on connect")
	rootCmd.PersistentFlags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the device")

	// Add subcommands
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(configureCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		esplink.DefaultLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func loadConfig() (*esplink.LinkConfig, error) {
	var config *esplink.LinkConfig
	if configPath != "" {
		c, err := esplink.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		config = c
	} else {
		config = esplink.NewLinkConfig()
	}

	// Flags take precedence over file and environment
	if url != "" {
		config.URL = url
	}
	if deviceID != "" {
		config.DeviceID = deviceID
	}
	if verbose {
		config.DebugLevel = "DEBUG"
	}
	config.AutoConnect = false
	return config, nil
}

// connectClient builds a client and blocks until it is connected or wait
// elapses.
func connectClient() (*esplink.Client, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if issues := config.Validate(); len(issues) > 0 {
		return nil, esplink.NewConfigError(issues[0])
	}

	client := esplink.NewClient(config)

	connected := make(chan struct{}, 1)
	unsubscribe := client.Subscribe(esplink.CreateConnectionStatusListener(esplink.DefaultLogger(), func(ok bool) {
		if ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	}))
	defer unsubscribe()

	if _, err := client.Connect(); err != nil {
		client.Cleanup()
		return nil, err
	}

	select {
	case <-connected:
		return client, nil
	case <-time.After(wait):
		client.Cleanup()
		return nil, esplink.NewConnectionError(esplink.ErrCodeAttemptTimeout,
			fmt.Sprintf("device did not answer within %s", wait))
	}
}

// request subscribes for the first event accepted by match, sends via send and
// waits for that event.
func request(client *esplink.Client, match func(esplink.Event) bool, send func() bool) (esplink.Event, error) {
	found := make(chan esplink.Event, 1)
	unsubscribe := client.Subscribe(esplink.CreateConditionalListener(match, func(e esplink.Event) {
		select {
		case found <- e:
		default:
		}
	}))
	defer unsubscribe()

	if !send() {
		return nil, esplink.ErrNotConnected
	}

	select {
	case e := <-found:
		return e, nil
	case <-time.After(wait):
		return nil, nil
	}
}

func isType(t esplink.EventType) func(esplink.Event) bool {
	return func(e esplink.Event) bool { return e.EventType() == t }
}

func parsePositive(arg, what string) int {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		esplink.DefaultLogger().WithField(what, arg).Fatal("Expected a positive number")
	}
	return n
}

func monitorCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream device events",
		Long:  "Connect to the device and print every event until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := loadConfig()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to load configuration")
			}

			client := esplink.NewClient(config)
			defer client.Cleanup()

			client.Subscribe(esplink.CreateLoggingListener(esplink.DefaultLogger(), verbose))
			client.SubscribeHandlers(esplink.Handlers{
				OnButtonPressed: func(e esplink.ButtonPressedEvent) {
					fmt.Printf("Button %d pressed (category %d, %s)\n", e.Button, e.Category, e.AudioFile)
				},
				OnCategoryChanged: func(e esplink.CategoryChangedEvent) {
					fmt.Printf("Category changed to %d %s\n", e.Category, e.CategoryName)
				},
				OnError: func(e esplink.ErrorEvent) {
					fmt.Printf("Error: %s\n", e.Message)
				},
			})

			if _, err := client.Connect(); err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connect failed")
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			var timeout <-chan time.Time
			if duration > 0 {
				timeout = time.After(duration)
			}

			fmt.Println("Monitoring device events, press Ctrl+C to stop...")
			select {
			case <-sigs:
			case <-timeout:
			}
			fmt.Println("Stopping monitor")
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print device status",
		Long:  "Request a status report from the device and print it",
		Run: func(cmd *cobra.Command, args []string) {
			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			e, err := request(client, isType(esplink.EventStatusUpdate), client.RequestStatus)
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to send status request")
			}
			if e == nil {
				fmt.Println("No status response from device")
				return
			}
			printStatus(client.Status())
		},
	}

	return cmd
}

func printStatus(s esplink.DeviceStatus) {
	fmt.Println("\n=== Device Status ===")
	fmt.Printf("Connected: %v\n", s.Connected)
	fmt.Printf("Battery: %s\n", intOr(s.Battery, "%d%%"))
	fmt.Printf("Category: %s\n", intOr(s.Category, "%d"))
	fmt.Printf("System On: %s\n", boolOr(s.SystemOn))
	fmt.Printf("MP3 Ready: %s\n", boolOr(s.MP3Ready))
	fmt.Printf("SD Ready: %s\n", boolOr(s.SDReady))
	fmt.Printf("Boot Count: %s\n", intOr(s.BootCount, "%d"))
	fmt.Printf("Uptime: %s\n", intOr(s.UptimeSeconds, "%ds"))
	fmt.Printf("WiFi RSSI: %s\n", intOr(s.WifiRSSI, "%d dBm"))
	fmt.Printf("Free Heap: %s\n", intOr(s.FreeHeapBytes, "%d bytes"))
	if !s.LastHeartbeatAt.IsZero() {
		fmt.Printf("Last Heartbeat: %s\n", s.LastHeartbeatAt.Format(time.RFC3339))
	}
	if len(s.Buttons) > 0 {
		fmt.Println("\nButtons:")
		for _, b := range s.Buttons {
			marker := ""
			if b.Configured {
				marker = " (configured)"
			}
			fmt.Printf("  %d: %s%s %s\n", b.Number, b.AudioFile, marker, b.MessageText)
		}
	}
}

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [button]",
		Short: "Play a button's audio",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			button := parsePositive(args[0], "button")

			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			if !client.PlayAudio(button) {
				esplink.DefaultLogger().Fatal("Failed to send play_audio")
			}
			fmt.Printf("Requested playback of button %d\n", button)
		},
	}

	return cmd
}

func categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category [number]",
		Short: "Switch the active category",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			category := parsePositive(args[0], "category")

			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			e, err := request(client, isType(esplink.EventCategoryChanged), func() bool {
				return client.ChangeCategory(category)
			})
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to send change_category")
			}
			if e != nil {
				ev := e.(esplink.CategoryChangedEvent)
				fmt.Printf("Device switched to category %d %s\n", ev.Category, ev.CategoryName)
				return
			}
			fmt.Println("Request sent, no confirmation from device")
		},
	}

	return cmd
}

func configureCmd() *cobra.Command {
	var (
		messageID    int
		messageText  string
		categoryName string
	)

	cmd := &cobra.Command{
		Use:   "configure [button] [audio-file]",
		Short: "Assign a message to a button",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			button := parsePositive(args[0], "button")
			audioFile := args[1]

			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			e, err := request(client, isType(esplink.EventButtonConfigured), func() bool {
				return client.ConfigureButton(button, messageID, messageText, categoryName, audioFile)
			})
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to send configure_button")
			}
			if e == nil {
				fmt.Println("Request sent, no confirmation from device")
				return
			}
			ev := e.(esplink.ButtonConfiguredEvent)
			if !ev.Success {
				fmt.Printf("Device rejected configuration of button %d: %s\n", ev.Button, ev.Message)
				os.Exit(1)
			}
			fmt.Printf("Button %d configured with %s\n", ev.Button, audioFile)
		},
	}

	cmd.Flags().IntVar(&messageID, "message-id", 0, "Backend message ID")
	cmd.Flags().StringVar(&messageText, "text", "", "Message text shown on the device")
	cmd.Flags().StringVar(&categoryName, "category-name", "", "Category label")
	return cmd
}

func pingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure round-trip time to the device",
		Run: func(cmd *cobra.Command, args []string) {
			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			start := time.Now()
			e, err := request(client, isType(esplink.EventPong), client.Ping)
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to send ping")
			}
			if e == nil {
				fmt.Println("No pong from device")
				os.Exit(1)
			}
			fmt.Printf("Pong in %s\n", time.Since(start).Round(time.Millisecond))
		},
	}

	return cmd
}

func transferCmd() *cobra.Command {
	var (
		filePath     string
		messageID    int
		messageText  string
		categoryName string
	)

	cmd := &cobra.Command{
		Use:   "transfer [device-filename]",
		Short: "Push an audio file to the device",
		Long:  "Push a local file (--file) or a backend message's audio (--message-id) to the device SD card",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			filename := args[0]
			if filePath == "" && messageID == 0 {
				esplink.DefaultLogger().Fatal("Either --file or --message-id is required")
			}

			client, err := connectClient()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Connection failed")
			}
			defer client.Cleanup()

			done := make(chan esplink.TransferCompleteEvent, 1)
			client.Subscribe(esplink.CreateTransferListener(
				func(e esplink.TransferProgressEvent) {
					fmt.Printf("\r%s: %3d%% (%d/%d bytes)", e.Filename, e.Progress, e.BytesTransferred, e.TotalBytes)
				},
				func(e esplink.TransferCompleteEvent) { done <- e },
			))

			meta := esplink.TransferMetadata{MessageID: messageID, MessageText: messageText, CategoryName: categoryName}
			var startErr error
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					esplink.DefaultLogger().WithError(err).Fatal("Failed to read audio file")
				}
				fmt.Printf("Sending %s (%d bytes) as %s\n", filepath.Base(filePath), len(data), filename)
				startErr = client.TransferAudio(filename, base64.StdEncoding.EncodeToString(data), meta)
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), wait)
				startErr = client.TransferMessageAudio(ctx, messageID, filename, meta)
				cancel()
			}
			if startErr != nil {
				esplink.DefaultLogger().WithError(startErr).Fatal("Transfer failed to start")
			}

			e := <-done
			fmt.Println()
			if !e.Success {
				fmt.Printf("Transfer of %s failed: %s\n", e.Filename, e.Error)
				os.Exit(1)
			}
			fmt.Printf("Transfer of %s completed successfully!\n", e.Filename)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Local audio file to send")
	cmd.Flags().IntVar(&messageID, "message-id", 0, "Backend message whose audio to send")
	cmd.Flags().StringVar(&messageText, "text", "", "Message text stored with the file")
	cmd.Flags().StringVar(&categoryName, "category-name", "", "Category label stored with the file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long:  "Display the effective configuration and any validation issues",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := loadConfig()
			if err != nil {
				esplink.DefaultLogger().WithError(err).Fatal("Failed to load configuration")
			}

			config.PrintConfig()
			fmt.Printf("Auth Secret: %s\n", maskString(config.AuthSecret))
			fmt.Printf("API Token: %s\n", maskString(config.APIToken))

			if issues := config.Validate(); len(issues) > 0 {
				fmt.Println("\nConfiguration issues:")
				for _, issue := range issues {
					fmt.Printf("  ✗ %s\n", issue)
				}
				os.Exit(1)
			}
			fmt.Println("\n✓ Configuration is valid")
		},
	}

	return cmd
}

// Helper function to mask sensitive strings
func maskString(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func intOr(p *int, format string) string {
	if p == nil {
		return "unknown"
	}
	return fmt.Sprintf(format, *p)
}

func boolOr(p *bool) string {
	if p == nil {
		return "unknown"
	}
	return strconv.FormatBool(*p)
}

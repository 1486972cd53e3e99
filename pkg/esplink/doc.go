// Package esplink is a control-plane client for the ESP32 communication aid.
//
// # Overview
//
// The device speaks a small JSON protocol over one WebSocket. This package
// provides:
//   - A connection manager that identifies itself on open, rate-limits
//     manual connects and reconnects with exponential backoff until told to
//     stop
//   - A codec that turns frames into typed events and commands into frames
//   - An event bus that delivers every event to any number of listeners
//   - A cache of the last-known device status
//   - An audio transfer coordinator with progress and an inactivity timeout
//   - Structured logging with Zerolog
//
// # Quick Start
//
//	config := esplink.NewLinkConfig()
//	config.URL = "ws://192.168.4.1:8080/ws"
//
//	client := esplink.NewClient(config)
//	defer client.Cleanup()
//
//	client.SubscribeHandlers(esplink.Handlers{
//		OnButtonPressed: func(ev esplink.ButtonPressedEvent) {
//			fmt.Printf("button %d pressed\n", ev.Button)
//		},
//		OnConnectionChanged: func(ev esplink.ConnectionChangedEvent) {
//			fmt.Printf("connected=%t\n", ev.Connected)
//		},
//	})
//
//	if _, err := client.Connect(); err != nil {
//		log.Fatal(err)
//	}
//
// # Commands
//
// Commands return true when the frame was written to an open socket. They are
// never queued; a command issued while disconnected is dropped:
//
//	client.PlayAudio(3)
//	client.ChangeCategory(2)
//	client.RequestStatus()
//
// # Audio Transfer
//
// One transfer runs at a time. Progress and the final outcome arrive as
// TransferProgressEvent and TransferCompleteEvent:
//
//	err := client.TransferAudio("001.wav", b64, esplink.TransferMetadata{
//		MessageID:    42,
//		MessageText:  "I need help",
//		CategoryName: "Needs",
//	})
//
// A transfer that hears nothing from the device for the configured
// TransferTimeout fails on its own. Failed transfers are not retried.
//
// # Configuration
//
// LinkConfig reads ESPLINK_* environment variables (and a .env file) or a
// YAML file via LoadConfigFile:
//
//	url: ws://192.168.4.1:8080/ws
//	reconnect_base_delay: 5s
//	reconnect_max_delay: 60s
//	transfer_timeout: 30s
package esplink

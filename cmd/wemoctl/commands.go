package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wemokit/wemokit/internal/config"
	"github.com/wemokit/wemokit/internal/control"
	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/discovery"
	"github.com/wemokit/wemokit/internal/eventing"
	"github.com/wemokit/wemokit/internal/relay"
	"github.com/wemokit/wemokit/internal/tui"
)

// Command flags
var (
	deviceFlag   string
	scanTimeout  int
	outputFormat string
	useMDNS      bool
	serveAddr    string
	eventSeconds int
)

// descriptionPorts are the HTTP ports WeMo firmware is known to listen on,
// tried in order when only an IP is given
var descriptionPorts = []int{49153, 49152, 49154}

func init() {
	// Common flags for device commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Target device (nickname, friendly name, UDN, IP, or setup.xml URL)")
	rootCmd.PersistentFlags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (0 = use configured default)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().BoolVar(&useMDNS, "mdns", false, "Also browse mDNS during discovery")

	// Add subcommands directly to root
	rootCmd.AddCommand(scanCommand)
	rootCmd.AddCommand(statusCommand)
	rootCmd.AddCommand(onCommand)
	rootCmd.AddCommand(offCommand)
	rootCmd.AddCommand(toggleCommand)
	rootCmd.AddCommand(watchCommand)
	rootCmd.AddCommand(panelCommand)
	rootCmd.AddCommand(nameCommand)
}

// newScanner builds a scanner from flags and saved preferences
func newScanner(registry *config.Registry) *discovery.Scanner {
	scanner := discovery.NewScanner()

	timeout := scanTimeout
	if timeout == 0 && registry != nil && registry.Preferences != nil {
		timeout = registry.Preferences.ScanTimeout
	}
	if timeout > 0 {
		scanner.Timeout = time.Duration(timeout) * time.Second
	}

	scanner.MDNS = useMDNS
	if !useMDNS && registry != nil && registry.Preferences != nil {
		scanner.MDNS = registry.Preferences.MDNS
	}

	return scanner
}

// recordDevices stores discovered devices in the user config so nicknames
// and last-seen addresses survive between runs
func recordDevices(registry *config.Registry, devices []*description.Device) {
	if registry == nil {
		return
	}
	for _, device := range devices {
		host, port := splitBaseURL(device.BaseURL)
		registry.UpdateDeviceLastSeen(device.UDN, host, port,
			device.FriendlyName, device.SerialNumber, device.ModelName)
	}
	if err := registry.Save(); err != nil {
		fmt.Printf("Warning: could not save device registry: %v\n", err)
	}
}

func splitBaseURL(baseURL string) (string, int) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", 0
	}
	port, _ := strconv.Atoi(u.Port())
	return u.Hostname(), port
}

// scanCommand discovers devices on the network
var scanCommand = &cobra.Command{
	Use:   "scan",
	Short: "Scan for WeMo devices on the network",
	Long: `Scan for WeMo devices using multicast search.

This command multicasts a search request, fetches the description document
of every device that answers, and displays the results. Discovered devices
are remembered in the config file for later name-based targeting.`,
	Example: `  # Scan with the configured timeout
  wemoctl scan

  # Quick 2-second scan
  wemoctl scan --timeout 2

  # Also browse mDNS (newer firmware)
  wemoctl scan --mdns`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	scanner := newScanner(registry)
	fmt.Printf("Scanning for WeMo devices (timeout: %s)...\n\n", scanner.Timeout)

	devices, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	recordDevices(registry, devices)

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure devices are powered on and on the same network")
		fmt.Println("  - Check that multicast traffic is allowed (UDP port 1900)")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --device <ip> to target a device directly")
		return nil
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, device := range devices {
		fmt.Printf("%d. %s\n", i+1, registry.DisplayName(device.UDN))
		if outputFormat == "compact" {
			continue
		}
		fmt.Printf("   UDN:    %s\n", device.UDN)
		fmt.Printf("   Model:  %s\n", device.ModelName)
		fmt.Printf("   URL:    %s\n", device.BaseURL)
		if device.SerialNumber != "" {
			fmt.Printf("   Serial: %s\n", device.SerialNumber)
		}
		fmt.Println()
	}

	fmt.Println("Use 'wemoctl status --device <name>' to check a device")
	fmt.Println("Use 'wemoctl panel' for interactive control")

	return nil
}

// statusCommand reports device on/off state
var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show device on/off state",
	Long: `Query the binary state of one device, or of every discovered device
when no --device is given.`,
	Example: `  # Status of every device on the network
  wemoctl status

  # Status of one device by nickname
  wemoctl status --device "Desk Lamp"

  # JSON output for scripting
  wemoctl status --device 192.168.1.42 --format json`,
	RunE: runStatus,
}

type deviceStatus struct {
	Name  string `json:"name"`
	UDN   string `json:"udn"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var devices []*description.Device
	if deviceFlag != "" {
		device, err := resolveDevice(cmd.Context(), registry)
		if err != nil {
			return err
		}
		devices = []*description.Device{device}
	} else {
		devices, err = newScanner(registry).Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		recordDevices(registry, devices)
		if len(devices) == 0 {
			fmt.Println("No devices found.")
			return nil
		}
	}

	statuses := make([]deviceStatus, 0, len(devices))
	for _, device := range devices {
		status := deviceStatus{
			Name: registry.DisplayName(device.UDN),
			UDN:  device.UDN,
		}
		state, err := control.NewSwitch(device).StateWithRetry(cmd.Context())
		if err != nil {
			status.State = "unknown"
			status.Error = err.Error()
		} else {
			status.State = formatState(state)
		}
		statuses = append(statuses, status)
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for _, status := range statuses {
		if status.Error != "" {
			fmt.Printf("%-30s %s (%s)\n", status.Name, status.State, status.Error)
			continue
		}
		fmt.Printf("%-30s %s\n", status.Name, status.State)
	}
	return nil
}

func formatState(state int) string {
	switch state {
	case control.StateOn:
		return "on"
	case control.StateStandby:
		return "standby"
	default:
		return "off"
	}
}

// onCommand turns a device on
var onCommand = &cobra.Command{
	Use:   "on",
	Short: "Turn a device on",
	Example: `  wemoctl on --device "Desk Lamp"
  wemoctl on --device 192.168.1.42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetState(cmd, true)
	},
}

// offCommand turns a device off
var offCommand = &cobra.Command{
	Use:   "off",
	Short: "Turn a device off",
	Example: `  wemoctl off --device "Desk Lamp"
  wemoctl off --device 192.168.1.42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetState(cmd, false)
	},
}

func runSetState(cmd *cobra.Command, on bool) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	device, err := resolveDevice(cmd.Context(), registry)
	if err != nil {
		return err
	}

	sw := control.NewSwitch(device)
	if on {
		err = sw.OnWithRetry(cmd.Context())
	} else {
		err = sw.OffWithRetry(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("control failed: %w", err)
	}

	fmt.Printf("✓ %s is now %s\n", registry.DisplayName(device.UDN), formatState(boolToState(on)))
	return nil
}

func boolToState(on bool) int {
	if on {
		return control.StateOn
	}
	return control.StateOff
}

// toggleCommand flips a device's state
var toggleCommand = &cobra.Command{
	Use:     "toggle",
	Short:   "Toggle a device's on/off state",
	Example: `  wemoctl toggle --device "Desk Lamp"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		device, err := resolveDevice(cmd.Context(), registry)
		if err != nil {
			return err
		}

		state, err := control.NewSwitch(device).Toggle(cmd.Context())
		if err != nil {
			return fmt.Errorf("toggle failed: %w", err)
		}

		fmt.Printf("✓ %s is now %s\n", registry.DisplayName(device.UDN), formatState(state))
		return nil
	},
}

// nameCommand assigns a nickname to a device
var nameCommand = &cobra.Command{
	Use:   "name <nickname>",
	Short: "Assign a nickname to a device",
	Long: `Assign a local nickname to a device. Nicknames are stored in the config
file and can be used with --device in any command.`,
	Example: `  wemoctl name "Desk Lamp" --device 192.168.1.42
  wemoctl name "Heater" --device uuid:Socket-1_0-221342`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		device, err := resolveDevice(cmd.Context(), registry)
		if err != nil {
			return err
		}

		registry.SetDeviceNickname(device.UDN, args[0])
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("✓ %s is now %q\n", device.UDN, args[0])
		return nil
	},
}

// watchCommand subscribes to device events and prints them
var watchCommand = &cobra.Command{
	Use:   "watch",
	Short: "Watch device state-change events",
	Long: `Subscribe to state-change notifications and print each event as it
arrives. Without --device, every discovered device is watched.

With --serve, events are additionally broadcast to WebSocket clients on
the given address, so dashboards can consume them live.`,
	Example: `  # Watch every device until interrupted
  wemoctl watch

  # Watch one device
  wemoctl watch --device "Desk Lamp"

  # Relay events to WebSocket clients on port 8080
  wemoctl watch --serve :8080`,
	RunE: runWatch,
}

func init() {
	watchCommand.Flags().StringVar(&serveAddr, "serve", "", "Also serve events to WebSocket clients on this address")
	watchCommand.Flags().IntVar(&eventSeconds, "duration", 0, "Requested subscription lease in seconds (0 = use configured default)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var devices []*description.Device
	if deviceFlag != "" {
		device, err := resolveDevice(ctx, registry)
		if err != nil {
			return err
		}
		devices = []*description.Device{device}
	} else {
		fmt.Println("Scanning for devices to watch...")
		devices, err = newScanner(registry).Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		recordDevices(registry, devices)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no devices to watch")
	}

	callbackPort := 0
	if registry.Preferences != nil {
		callbackPort = registry.Preferences.CallbackPort
	}
	mgr, err := eventing.Start(eventing.ListenerConfig{Port: callbackPort})
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(shutdownCtx)
	}()

	duration := eventSeconds
	if duration == 0 && registry.Preferences != nil {
		duration = registry.Preferences.EventDuration
	}
	if duration == 0 {
		duration = 300
	}

	handler := &printingHandler{registry: registry, manager: mgr}

	var relayHub *relay.Relay
	if serveAddr != "" {
		relayHub = relay.NewRelay()
		defer relayHub.Close()
		relayHub.ResolveUDN = func(sid string) (string, bool) {
			sub, ok := mgr.Registry().Get(sid)
			if !ok {
				return "", false
			}
			return sub.DeviceUDN, true
		}
		handler.relay = relayHub

		server := &http.Server{Addr: serveAddr, Handler: relayHub}
		listener, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("failed to bind relay address: %w", err)
		}
		go func() { _ = server.Serve(listener) }()
		defer func() { _ = server.Close() }()
		fmt.Printf("Relaying events to WebSocket clients on %s\n", listener.Addr())
	}

	for _, device := range devices {
		sid, err := mgr.Subscribe(ctx, device, time.Duration(duration)*time.Second, handler)
		if err != nil {
			fmt.Printf("✗ %s: subscribe failed: %v\n", registry.DisplayName(device.UDN), err)
			continue
		}
		fmt.Printf("✓ Watching %s (%s)\n", registry.DisplayName(device.UDN), sid)
	}
	if mgr.Registry().Len() == 0 {
		return fmt.Errorf("no subscriptions established")
	}

	fmt.Println("\nWaiting for events (Ctrl+C to stop)...")
	<-ctx.Done()
	fmt.Println("\nShutting down...")
	return nil
}

// printingHandler prints each event and forwards it to the relay when one
// is configured. It also reports subscriptions the scheduler gave up on.
type printingHandler struct {
	registry *config.Registry
	manager  *eventing.Manager
	relay    *relay.Relay
}

func (h *printingHandler) HandleEvent(event eventing.Event) {
	name := event.SID
	if sub, ok := h.manager.Registry().Get(event.SID); ok {
		name = h.registry.DisplayName(sub.DeviceUDN)
	}

	if outputFormat == "json" {
		data, err := json.Marshal(map[string]interface{}{
			"time":       time.Now().Format(time.RFC3339),
			"device":     name,
			"sid":        event.SID,
			"properties": event.Properties,
		})
		if err == nil {
			fmt.Println(string(data))
		}
	} else {
		parts := make([]string, 0, len(event.Properties))
		for k, v := range event.Properties {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
		fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), name, strings.Join(parts, " "))
	}

	if h.relay != nil {
		h.relay.HandleEvent(event)
	}
}

func (h *printingHandler) SubscriptionLost(sid string, err error) {
	fmt.Printf("✗ Subscription %s lost: %v\n", sid, err)
}

// panelCommand launches the interactive TUI control panel
var panelCommand = &cobra.Command{
	Use:   "panel",
	Short: "Launch the interactive control panel",
	Long: `Launch an interactive terminal panel that lists every device on the
network with its current state and lets you flip switches from the
keyboard.

This is the recommended way to control devices for most users.`,
	Example: `  # Launch the panel
  wemoctl panel
  # Or simply (panel is default):
  wemoctl`,
	RunE: runPanel,
}

func runPanel(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return tui.Run(newScanner(registry), registry)
}

// resolveDevice turns the --device flag into a live Device. It accepts a
// setup.xml URL, a bare IP, a UDN, a configured nickname, or the name the
// device reports about itself.
func resolveDevice(ctx context.Context, registry *config.Registry) (*description.Device, error) {
	if deviceFlag == "" {
		return nil, fmt.Errorf("no device specified; use --device")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	// Full description URL: fetch directly
	if strings.HasPrefix(deviceFlag, "http://") || strings.HasPrefix(deviceFlag, "https://") {
		return description.Fetch(ctx, client, deviceFlag)
	}

	// Bare IP: probe the known description ports
	if ip := net.ParseIP(deviceFlag); ip != nil {
		return fetchByIP(ctx, client, deviceFlag)
	}

	// A known nickname may carry a usable last address
	if device := lastKnownMatch(registry, deviceFlag); device != nil {
		if resolved, err := fetchByAddress(ctx, client, device.LastIP, device.LastPort); err == nil {
			return resolved, nil
		}
		// Stale address; fall through to a scan
	}

	// Otherwise scan and match by UDN, nickname, or friendly name
	devices, err := newScanner(registry).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	recordDevices(registry, devices)

	for _, device := range devices {
		if device.UDN == deviceFlag ||
			strings.EqualFold(device.FriendlyName, deviceFlag) ||
			strings.EqualFold(registry.DisplayName(device.UDN), deviceFlag) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("no device matching %q found (try 'wemoctl scan')", deviceFlag)
}

// lastKnownMatch finds a configured device whose nickname, friendly name
// or UDN matches the flag and that has a stored address.
func lastKnownMatch(registry *config.Registry, target string) *config.Device {
	if registry == nil {
		return nil
	}
	for udn, device := range registry.Devices {
		if device.LastIP == "" {
			continue
		}
		if udn == target ||
			strings.EqualFold(device.Nickname, target) ||
			strings.EqualFold(device.FriendlyName, target) {
			return device
		}
	}
	return nil
}

func fetchByIP(ctx context.Context, client *http.Client, ip string) (*description.Device, error) {
	var lastErr error
	for _, port := range descriptionPorts {
		device, err := fetchByAddress(ctx, client, ip, port)
		if err == nil {
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no device answered at %s on ports %v: %w", ip, descriptionPorts, lastErr)
}

func fetchByAddress(ctx context.Context, client *http.Client, ip string, port int) (*description.Device, error) {
	if ip == "" || port == 0 {
		return nil, fmt.Errorf("no stored address")
	}
	location := fmt.Sprintf("http://%s/setup.xml", net.JoinHostPort(ip, strconv.Itoa(port)))
	return description.Fetch(ctx, client, location)
}

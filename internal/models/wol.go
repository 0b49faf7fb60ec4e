package models

import "time"

// WakeConfig holds Wake-on-LAN settings for a storage host that may be asleep.
type WakeConfig struct {
	MACAddress    string
	BroadcastIP   string
	TargetAddr    string        // host:port polled until it accepts TCP connections
	Timeout       time.Duration // max time to wait for target
	PollInterval  time.Duration // how often to dial the target
	StabilizeWait time.Duration // wait after target responds
}

// WakeResult holds the result of a Wake-on-LAN operation.
type WakeResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}

package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/afterchive/internal/models"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockDialer struct {
	dialFunc func(ctx context.Context, network, address string) (net.Conn, error)
}

func (m *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if m.dialFunc != nil {
		return m.dialFunc(ctx, network, address)
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWake_Success_NoTarget(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	result, err := svc.Wake(context.Background(), models.WakeConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, nil)

	result, err := svc.Wake(context.Background(), models.WakeConfig{MACAddress: "not-a-mac"})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_SendFails(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(string, net.HardwareAddr) error { return errors.New("network unreachable") },
	}
	svc := NewWithClients(testLogger(), wolClient, nil)

	result, err := svc.Wake(context.Background(), models.WakeConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.EqualError(t, result.Error, "network unreachable")
}

func TestWake_PollsUntilTargetAcceptsConnections(t *testing.T) {
	var attempts atomic.Int32
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			assert.Equal(t, "tcp", network)
			assert.Equal(t, "nas.local:22", address)
			if attempts.Add(1) < 3 {
				return nil, errors.New("connection refused")
			}
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		},
	}
	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	result, err := svc.Wake(context.Background(), models.WakeConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "192.168.1.255",
		TargetAddr:   "nas.local:22",
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.True(t, result.TargetReady)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWake_TargetTimeout(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	result, err := svc.Wake(context.Background(), models.WakeConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "192.168.1.255",
		TargetAddr:   "nas.local:22",
		Timeout:      50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout waiting for target")
}

func TestWake_ContextCanceledDuringStabilize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockDialer{})

	result, err := svc.Wake(ctx, models.WakeConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "192.168.1.255",
		TargetAddr:    "nas.local:22",
		StabilizeWait: time.Minute,
	})

	require.NoError(t, err)
	assert.False(t, result.TargetReady)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
}

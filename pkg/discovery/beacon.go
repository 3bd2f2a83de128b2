/*
 * Copyright 2025 Will Reeves and TouchStream Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

// BeaconPort is the fixed UDP port hubs listen on for presence broadcasts.
const BeaconPort = 9999

const beaconInterval = 5 * time.Second

// Beacon periodically broadcasts the device identity as a single UDP
// datagram. Purely advisory: sends are best-effort, failures are swallowed,
// and nothing is ever acknowledged.
type Beacon struct {
	store    ConfigStore
	log      logger.Logger
	addr     string
	interval time.Duration
}

// BeaconOption configures a Beacon.
type BeaconOption func(*Beacon)

// WithBeaconAddr overrides the broadcast destination, used by tests.
func WithBeaconAddr(addr string) BeaconOption {
	return func(b *Beacon) { b.addr = addr }
}

// WithBeaconInterval overrides the announce cadence.
func WithBeaconInterval(d time.Duration) BeaconOption {
	return func(b *Beacon) { b.interval = d }
}

func NewBeacon(store ConfigStore, log logger.Logger, opts ...BeaconOption) *Beacon {
	b := &Beacon{
		store:    store,
		log:      log,
		addr:     fmt.Sprintf("255.255.255.255:%d", BeaconPort),
		interval: beaconInterval,
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Payload builds the beacon datagram from the current config, re-read each
// time so identity changes are picked up without a restart.
func (b *Beacon) Payload() ([]byte, error) {
	cfg := b.store.Snapshot()

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = models.UnadoptedID
	}

	return json.Marshal(models.BeaconMessage{
		DeviceName: cfg.DeviceName,
		DeviceID:   deviceID,
	})
}

// Run broadcasts until the context is canceled. Send failures are logged at
// debug level and never abort the loop; there is no backoff.
func (b *Beacon) Run(ctx context.Context) {
	// Broadcast destinations need SO_BROADCAST on the socket.
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error

			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}

			return sockErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		b.log.Error().Err(err).Msg("Beacon socket unavailable")
		return
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", b.addr)
	if err != nil {
		b.log.Error().Err(err).Str("addr", b.addr).Msg("Bad beacon address")
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info().Str("addr", b.addr).Msg("Beacon broadcasting")

	for {
		b.send(conn, dst)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Beacon) send(conn net.PacketConn, dst *net.UDPAddr) {
	payload, err := b.Payload()
	if err != nil {
		b.log.Debug().Err(err).Msg("Beacon payload failed")
		return
	}

	if _, err := conn.WriteTo(payload, dst); err != nil {
		b.log.Debug().Err(err).Msg("Beacon send failed")
	}
}

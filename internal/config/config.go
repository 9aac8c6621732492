// Package config defines the JSON-overridable configuration surface of
// the telemetry pipeline binaries, grounded on the flat Config struct
// and -c JSON override flow of a flag-driven CLI tool.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/aria-sdk/telemetry/pkg/packet"
)

// ClassConfig configures one priority class of the QoS shaper.
type ClassConfig struct {
	MaxRatePPS  float64 `json:"max_rate_pps"`
	Burst       float64 `json:"burst"`
	QueueLen    int     `json:"queue_len"`
}

// QoSConfig configures all four priority classes, keyed p0..p3.
type QoSConfig struct {
	P0 ClassConfig `json:"p0"`
	P1 ClassConfig `json:"p1"`
	P2 ClassConfig `json:"p2"`
	P3 ClassConfig `json:"p3"`
}

// Config is the full set of options recognized by the pipeline binaries:
// every pipeline stage's tunables, plus the operational flags carried
// alongside them (log file, quiet mode, stats logging, pprof).
type Config struct {
	// Packetizer / defragmenter.
	MTU                  int `json:"mtu"`
	HeaderReserve        int `json:"header_reserve"`
	ReassemblyTimeoutSec int `json:"reassembly_timeout"`
	MaxInFlightMessages  int `json:"max_in_flight_messages"`

	// Compression.
	Compression      string `json:"compression"`       // fast | balanced
	CompressionLevel int    `json:"compression_level"`

	// Delta codec.
	Delta          string  `json:"delta"` // off | simple | adaptive
	DeltaThreshold float64 `json:"delta_threshold"`

	// FEC.
	Fec     string `json:"fec"` // off | fixed | adaptive
	FecK    int    `json:"fec_k"`
	FecM    int    `json:"fec_m"`
	FecMMin int    `json:"fec_m_min"`
	FecMMax int    `json:"fec_m_max"`
	FecBlockTimeoutSec int `json:"fec_block_timeout"`

	// QoS.
	QoS QoSConfig `json:"qos"`

	// Crypto.
	Crypto           string `json:"crypto"` // none | symmetric | asymmetric
	SigningSeedHex   string `json:"signing_seed_hex,omitempty"`
	EncryptionKeyHex string `json:"encryption_key_hex,omitempty"`
	PrivateKeyHex    string `json:"private_key_hex,omitempty"`
	PeerPublicKeyHex string `json:"peer_public_key_hex,omitempty"`

	// CCEM.
	TxPacerIntervalSec float64 `json:"tx_pacer_interval"`
	RxDeJitterSize     int     `json:"rx_dejitter_size"`
	RxDeJitterMaxWait  float64 `json:"rx_dejitter_max_wait"`

	// Transport.
	TransportHost string `json:"transport_host"`
	TransportPort int    `json:"transport_port"`

	// Operational.
	SourceNode string `json:"source_node"`
	Log        string `json:"log"`
	StatsLog   string `json:"statslog"`
	StatsPeriodSec int `json:"statsperiod"`
	Pprof      bool   `json:"pprof"`
	Quiet      bool   `json:"quiet"`
}

// Default returns a Config matching the conservative defaults a fresh
// deployment would start from.
func Default() Config {
	return Config{
		MTU:                  1400,
		HeaderReserve:        packet.DefaultHeaderReserve,
		ReassemblyTimeoutSec: 5,
		MaxInFlightMessages:  100,
		Compression:          "fast",
		CompressionLevel:     1,
		Delta:                "off",
		DeltaThreshold:       0.9,
		Fec:                  "off",
		FecK:                 4,
		FecM:                 2,
		FecMMin:              1,
		FecMMax:              4,
		FecBlockTimeoutSec:   5,
		QoS: QoSConfig{
			P0: ClassConfig{MaxRatePPS: 200, Burst: 50, QueueLen: 256},
			P1: ClassConfig{MaxRatePPS: 200, Burst: 50, QueueLen: 256},
			P2: ClassConfig{MaxRatePPS: 100, Burst: 25, QueueLen: 512},
			P3: ClassConfig{MaxRatePPS: 20, Burst: 10, QueueLen: 1024},
		},
		Crypto:             "none",
		TxPacerIntervalSec: 0,
		RxDeJitterSize:     32,
		RxDeJitterMaxWait:  1.0,
		TransportHost:      "0.0.0.0",
		TransportPort:      9630,
		StatsPeriodSec:     0,
	}
}

// LoadFile reads and parses a JSON config file, overriding the fields
// present in base. Unknown
// keys are rejected: a typo'd config option should fail loudly rather
// than be silently ignored.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrap(err, "config: read file")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&base); err != nil {
		return base, errors.Wrap(err, "config: parse json")
	}
	return base, nil
}
